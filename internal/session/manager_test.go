package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shinelabs/shine/internal/analysis"
	"github.com/shinelabs/shine/internal/detect"
	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
	"github.com/shinelabs/shine/pkg/eventstore/mock"
	analyzermock "github.com/shinelabs/shine/pkg/provider/analyzer/mock"
)

// newManager wires a Manager around a single mock store acting as both the
// event store and the session registry.
func newManager(store *mock.Store) *Manager {
	return NewManager(ManagerConfig{
		Store:    store,
		Registry: store,
		Provider: &analyzermock.Provider{},
		Detector: detect.Config{
			SpeechThreshold:  0.025,
			SpikeRatio:       1.8,
			MinSpikeDuration: 150 * time.Millisecond,
			EmitCooldown:     3 * time.Second,
		},
		Analysis: analysis.Config{Cadence: time.Hour},
	})
}

// flakyRegistry reports the join code taken for the first n CreateSession
// calls, then delegates to the embedded mock.
type flakyRegistry struct {
	*mock.Store
	rejections int
}

func (r *flakyRegistry) CreateSession(ctx context.Context, code, hostName string) (eventstore.Session, error) {
	if r.rejections > 0 {
		r.rejections--
		return eventstore.Session{}, eventstore.ErrCodeTaken
	}
	return r.Store.CreateSession(ctx, code, hostName)
}

func frame(level float32, at time.Time) detect.Frame {
	samples := make([]float32, 480)
	for i := range samples {
		samples[i] = level
	}
	return detect.Frame{Samples: samples, SampleRate: 48000, At: at}
}

func TestOpen_StartsSessionRuntime(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	m := newManager(store)

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	defer s.close()

	info := s.Info()
	if info.HostName != "Mia" || info.Code == "" || info.Status != eventstore.StatusActive {
		t.Errorf("Info() = %+v", info)
	}
	if got, ok := m.Get(info.ID); !ok || got != s {
		t.Error("Get() did not return the opened session")
	}

	if _, err := s.AppendTranscript(context.Background(), event.TranscriptChunkPayload{
		Text: "hello everyone", SpeakerLabel: "Mia",
	}); err != nil {
		t.Fatalf("AppendTranscript() unexpected error: %v", err)
	}
	if store.CallCount("Append") != 1 {
		t.Errorf("Append calls = %d, want 1", store.CallCount("Append"))
	}
}

func TestOpen_RetriesTakenCodes(t *testing.T) {
	t.Parallel()

	reg := &flakyRegistry{Store: &mock.Store{}, rejections: 2}
	m := NewManager(ManagerConfig{
		Store:    reg.Store,
		Registry: reg,
		Provider: &analyzermock.Provider{},
		Analysis: analysis.Config{Cadence: time.Hour},
	})

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error after collisions: %v", err)
	}
	defer s.close()

	if got := reg.CallCount("CreateSession"); got != 1 {
		t.Errorf("delegated CreateSession calls = %d, want 1 after 2 rejections", got)
	}
}

func TestOpen_GivesUpWhenAllCodesCollide(t *testing.T) {
	t.Parallel()

	store := &mock.Store{CreateSessionErr: eventstore.ErrCodeTaken}
	m := newManager(store)

	_, err := m.Open(context.Background(), "Mia")
	if !errors.Is(err, eventstore.ErrCodeTaken) {
		t.Fatalf("Open() error = %v, want ErrCodeTaken", err)
	}
	if got := store.CallCount("CreateSession"); got != maxCodeAttempts {
		t.Errorf("CreateSession attempts = %d, want %d", got, maxCodeAttempts)
	}
}

func TestJoin_ReturnsLiveRuntime(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	m := newManager(store)

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	defer s.close()

	store.Session = s.Info()
	joined, err := m.Join(context.Background(), s.Info().Code)
	if err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	if joined != s {
		t.Error("Join() built a second runtime for a live session")
	}
}

func TestJoin_RebuildsRuntimeAfterRestart(t *testing.T) {
	t.Parallel()

	store := &mock.Store{Session: eventstore.Session{
		ID: "s-old", Code: "MAPLE-42", HostName: "Mia", Status: eventstore.StatusActive,
	}}
	m := newManager(store)

	s, err := m.Join(context.Background(), "MAPLE-42")
	if err != nil {
		t.Fatalf("Join() unexpected error: %v", err)
	}
	defer s.close()

	if s.Info().ID != "s-old" {
		t.Errorf("rebuilt session ID = %q", s.Info().ID)
	}
	if _, ok := m.Get("s-old"); !ok {
		t.Error("rebuilt runtime not registered")
	}
}

func TestJoin_RejectsEndedSession(t *testing.T) {
	t.Parallel()

	store := &mock.Store{Session: eventstore.Session{
		ID: "s-done", Code: "TIDE-7", Status: eventstore.StatusEnded,
	}}
	m := newManager(store)

	_, err := m.Join(context.Background(), "TIDE-7")
	if !errors.Is(err, ErrSessionEnded) {
		t.Errorf("Join() error = %v, want ErrSessionEnded", err)
	}
}

func TestJoin_UnknownCode(t *testing.T) {
	t.Parallel()

	store := &mock.Store{SessionByCodeErr: eventstore.ErrSessionNotFound}
	m := newManager(store)

	_, err := m.Join(context.Background(), "NOPE-1")
	if !errors.Is(err, eventstore.ErrSessionNotFound) {
		t.Errorf("Join() error = %v, want ErrSessionNotFound", err)
	}
}

func TestEnd_ReportsAndMarksEnded(t *testing.T) {
	t.Parallel()

	now := time.Now()
	raw, _ := event.MarshalPayload(event.TranscriptChunkPayload{
		Text: "we could batch these", TS: now, Source: event.SourceMic, SpeakerLabel: "Mia",
	})
	store := &mock.Store{QueryResult: []event.Event{{
		ID: "t1", SessionID: "mock-session", Type: event.TypeTranscriptChunk,
		Payload: raw, CreatedAt: now,
	}}}
	m := newManager(store)

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}

	rep, err := m.End(context.Background(), s.Info().ID)
	if err != nil {
		t.Fatalf("End() unexpected error: %v", err)
	}
	if rep == nil || len(rep.Moments) != 1 || rep.Moments[0].Participant != "Mia" {
		t.Errorf("report = %+v, want one moment for Mia", rep)
	}

	if store.CallCount("UpdateSessionStatus") != 1 {
		t.Fatalf("UpdateSessionStatus calls = %d, want 1", store.CallCount("UpdateSessionStatus"))
	}
	for _, c := range store.Calls() {
		if c.Method == "UpdateSessionStatus" && c.Args[1] != eventstore.StatusEnded {
			t.Errorf("session marked %v, want ended", c.Args[1])
		}
	}

	if _, ok := m.Get(s.Info().ID); ok {
		t.Error("ended session still registered")
	}
	if _, err := m.End(context.Background(), s.Info().ID); !errors.Is(err, eventstore.ErrSessionNotFound) {
		t.Errorf("second End() error = %v, want ErrSessionNotFound", err)
	}
}

func TestEnd_EmptySessionStillEnds(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	m := newManager(store)

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}

	rep, err := m.End(context.Background(), s.Info().ID)
	if err != nil {
		t.Fatalf("End() unexpected error: %v", err)
	}
	if rep != nil {
		t.Errorf("report = %+v, want nil for an empty session", rep)
	}
	if store.CallCount("UpdateSessionStatus") != 1 {
		t.Error("empty session was not marked ended")
	}
}

func TestOverlap_AppendsAttributedInterruption(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	m := newManager(store)

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	defer s.close()

	base := time.Now()
	if _, err := s.AppendTranscript(context.Background(), event.TranscriptChunkPayload{
		Text: "what if we cache the lookups", TS: base, SpeakerLabel: "Mia",
	}); err != nil {
		t.Fatalf("AppendTranscript() unexpected error: %v", err)
	}

	// A loud burst held past the minimum spike duration, then a collapse.
	for i := range 5 {
		s.ProcessFrame(frame(0.05, base.Add(time.Duration(i)*50*time.Millisecond)))
	}
	s.ProcessFrame(frame(0.005, base.Add(250*time.Millisecond)))

	// close flushes queued interruptions to the store.
	s.close()

	var got *event.InterruptionPayload
	for _, c := range store.Calls() {
		if c.Method != "Append" || c.Args[1] != event.TypeInterruption {
			continue
		}
		var p event.InterruptionPayload
		if err := event.DecodePayload(event.Event{
			Type:    event.TypeInterruption,
			Payload: c.Args[2].(json.RawMessage),
		}, &p); err != nil {
			t.Fatalf("decode interruption payload: %v", err)
		}
		got = &p
	}
	if got == nil {
		t.Fatal("no interruption event appended")
	}
	if got.InterruptedIdea != "what if we cache the lookups" {
		t.Errorf("InterruptedIdea = %q, want the idea on the table", got.InterruptedIdea)
	}
	if got.Confidence != event.ConfidenceMedium {
		t.Errorf("Confidence = %q, want medium for a hard collapse", got.Confidence)
	}
}

// gatedStore blocks interruption appends until its gate is closed, simulating
// a store that is slow for exactly the writes the detector produces.
type gatedStore struct {
	*mock.Store
	gate chan struct{}
}

func (g *gatedStore) Append(ctx context.Context, sessionID string, typ event.Type, payload json.RawMessage) (event.Event, error) {
	if typ == event.TypeInterruption {
		<-g.gate
	}
	return g.Store.Append(ctx, sessionID, typ, payload)
}

func TestOverlap_SlowStoreDoesNotStallFrames(t *testing.T) {
	t.Parallel()

	store := &gatedStore{Store: &mock.Store{}, gate: make(chan struct{})}
	m := NewManager(ManagerConfig{
		Store:    store,
		Registry: store.Store,
		Provider: &analyzermock.Provider{},
		Detector: detect.Config{
			SpeechThreshold:  0.025,
			SpikeRatio:       1.8,
			MinSpikeDuration: 150 * time.Millisecond,
			EmitCooldown:     3 * time.Second,
		},
		Analysis: analysis.Config{Cadence: time.Hour},
	})

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}

	// Emit a signal while the store refuses to complete the append. Every
	// ProcessFrame call must still return promptly.
	base := time.Now()
	for i := range 5 {
		s.ProcessFrame(frame(0.05, base.Add(time.Duration(i)*50*time.Millisecond)))
	}
	s.ProcessFrame(frame(0.005, base.Add(250*time.Millisecond)))

	frameDone := make(chan struct{})
	go func() {
		for i := range 20 {
			s.ProcessFrame(frame(0.03, base.Add(time.Duration(300+i*50)*time.Millisecond)))
		}
		close(frameDone)
	}()
	select {
	case <-frameDone:
	case <-time.After(2 * time.Second):
		t.Fatal("frame processing stalled behind the slow store")
	}

	close(store.gate)
	s.close()
	if store.CallCount("Append") == 0 {
		t.Error("queued interruption never reached the store")
	}
}

func TestShutdown_StopsRuntimesWithoutEnding(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	m := newManager(store)

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}

	m.Shutdown()

	if _, ok := m.Get(s.Info().ID); ok {
		t.Error("session still registered after Shutdown")
	}
	if store.CallCount("UpdateSessionStatus") != 0 {
		t.Error("Shutdown marked sessions ended; records should stay active")
	}
}

func TestAppendTranscript_RejectsBlankText(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	m := newManager(store)

	s, err := m.Open(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	defer s.close()

	if _, err := s.AppendTranscript(context.Background(), event.TranscriptChunkPayload{Text: "   "}); err == nil {
		t.Error("blank transcript chunk accepted")
	}
	if store.CallCount("Append") != 0 {
		t.Error("blank chunk reached the store")
	}
}
