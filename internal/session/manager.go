// Package session owns the lifecycle of live meeting sessions.
//
// A Manager creates sessions with human-friendly join codes, wires the
// per-session runtime (event log, overlap detector, analysis scheduler,
// recent-speech buffer), and guarantees idempotent teardown when a session
// ends. Ending a session also produces its Shine Report.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shinelabs/shine/internal/analysis"
	"github.com/shinelabs/shine/internal/detect"
	"github.com/shinelabs/shine/internal/eventlog"
	"github.com/shinelabs/shine/internal/report"
	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

// maxCodeAttempts bounds join-code generation retries when codes collide.
const maxCodeAttempts = 5

// overlapBuffer bounds interruption signals waiting on a slow store.
const overlapBuffer = 16

// ErrSessionEnded is returned when joining a session that has already ended.
var ErrSessionEnded = errors.New("session: session has ended")

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	Store    eventstore.Store
	Registry eventstore.SessionRegistry
	Provider analyzer.Provider
	Detector detect.Config
	Analysis analysis.Config

	// ViewLimit bounds each session's event view. <= 0 uses the default.
	ViewLimit int

	Logger *slog.Logger
}

// Manager manages the lifecycle of meeting sessions. Several sessions can be
// live at once; each owns its own runtime. All exported methods are safe for
// concurrent use.
type Manager struct {
	store     eventstore.Store
	registry  eventstore.SessionRegistry
	provider  analyzer.Provider
	reports   *report.Generator
	detectCfg detect.Config
	schedCfg  analysis.Config
	viewLimit int
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:     cfg.Store,
		registry:  cfg.Registry,
		provider:  cfg.Provider,
		reports:   report.New(cfg.Provider, log),
		detectCfg: cfg.Detector,
		schedCfg:  cfg.Analysis,
		viewLimit: cfg.ViewLimit,
		log:       log.With("component", "session"),
	}
}

// ApplyConfig replaces the detector and analysis settings used for sessions
// started after the call. Running sessions keep the settings they were
// started with.
func (m *Manager) ApplyConfig(detector detect.Config, sched analysis.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectCfg = detector
	m.schedCfg = sched
}

// Open creates a new session for the given host and starts its runtime. Join
// codes are drawn at random; a code already held by a live session is retried
// with a fresh draw, up to a small bound.
func (m *Manager) Open(ctx context.Context, hostName string) (*Session, error) {
	var rec eventstore.Session
	for attempt := 1; ; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("session: open: %w", err)
		}
		rec, err = m.registry.CreateSession(ctx, code, hostName)
		if err == nil {
			break
		}
		if !errors.Is(err, eventstore.ErrCodeTaken) {
			return nil, fmt.Errorf("session: open: %w", err)
		}
		if attempt >= maxCodeAttempts {
			return nil, fmt.Errorf("session: open: no free join code after %d attempts: %w", maxCodeAttempts, err)
		}
		m.log.Debug("join code collision, retrying", "code", code)
	}

	s := m.start(rec)
	m.log.Info("session opened", "session_id", rec.ID, "code", rec.Code, "host", hostName)
	return s, nil
}

// Join resolves a join code to its live session. A session created on a
// previous run of the process gets its runtime rebuilt on first join.
func (m *Manager) Join(ctx context.Context, code string) (*Session, error) {
	rec, err := m.registry.SessionByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("session: join %q: %w", code, err)
	}
	if rec.Status == eventstore.StatusEnded {
		return nil, fmt.Errorf("session: join %q: %w", code, ErrSessionEnded)
	}
	return m.start(rec), nil
}

// Get returns the live session with the given ID, if any.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// End finishes a session: it generates the Shine Report, tears down the
// runtime, and marks the registry record ended. Report generation is
// best-effort; a failure there is logged and End proceeds with a nil report.
//
// Ending a session that is not live returns [eventstore.ErrSessionNotFound].
func (m *Manager) End(ctx context.Context, sessionID string) (*analyzer.Report, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("session: end %q: %w", sessionID, eventstore.ErrSessionNotFound)
	}

	// Reflect on the session before the runtime stops feeding it.
	rep, err := m.reports.Generate(ctx, s.evlog)
	if err != nil {
		m.log.Warn("report generation failed", "session_id", sessionID, "error", err)
		rep = nil
	}

	s.close()

	if err := m.registry.UpdateSessionStatus(ctx, sessionID, eventstore.StatusEnded); err != nil {
		return rep, fmt.Errorf("session: end %q: mark ended: %w", sessionID, err)
	}

	m.log.Info("session ended", "session_id", sessionID, "code", s.rec.Code)
	return rep, nil
}

// Shutdown stops every live runtime without ending the sessions; their
// registry records stay active so a restarted process can resume them via
// Join.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = nil
	m.mu.Unlock()

	for id, s := range sessions {
		s.close()
		m.log.Info("session runtime stopped", "session_id", id)
	}
}

// start builds (or returns) the runtime for a registry record.
func (m *Manager) start(rec eventstore.Session) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[rec.ID]; ok {
		return s
	}

	s := &Session{
		rec:        rec,
		evlog:      eventlog.New(m.store, rec.ID, m.viewLimit, m.log),
		recent:     NewRecentSpeech(),
		overlaps:   make(chan event.InterruptionPayload, overlapBuffer),
		appendDone: make(chan struct{}),
		log:        m.log.With("session_id", rec.ID),
	}
	s.detector = detect.New(m.detectCfg, s.onOverlap, m.log)
	s.scheduler = analysis.New(m.schedCfg, m.provider, s.evlog, m.log)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.scheduler.Start(ctx)
	go s.appendOverlaps()

	if m.sessions == nil {
		m.sessions = make(map[string]*Session)
	}
	m.sessions[rec.ID] = s
	return s
}

// Session is the live runtime of one meeting session.
type Session struct {
	rec        eventstore.Session
	evlog      *eventlog.Log
	recent     *RecentSpeech
	detector   *detect.Detector
	scheduler  *analysis.Scheduler
	overlaps   chan event.InterruptionPayload
	appendDone chan struct{}
	cancel     context.CancelFunc
	log        *slog.Logger

	closeOnce sync.Once
}

// Info returns the session's registry record.
func (s *Session) Info() eventstore.Session { return s.rec }

// Log returns the session's event log.
func (s *Session) Log() *eventlog.Log { return s.evlog }

// AppendTranscript records one transcript chunk. A zero timestamp uses the
// wall clock and an empty source defaults to the microphone. The chunk also
// feeds the recent-speech buffer used for interruption attribution.
func (s *Session) AppendTranscript(ctx context.Context, p event.TranscriptChunkPayload) (event.Event, error) {
	if strings.TrimSpace(p.Text) == "" {
		return event.Event{}, fmt.Errorf("session: empty transcript text")
	}
	if p.TS.IsZero() {
		p.TS = time.Now().UTC()
	}
	if p.Source == "" {
		p.Source = event.SourceMic
	}

	e, err := s.evlog.AppendPayload(ctx, event.TypeTranscriptChunk, p)
	if err != nil {
		return event.Event{}, err
	}
	s.recent.Add(speakerName(p), p.Text, p.TS)
	return e, nil
}

// ProcessFrame feeds one audio energy frame to the overlap detector.
func (s *Session) ProcessFrame(f detect.Frame) {
	s.detector.ProcessFrame(f)
}

// TriggerAnalysis starts a manual analysis over the full transcript. It
// reports false when one is already in flight.
func (s *Session) TriggerAnalysis(ctx context.Context) bool {
	return s.scheduler.TriggerNow(ctx)
}

// onOverlap turns a detector signal into an interruption payload, attributed
// to whatever idea was on the table when the overlap fired, and hands it to
// the append worker. The detector invokes this on the frame path, so the store
// write must not happen here; a full buffer drops the signal rather than
// stalling frame processing.
func (s *Session) onOverlap(sig detect.Signal) {
	p := event.InterruptionPayload{
		Timestamp:       sig.At,
		Confidence:      sig.Confidence,
		InterruptedIdea: s.recent.CurrentIdea(),
	}
	select {
	case s.overlaps <- p:
	default:
		s.log.Warn("interruption buffer full, dropping signal", "at", sig.At)
	}
}

// appendOverlaps drains queued interruption payloads into the event log. It
// runs until close drains the buffer and closes the channel.
func (s *Session) appendOverlaps() {
	defer close(s.appendDone)
	for p := range s.overlaps {
		// Append failure is already logged by the event log; the signal is
		// lost but the meeting carries on.
		_, _ = s.evlog.AppendPayload(context.Background(), event.TypeInterruption, p)
	}
}

// close tears down the runtime. Safe to call multiple times; an analysis that
// is already in flight is left to finish. Interruptions queued before the
// detector stopped are flushed to the log before close returns.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.scheduler.Stop()
		s.detector.Stop()
		// Stop has returned, so no further onOverlap can run.
		close(s.overlaps)
		<-s.appendDone
		s.cancel()
	})
}

// speakerName picks the buffer label for a transcript chunk.
func speakerName(p event.TranscriptChunkPayload) string {
	if p.SpeakerLabel != "" {
		return p.SpeakerLabel
	}
	return p.SpeakerID
}
