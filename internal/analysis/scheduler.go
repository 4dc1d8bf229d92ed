// Package analysis drives the periodic nudge analysis of a session.
//
// A Scheduler wakes on a fixed cadence, builds a transcript corpus from the
// session's event log, and hands it to the configured analyzer. At most one
// analysis is in flight at any time; a cadence tick or manual trigger that
// lands while one is running is dropped, not queued. Successful findings are
// appended to the event log as nudge events.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shinelabs/shine/internal/eventlog"
	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

// DefaultCadence is the default period between scheduled analysis runs.
const DefaultCadence = 4 * time.Minute

// Config configures a [Scheduler].
type Config struct {
	// Cadence is how often a scheduled analysis fires. The first run happens
	// one full cadence after Start, never immediately. Defaults to
	// [DefaultCadence] if zero.
	Cadence time.Duration `yaml:"cadence"`

	// Window is how far back a scheduled run reads the transcript. Defaults
	// to Cadence if zero; manual triggers always read the full bounded
	// transcript.
	Window time.Duration `yaml:"window"`
}

// Scheduler owns the analysis cadence for one session.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	cfg      Config
	provider analyzer.Provider
	evlog    *eventlog.Log
	log      *slog.Logger
	now      func() time.Time

	inFlight atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler for the given log and analyzer.
func New(cfg Config, provider analyzer.Provider, evlog *eventlog.Log, log *slog.Logger) *Scheduler {
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.Cadence
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		provider: provider,
		evlog:    evlog,
		log:      log.With("component", "analysis", "session_id", evlog.SessionID()),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins the cadence loop in a background goroutine. The loop runs
// until [Scheduler.Stop] is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the cadence loop. Safe to call multiple times. An analysis that
// is already in flight is left to finish; no new one starts.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// TriggerNow starts a manual analysis over the full bounded transcript. It
// reports false when an analysis is already in flight (the trigger is
// dropped) and blocks until the run completes otherwise.
func (s *Scheduler) TriggerNow(ctx context.Context) bool {
	return s.analyze(ctx, 0)
}

// loop runs the cadence ticker. Scheduled runs execute in their own
// goroutine so a slow analyzer never blocks the ticker or Stop.
func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			go s.analyze(context.WithoutCancel(ctx), s.cfg.Window)
		}
	}
}

// analyze runs one analysis pass. window == 0 means the full bounded
// transcript. Returns false when another analysis was already in flight.
func (s *Scheduler) analyze(ctx context.Context, window time.Duration) bool {
	if s.provider == nil {
		s.log.Debug("no analyzer provider configured, skipping analysis")
		return true
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug("analysis already in flight, dropping trigger")
		return false
	}
	defer s.inFlight.Store(false)

	req, ok := s.buildRequest(ctx, window)
	if !ok {
		s.log.Debug("analysis window empty, skipping")
		return true
	}

	nudges, err := s.provider.Analyze(ctx, req)
	if err != nil {
		s.log.Warn("analysis failed", "error", err)
		return true
	}
	if len(nudges) == 0 {
		s.log.Debug("analysis found nothing to surface")
		return true
	}

	for _, nudge := range nudges {
		if _, err := s.evlog.AppendPayload(ctx, event.TypeNudge, &nudge); err != nil {
			s.log.Warn("nudge append failed", "title", nudge.Title, "error", err)
			continue
		}
		s.log.Info("nudge surfaced", "title", nudge.Title, "confidence", nudge.Confidence)
	}
	return true
}

// buildRequest assembles the analyzer request from the event log. ok is false
// when the selected window holds no transcript. The view is refreshed from
// the store first so a freshly rebuilt runtime still sees the durable
// transcript; on refresh failure the last local view is used.
func (s *Scheduler) buildRequest(ctx context.Context, window time.Duration) (analyzer.AnalyzeRequest, bool) {
	var since time.Time
	if window > 0 {
		since = s.now().Add(-window)
	}

	view, err := s.evlog.Refresh(ctx)
	if err != nil {
		s.log.Warn("refresh failed, analyzing last view", "error", err)
	}
	transcript := BuildCorpus(view, since)
	if transcript == "" {
		return analyzer.AnalyzeRequest{}, false
	}

	return analyzer.AnalyzeRequest{
		Transcript:    transcript,
		Interruptions: interruptionsSince(view, since),
		WindowMinutes: int(window / time.Minute),
	}, true
}

// BuildCorpus renders the transcript chunks of view at or after since (zero
// means all) into one "Speaker: text" line per chunk.
func BuildCorpus(view []event.Event, since time.Time) string {
	var b strings.Builder
	for _, e := range event.FilterType(view, event.TypeTranscriptChunk) {
		if !since.IsZero() && e.CreatedAt.Before(since) {
			continue
		}
		var p event.TranscriptChunkPayload
		if err := event.DecodePayload(e, &p); err != nil || strings.TrimSpace(p.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", speakerLabel(p), strings.TrimSpace(p.Text))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// interruptionsSince collects interruption payloads from view at or after
// since, oldest first.
func interruptionsSince(view []event.Event, since time.Time) []analyzer.InterruptionContext {
	var out []analyzer.InterruptionContext
	for _, e := range event.FilterType(view, event.TypeInterruption) {
		if !since.IsZero() && e.CreatedAt.Before(since) {
			continue
		}
		var p event.InterruptionPayload
		if err := event.DecodePayload(e, &p); err != nil {
			continue
		}
		out = append(out, analyzer.InterruptionContext{
			At:              p.Timestamp,
			Confidence:      p.Confidence,
			InterruptedIdea: p.InterruptedIdea,
		})
	}
	return out
}

// speakerLabel picks the display label for a transcript chunk.
func speakerLabel(p event.TranscriptChunkPayload) string {
	switch {
	case p.SpeakerLabel != "":
		return p.SpeakerLabel
	case p.SpeakerID != "":
		return p.SpeakerID
	default:
		return "Speaker"
	}
}
