// Package report assembles the end-of-session Shine Report: a short summary
// of the meeting plus one moment per participant worth crediting out loud.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shinelabs/shine/internal/analysis"
	"github.com/shinelabs/shine/internal/eventlog"
	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

// ErrEmptySession is returned when a report is requested for a session whose
// log holds no transcript.
var ErrEmptySession = errors.New("report: session has no transcript")

// ErrNoProvider is returned when no analyzer provider is configured.
var ErrNoProvider = errors.New("report: no analyzer provider configured")

// Generator produces Shine Reports from a session's event log.
type Generator struct {
	provider analyzer.Provider
	log      *slog.Logger
}

// New creates a Generator backed by the given analyzer.
func New(provider analyzer.Provider, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		provider: provider,
		log:      log.With("component", "report"),
	}
}

// Generate refreshes the log, renders the full bounded transcript and the
// nudges surfaced during the session, and asks the analyzer to reflect on
// them. A stale view is used as-is when the refresh fails; the report is
// best-effort by nature.
func (g *Generator) Generate(ctx context.Context, evlog *eventlog.Log) (*analyzer.Report, error) {
	if g.provider == nil {
		return nil, ErrNoProvider
	}

	view, err := evlog.Refresh(ctx)
	if err != nil {
		g.log.Warn("refresh failed, reporting from last view",
			"session_id", evlog.SessionID(), "error", err)
	}

	transcript := analysis.BuildCorpus(view, time.Time{})
	if transcript == "" {
		return nil, ErrEmptySession
	}

	rep, err := g.provider.Reflect(ctx, analyzer.ReflectRequest{
		Transcript: transcript,
		Nudges:     nudges(view),
	})
	if err != nil {
		return nil, fmt.Errorf("report: reflect: %w", err)
	}
	return rep, nil
}

// nudges decodes the nudge events of view in order.
func nudges(view []event.Event) []event.NudgePayload {
	var out []event.NudgePayload
	for _, e := range event.FilterType(view, event.TypeNudge) {
		var p event.NudgePayload
		if err := event.DecodePayload(e, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
