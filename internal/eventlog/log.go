// Package eventlog maintains the per-session merged view of the event store.
//
// A Log wraps an [eventstore.Store] for one session. Writers go through
// Append; readers take Snapshot, which always reflects every event the log
// has seen, deduplicated and time-ordered. When the store is unreachable the
// log keeps serving its last known view, so a flaky database degrades reads
// to staleness rather than failure.
package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
)

// Log is the merged, bounded event view of a single session.
type Log struct {
	store     eventstore.Store
	sessionID string
	limit     int
	log       *slog.Logger

	mu   sync.RWMutex
	view []event.Event
}

// New creates a Log for the given session. A limit <= 0 uses
// [event.DefaultViewLimit].
func New(store eventstore.Store, sessionID string, limit int, log *slog.Logger) *Log {
	if limit <= 0 {
		limit = event.DefaultViewLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Log{
		store:     store,
		sessionID: sessionID,
		limit:     limit,
		log:       log.With("component", "eventlog", "session_id", sessionID),
	}
}

// SessionID returns the session this log belongs to.
func (l *Log) SessionID() string { return l.sessionID }

// Append persists a new event and folds it into the local view. On store
// failure the view is left untouched and the error is returned; callers treat
// it as a degraded write, not a session-fatal condition.
func (l *Log) Append(ctx context.Context, typ event.Type, payload json.RawMessage) (event.Event, error) {
	e, err := l.store.Append(ctx, l.sessionID, typ, payload)
	if err != nil {
		l.log.Warn("append failed", "type", typ, "error", err)
		return event.Event{}, err
	}

	l.mu.Lock()
	l.view = event.Merge(l.view, []event.Event{e}, l.limit)
	l.mu.Unlock()
	return e, nil
}

// AppendPayload marshals payload and appends it as an event of the given type.
func (l *Log) AppendPayload(ctx context.Context, typ event.Type, payload any) (event.Event, error) {
	raw, err := event.MarshalPayload(payload)
	if err != nil {
		return event.Event{}, err
	}
	return l.Append(ctx, typ, raw)
}

// Refresh re-queries the store and merges the result into the view. Duplicate
// and out-of-order delivery is absorbed by the merge. When the store is
// unavailable the previous view is returned alongside the error.
func (l *Log) Refresh(ctx context.Context) ([]event.Event, error) {
	fetched, err := l.store.Query(ctx, l.sessionID, l.limit)
	if err != nil {
		l.log.Warn("refresh failed, serving last view", "error", err)
		return l.Snapshot(), err
	}

	l.mu.Lock()
	l.view = event.Merge(l.view, fetched, l.limit)
	out := make([]event.Event, len(l.view))
	copy(out, l.view)
	l.mu.Unlock()
	return out, nil
}

// Snapshot returns a copy of the current merged view.
func (l *Log) Snapshot() []event.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]event.Event, len(l.view))
	copy(out, l.view)
	return out
}

// Transcript returns the transcript-chunk events of the current view, in
// chronological order.
func (l *Log) Transcript() []event.Event {
	return event.FilterType(l.Snapshot(), event.TypeTranscriptChunk)
}
