// Package eventstore defines the storage contract behind the Shine event log:
// an append/query primitive for session events plus an optional change feed.
//
// Two implementations ship with Shine:
//
//   - [github.com/shinelabs/shine/pkg/eventstore/postgres] — durable store on
//     PostgreSQL with a LISTEN/NOTIFY change feed (push delivery).
//   - [github.com/shinelabs/shine/pkg/eventstore/memstore] — in-process store
//     with a subscriber change feed, for storeless deployments and tests.
//
// The notifier selects push delivery when the configured store also satisfies
// [ChangeFeed] and falls back to polling otherwise; consumers of the event
// log cannot tell the difference.
//
// Implementations must be safe for concurrent use.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shinelabs/shine/pkg/event"
)

// ErrUnavailable indicates the backing store cannot be reached for a read or
// write. Callers decide whether to retry, buffer, or drop; the event log
// never surfaces this to consumers as anything stronger than a warning.
var ErrUnavailable = errors.New("eventstore: store unavailable")

// ErrCodeTaken is returned by [SessionRegistry.CreateSession] when the
// requested session code is already in use.
var ErrCodeTaken = errors.New("eventstore: session code already taken")

// ErrSessionNotFound is returned when no session matches the given code or ID.
var ErrSessionNotFound = errors.New("eventstore: session not found")

// Store is the append/query primitive the event log builds on.
type Store interface {
	// Append persists a new event and returns it with the store-assigned
	// ID and CreatedAt, which are authoritative for ordering. Returns an
	// error wrapping [ErrUnavailable] when the store cannot accept writes.
	Append(ctx context.Context, sessionID string, typ event.Type, payload json.RawMessage) (event.Event, error)

	// Query returns up to limit of the newest events for the session, in no
	// particular order; callers run the result through [event.Merge].
	// Returns an empty (non-nil) slice when the session has no events.
	Query(ctx context.Context, sessionID string, limit int) ([]event.Event, error)
}

// ChangeFeed is implemented by stores that can push "something changed"
// signals, sparing the notifier its polling fallback.
type ChangeFeed interface {
	// Changes returns a channel that receives a signal whenever the session's
	// event set may have changed, together with a cancel function that
	// releases the subscription. Signals are coalesced: rapid writes may
	// collapse into one signal, but a write is never silently dropped such
	// that no signal follows it. The channel is closed after cancel is
	// called or ctx is done.
	Changes(ctx context.Context, sessionID string) (<-chan struct{}, func(), error)
}

// Session status values.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Session is a registry record for one meeting session.
type Session struct {
	// ID is the opaque unique session identifier.
	ID string `json:"id"`

	// Code is the human-friendly WORD-NUMBER join code, unique among
	// sessions.
	Code string `json:"code"`

	// HostName is the display name of the participant who opened the session.
	HostName string `json:"host_name"`

	// Status is one of [StatusActive] or [StatusEnded].
	Status string `json:"status"`

	// CreatedAt is when the session was opened.
	CreatedAt time.Time `json:"created_at"`
}

// SessionRegistry stores session records keyed by their join code.
type SessionRegistry interface {
	// CreateSession registers a new active session under code. Returns an
	// error wrapping [ErrCodeTaken] when the code is already in use, which
	// the caller resolves by generating a fresh code and retrying.
	CreateSession(ctx context.Context, code, hostName string) (Session, error)

	// SessionByCode looks a session up by its join code (case-insensitive).
	// Returns an error wrapping [ErrSessionNotFound] when absent.
	SessionByCode(ctx context.Context, code string) (Session, error)

	// UpdateSessionStatus sets the status of the session with the given ID.
	UpdateSessionStatus(ctx context.Context, id, status string) error
}
