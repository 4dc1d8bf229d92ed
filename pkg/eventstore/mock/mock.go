// Package mock provides an in-memory test double for the event store
// interfaces.
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent use
// via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.Store{}
//	store.QueryResult = []event.Event{{ID: "e1"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("Query"); got != 1 {
//	    t.Errorf("expected 1 Query call, got %d", got)
//	}
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [eventstore.Store],
// [eventstore.ChangeFeed], and [eventstore.SessionRegistry]. All exported
// *Err fields default to nil (success).
type Store struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// appended counts Append calls, used to mint deterministic IDs.
	appended int

	// subs holds live change-feed subscriber channels.
	subs []chan struct{}

	// AppendErr is returned by [Store.Append] when non-nil.
	AppendErr error

	// QueryResult is returned by [Store.Query]. When nil, Query returns an
	// empty non-nil slice.
	QueryResult []event.Event

	// QueryErr is returned by [Store.Query] when non-nil.
	QueryErr error

	// ChangesErr is returned by [Store.Changes] when non-nil, simulating a
	// store whose push feed cannot be set up.
	ChangesErr error

	// CreateSessionErr is returned by [Store.CreateSession] when non-nil.
	CreateSessionErr error

	// Session is returned by [Store.SessionByCode]; its error field mirrors
	// SessionByCodeErr.
	Session eventstore.Session

	// SessionByCodeErr is returned by [Store.SessionByCode] when non-nil.
	SessionByCodeErr error

	// UpdateStatusErr is returned by [Store.UpdateSessionStatus] when non-nil.
	UpdateStatusErr error
}

// Compile-time interface checks.
var (
	_ eventstore.Store           = (*Store)(nil)
	_ eventstore.ChangeFeed      = (*Store)(nil)
	_ eventstore.SessionRegistry = (*Store)(nil)
)

// SetQueryResult swaps the configured Query response under the mock's lock,
// for tests that reconfigure the store while a subscriber goroutine is live.
func (m *Store) SetQueryResult(events []event.Event, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryResult = events
	m.QueryErr = err
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Append implements [eventstore.Store]. On success it returns an event with a
// deterministic ID ("mock-1", "mock-2", …) and the current time, and signals
// any change-feed subscribers.
func (m *Store) Append(_ context.Context, sessionID string, typ event.Type, payload json.RawMessage) (event.Event, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: "Append", Args: []any{sessionID, typ, payload}})
	if m.AppendErr != nil {
		m.mu.Unlock()
		return event.Event{}, m.AppendErr
	}
	m.appended++
	e := event.Event{
		ID:        fmt.Sprintf("mock-%d", m.appended),
		SessionID: sessionID,
		Type:      typ,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	subs := append([]chan struct{}(nil), m.subs...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return e, nil
}

// Query implements [eventstore.Store].
func (m *Store) Query(_ context.Context, sessionID string, limit int) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Query", Args: []any{sessionID, limit}})
	if m.QueryResult == nil {
		return []event.Event{}, m.QueryErr
	}
	out := make([]event.Event, len(m.QueryResult))
	copy(out, m.QueryResult)
	return out, m.QueryErr
}

// Changes implements [eventstore.ChangeFeed].
func (m *Store) Changes(_ context.Context, sessionID string) (<-chan struct{}, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Changes", Args: []any{sessionID}})
	if m.ChangesErr != nil {
		return nil, nil, m.ChangesErr
	}

	ch := make(chan struct{}, 1)
	m.subs = append(m.subs, ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, c := range m.subs {
				if c == ch {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Signal wakes all live change-feed subscribers, simulating an external
// append.
func (m *Store) Signal() {
	m.mu.Lock()
	subs := append([]chan struct{}(nil), m.subs...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CreateSession implements [eventstore.SessionRegistry].
func (m *Store) CreateSession(_ context.Context, code, hostName string) (eventstore.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "CreateSession", Args: []any{code, hostName}})
	if m.CreateSessionErr != nil {
		return eventstore.Session{}, m.CreateSessionErr
	}
	return eventstore.Session{
		ID:        "mock-session",
		Code:      code,
		HostName:  hostName,
		Status:    eventstore.StatusActive,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SessionByCode implements [eventstore.SessionRegistry].
func (m *Store) SessionByCode(_ context.Context, code string) (eventstore.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SessionByCode", Args: []any{code}})
	return m.Session, m.SessionByCodeErr
}

// UpdateSessionStatus implements [eventstore.SessionRegistry].
func (m *Store) UpdateSessionStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "UpdateSessionStatus", Args: []any{id, status}})
	return m.UpdateStatusErr
}
