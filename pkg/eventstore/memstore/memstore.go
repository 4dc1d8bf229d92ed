// Package memstore provides an in-process implementation of the Shine event
// store with a push change feed. It backs storeless deployments (demo mode)
// and tests; events survive only as long as the process.
package memstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
)

// Compile-time interface checks.
var (
	_ eventstore.Store           = (*Store)(nil)
	_ eventstore.ChangeFeed      = (*Store)(nil)
	_ eventstore.SessionRegistry = (*Store)(nil)
)

// Store is a thread-safe, in-memory [eventstore.Store] with a change feed.
type Store struct {
	// now is the clock used for assigned timestamps. Tests may override it.
	now func() time.Time

	mu       sync.RWMutex
	events   map[string][]event.Event // session ID -> events, insertion order
	sessions map[string]eventstore.Session
	subs     map[string][]chan struct{}
}

// NewStore returns an initialised Store.
func NewStore() *Store {
	return &Store{
		now:      time.Now,
		events:   make(map[string][]event.Event),
		sessions: make(map[string]eventstore.Session),
		subs:     make(map[string][]chan struct{}),
	}
}

// Append implements [eventstore.Store.Append]. The assigned timestamp is the
// current wall clock; IDs are random and statistically unique.
func (s *Store) Append(ctx context.Context, sessionID string, typ event.Type, payload json.RawMessage) (event.Event, error) {
	if !typ.IsValid() {
		return event.Event{}, fmt.Errorf("memstore: append: unknown event type %q", typ)
	}
	id, err := generateID()
	if err != nil {
		return event.Event{}, fmt.Errorf("memstore: generate id: %w", err)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	e := event.Event{
		ID:        id,
		SessionID: sessionID,
		Type:      typ,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.events[sessionID] = append(s.events[sessionID], e)
	subs := append([]chan struct{}(nil), s.subs[sessionID]...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return e, nil
}

// Query implements [eventstore.Store.Query], returning up to limit of the
// newest events for the session.
func (s *Store) Query(ctx context.Context, sessionID string, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = event.DefaultViewLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[sessionID]
	start := 0
	if len(all) > limit {
		start = len(all) - limit
	}
	out := make([]event.Event, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

// Changes implements [eventstore.ChangeFeed.Changes]. Signals coalesce in a
// one-slot buffer per subscriber.
func (s *Store) Changes(ctx context.Context, sessionID string) (<-chan struct{}, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[sessionID] = append(s.subs[sessionID], ch)
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			chans := s.subs[sessionID]
			for i, c := range chans {
				if c == ch {
					s.subs[sessionID] = append(chans[:i:i], chans[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}

	stop := context.AfterFunc(ctx, cancel)
	return ch, func() { stop(); cancel() }, nil
}

// CreateSession implements [eventstore.SessionRegistry.CreateSession].
func (s *Store) CreateSession(ctx context.Context, code, hostName string) (eventstore.Session, error) {
	id, err := generateID()
	if err != nil {
		return eventstore.Session{}, fmt.Errorf("memstore: generate id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(code)
	for _, sess := range s.sessions {
		if strings.ToLower(sess.Code) == key {
			return eventstore.Session{}, fmt.Errorf("memstore: create session: %w: %q", eventstore.ErrCodeTaken, code)
		}
	}

	sess := eventstore.Session{
		ID:        id,
		Code:      code,
		HostName:  hostName,
		Status:    eventstore.StatusActive,
		CreatedAt: s.now().UTC(),
	}
	s.sessions[id] = sess
	return sess, nil
}

// SessionByCode implements [eventstore.SessionRegistry.SessionByCode].
func (s *Store) SessionByCode(ctx context.Context, code string) (eventstore.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(code))
	for _, sess := range s.sessions {
		if strings.ToLower(sess.Code) == key {
			return sess, nil
		}
	}
	return eventstore.Session{}, fmt.Errorf("memstore: %w: code %q", eventstore.ErrSessionNotFound, code)
}

// UpdateSessionStatus implements [eventstore.SessionRegistry.UpdateSessionStatus].
func (s *Store) UpdateSessionStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("memstore: %w: id %q", eventstore.ErrSessionNotFound, id)
	}
	sess.Status = status
	s.sessions[id] = sess
	return nil
}

// generateID produces a random 16-byte hex string using crypto/rand.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
