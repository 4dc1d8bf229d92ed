// Package postgres implements the Shine event store on PostgreSQL.
//
// Events and sessions live in two tables; the server assigns event IDs and
// timestamps so that ordering is consistent across producers. Every append
// fires a NOTIFY on [NotifyChannel], which [Listener] turns into per-session
// change signals for push delivery.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
)

// Schema is the SQL DDL for the events and sessions tables. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    code       TEXT NOT NULL,
    host_name  TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_code ON sessions(lower(code));

CREATE TABLE IF NOT EXISTS events (
    id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    session_id TEXT NOT NULL,
    type       TEXT NOT NULL,
    payload    JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_events_session_created ON events(session_id, created_at);
`

// NotifyChannel is the PostgreSQL NOTIFY channel carrying append signals.
// The notification payload is the session ID of the appended event.
const NotifyChannel = "shine_events"

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is an [eventstore.Store] and [eventstore.SessionRegistry] backed by
// PostgreSQL. When built with [Connect] it additionally serves an
// [eventstore.ChangeFeed] from a LISTEN/NOTIFY subscription.
type Store struct {
	db       DB
	pool     *pgxpool.Pool // nil when constructed via NewStore
	listener *Listener     // nil when constructed via NewStore
}

// Compile-time interface checks.
var (
	_ eventstore.Store           = (*Store)(nil)
	_ eventstore.SessionRegistry = (*Store)(nil)
	_ eventstore.ChangeFeed      = (*Store)(nil)
)

// NewStore creates a Store on the given database connection or pool. The
// caller is responsible for calling [Store.Migrate] before issuing queries.
// Stores built this way have no change feed; [Store.Changes] reports an
// error and the notifier falls back to polling.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Connect establishes a connection pool to the database at dsn, runs the
// schema migration, and starts the LISTEN/NOTIFY listener so the store can
// serve push change feeds. Call [Store.Close] when done.
func Connect(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore: ping: %w", err)
	}

	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.listener = NewListener(pool, log)
	if err := s.listener.Start(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore: start listener: %w", err)
	}
	return s, nil
}

// Migrate executes the [Schema] DDL against the database, creating the
// sessions and events tables if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("eventstore: migrate: %w", err)
	}
	return nil
}

// Close stops the listener and releases the connection pool. It is a no-op
// for stores built with [NewStore].
func (s *Store) Close() {
	if s.listener != nil {
		s.listener.Stop()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies database connectivity. Stores built with [NewStore] have no
// pool of their own and always report healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Append persists a new event and returns it with the server-assigned ID and
// timestamp, then fires a NOTIFY so listening subscribers learn about the
// append without polling.
func (s *Store) Append(ctx context.Context, sessionID string, typ event.Type, payload json.RawMessage) (event.Event, error) {
	if !typ.IsValid() {
		return event.Event{}, fmt.Errorf("eventstore: append: unknown event type %q", typ)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	const query = `
		INSERT INTO events (session_id, type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	e := event.Event{SessionID: sessionID, Type: typ, Payload: payload}
	err := s.db.QueryRow(ctx, query, sessionID, string(typ), payload).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return event.Event{}, fmt.Errorf("eventstore: append: %w: %w", eventstore.ErrUnavailable, err)
	}

	// The write is already durable; a failed NOTIFY only delays delivery
	// until the next poll or signal.
	_, _ = s.db.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, sessionID)

	return e, nil
}

// Query returns up to limit of the newest events for the session. The result
// is in reverse insertion order; callers re-order via [event.Merge].
func (s *Store) Query(ctx context.Context, sessionID string, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = event.DefaultViewLimit
	}

	const query = `
		SELECT id, session_id, type, payload, created_at
		FROM events
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("eventstore: query: %w: %w", eventstore.ErrUnavailable, err)
	}
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var (
			e       event.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &typ, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("eventstore: query scan: %w", err)
		}
		e.Type = event.Type(typ)
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: query: %w: %w", eventstore.ErrUnavailable, err)
	}
	return events, nil
}

// Changes subscribes to append signals for the session. It reports an error
// for stores built with [NewStore], which have no listener.
func (s *Store) Changes(ctx context.Context, sessionID string) (<-chan struct{}, func(), error) {
	if s.listener == nil {
		return nil, nil, errors.New("eventstore: change feed not available without a listener")
	}
	return s.listener.Changes(ctx, sessionID)
}

// CreateSession registers a new active session under code.
func (s *Store) CreateSession(ctx context.Context, code, hostName string) (eventstore.Session, error) {
	const query = `
		INSERT INTO sessions (code, host_name)
		VALUES ($1, $2)
		RETURNING id, status, created_at`

	sess := eventstore.Session{Code: code, HostName: hostName}
	err := s.db.QueryRow(ctx, query, code, hostName).Scan(&sess.ID, &sess.Status, &sess.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return eventstore.Session{}, fmt.Errorf("eventstore: create session: %w: %q", eventstore.ErrCodeTaken, code)
		}
		return eventstore.Session{}, fmt.Errorf("eventstore: create session: %w: %w", eventstore.ErrUnavailable, err)
	}
	return sess, nil
}

// SessionByCode looks a session up by its join code, case-insensitively.
func (s *Store) SessionByCode(ctx context.Context, code string) (eventstore.Session, error) {
	const query = `
		SELECT id, code, host_name, status, created_at
		FROM sessions
		WHERE lower(code) = lower($1)`

	var sess eventstore.Session
	err := s.db.QueryRow(ctx, query, strings.TrimSpace(code)).Scan(
		&sess.ID, &sess.Code, &sess.HostName, &sess.Status, &sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eventstore.Session{}, fmt.Errorf("eventstore: %w: code %q", eventstore.ErrSessionNotFound, code)
		}
		return eventstore.Session{}, fmt.Errorf("eventstore: session by code: %w: %w", eventstore.ErrUnavailable, err)
	}
	return sess, nil
}

// UpdateSessionStatus sets the status of the session with the given ID.
func (s *Store) UpdateSessionStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE sessions SET status = $2 WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("eventstore: update session status: %w: %w", eventstore.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("eventstore: %w: id %q", eventstore.ErrSessionNotFound, id)
	}
	return nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
