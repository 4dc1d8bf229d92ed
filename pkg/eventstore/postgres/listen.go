package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// reconnectDelay is how long the listener waits before re-acquiring a
// connection after the LISTEN connection drops.
const reconnectDelay = time.Second

// Listener holds a dedicated LISTEN connection and fans incoming NOTIFY
// payloads out to per-session subscribers. Signals are coalesced per
// subscriber: a slow consumer sees at least one signal for any burst of
// appends, never a backlog.
type Listener struct {
	pool *pgxpool.Pool
	log  *slog.Logger

	mu   sync.Mutex
	subs map[string][]chan struct{} // session ID -> subscriber channels

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewListener creates a Listener on the given pool. Call [Listener.Start] to
// begin receiving notifications.
func NewListener(pool *pgxpool.Pool, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		pool: pool,
		log:  log.With("component", "eventstore.listener"),
		subs: make(map[string][]chan struct{}),
		done: make(chan struct{}),
	}
}

// Start verifies that a LISTEN connection can be established and launches the
// background receive loop. The loop re-acquires its connection on failure and
// runs until [Listener.Stop] is called.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := l.listen(ctx)
	if err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	go l.run(loopCtx, conn)
	return nil
}

// Stop terminates the receive loop and closes all subscriber channels. It is
// safe to call multiple times.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
			<-l.done
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		for _, chans := range l.subs {
			for _, ch := range chans {
				close(ch)
			}
		}
		l.subs = make(map[string][]chan struct{})
	})
}

// Changes registers a subscriber for the session's append signals. The cancel
// function is idempotent and synchronous: after it returns, no further signal
// is delivered and the channel is closed.
func (l *Listener) Changes(ctx context.Context, sessionID string) (<-chan struct{}, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.subs[sessionID] = append(l.subs[sessionID], ch)
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			chans := l.subs[sessionID]
			for i, c := range chans {
				if c == ch {
					l.subs[sessionID] = append(chans[:i:i], chans[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}

	stop := context.AfterFunc(ctx, cancel)
	return ch, func() { stop(); cancel() }, nil
}

// listen acquires a dedicated connection and subscribes it to [NotifyChannel].
func (l *Listener) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, err
	}
	return conn, nil
}

// run is the receive loop. It blocks on WaitForNotification and dispatches
// each payload (a session ID) to that session's subscribers.
func (l *Listener) run(ctx context.Context, conn *pgxpool.Conn) {
	defer close(l.done)
	defer func() {
		if conn != nil {
			conn.Release()
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			var err error
			conn, err = l.listen(ctx)
			if err != nil {
				l.log.Warn("relisten failed", "error", err)
				continue
			}
			// The connection may have missed notifications while down;
			// wake every subscriber so they re-query.
			l.broadcast()
		}

		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn("listen connection lost", "error", err)
			conn.Release()
			conn = nil
			continue
		}
		l.dispatch(n.Payload)
	}
}

// dispatch signals all subscribers of the given session. Sends are
// non-blocking; a full buffer means a signal is already pending.
func (l *Listener) dispatch(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs[sessionID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// broadcast signals every subscriber regardless of session.
func (l *Listener) broadcast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, chans := range l.subs {
		for _, ch := range chans {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}
