// Package notify delivers event-log updates to in-process subscribers.
//
// A subscription prefers push delivery: when the store implements
// [eventstore.ChangeFeed] and the feed can be set up, each change signal
// triggers a refresh and a callback with the merged view. When the store has
// no feed, or setting it up fails, the subscription silently falls back to
// polling the store on a fixed interval. Either way the subscriber contract
// is the same: at-least-once delivery after any append, with bursts coalesced
// into a single refresh.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shinelabs/shine/internal/eventlog"
	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
)

// DefaultPollInterval is the fallback polling cadence.
const DefaultPollInterval = time.Second

// Notifier creates subscriptions on one store.
type Notifier struct {
	store    eventstore.Store
	interval time.Duration
	log      *slog.Logger
}

// New creates a Notifier. An interval <= 0 uses [DefaultPollInterval].
func New(store eventstore.Store, interval time.Duration, log *slog.Logger) *Notifier {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		store:    store,
		interval: interval,
		log:      log.With("component", "notify"),
	}
}

// Subscribe starts delivering view updates for the given log. fn is invoked
// from a single goroutine with the merged view: once immediately after
// subscribing, then after every detected change.
//
// The returned unsubscribe function is idempotent and synchronous: once it
// returns, fn will not be invoked again.
func (n *Notifier) Subscribe(ctx context.Context, l *eventlog.Log, fn func([]event.Event)) func() {
	var (
		changes    <-chan struct{}
		cancelFeed func()
	)
	if feed, ok := n.store.(eventstore.ChangeFeed); ok {
		ch, cancel, err := feed.Changes(ctx, l.SessionID())
		if err != nil {
			n.log.Warn("push feed setup failed, falling back to polling",
				"session_id", l.SessionID(), "interval", n.interval, "error", err)
		} else {
			changes = ch
			cancelFeed = cancel
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go n.run(ctx, l, fn, changes, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			if cancelFeed != nil {
				cancelFeed()
			}
			close(stop)
			<-done
		})
	}
}

// run is the delivery loop. In push mode it waits on the change feed; in poll
// mode it ticks on the poll interval and delivers only when the view changed.
func (n *Notifier) run(ctx context.Context, l *eventlog.Log, fn func([]event.Event), changes <-chan struct{}, stop, done chan struct{}) {
	defer close(done)

	last := n.deliver(ctx, l, fn, nil, true)

	if changes != nil {
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				last = n.deliver(ctx, l, fn, last, true)
			}
		}
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			last = n.deliver(ctx, l, fn, last, false)
		}
	}
}

// deliver refreshes the log and invokes fn. In poll mode (force == false) the
// callback fires only when the view differs from last. A refresh error means
// the store is temporarily unreachable; the subscription stays alive and
// retries on the next signal or tick.
func (n *Notifier) deliver(ctx context.Context, l *eventlog.Log, fn func([]event.Event), last []event.Event, force bool) []event.Event {
	view, err := l.Refresh(ctx)
	if err != nil {
		return last
	}
	if force || viewChanged(last, view) {
		fn(view)
	}
	return view
}

// viewChanged reports whether the two views differ in their event IDs.
func viewChanged(old, new []event.Event) bool {
	if len(old) != len(new) {
		return true
	}
	for i := range old {
		if old[i].ID != new[i].ID {
			return true
		}
	}
	return false
}
