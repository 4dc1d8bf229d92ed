package postgres

import (
	"context"
	"testing"
)

func TestListener_ChangesDispatch(t *testing.T) {
	t.Parallel()

	l := NewListener(nil, nil)

	ch, cancel, err := l.Changes(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Changes() unexpected error: %v", err)
	}
	defer cancel()

	other, cancelOther, err := l.Changes(context.Background(), "s2")
	if err != nil {
		t.Fatalf("Changes() unexpected error: %v", err)
	}
	defer cancelOther()

	l.dispatch("s1")

	select {
	case <-ch:
	default:
		t.Fatal("subscriber for s1 received no signal")
	}
	select {
	case <-other:
		t.Fatal("subscriber for s2 received a foreign signal")
	default:
	}
}

func TestListener_SignalsCoalesce(t *testing.T) {
	t.Parallel()

	l := NewListener(nil, nil)
	ch, cancel, err := l.Changes(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Changes() unexpected error: %v", err)
	}
	defer cancel()

	// A burst of appends without a consumer must collapse into one pending
	// signal instead of blocking the dispatcher.
	for i := 0; i < 10; i++ {
		l.dispatch("s1")
	}

	<-ch
	select {
	case <-ch:
		t.Fatal("burst produced more than one pending signal")
	default:
	}
}

func TestListener_CancelIsIdempotentAndSynchronous(t *testing.T) {
	t.Parallel()

	l := NewListener(nil, nil)
	ch, cancel, err := l.Changes(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Changes() unexpected error: %v", err)
	}

	cancel()
	cancel() // second call must be a no-op

	// After cancel returns, dispatch must not deliver and the channel must
	// be closed.
	l.dispatch("s1")
	if _, ok := <-ch; ok {
		t.Error("received a signal after cancel returned")
	}
}

func TestListener_ContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	l := NewListener(nil, nil)
	ctx, cancelCtx := context.WithCancel(context.Background())

	ch, cancel, err := l.Changes(ctx, "s1")
	if err != nil {
		t.Fatalf("Changes() unexpected error: %v", err)
	}
	defer cancel()

	cancelCtx()

	// AfterFunc runs asynchronously; the closed channel is the observable
	// outcome.
	for range ch {
	}

	l.mu.Lock()
	remaining := len(l.subs["s1"])
	l.mu.Unlock()
	if remaining != 0 {
		t.Errorf("subscriber still registered after context cancel: %d", remaining)
	}
}

func TestListener_StopWithoutStart(t *testing.T) {
	t.Parallel()

	l := NewListener(nil, nil)
	ch, _, err := l.Changes(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Changes() unexpected error: %v", err)
	}

	l.Stop()
	l.Stop() // idempotent

	if _, ok := <-ch; ok {
		t.Error("subscriber channel not closed by Stop")
	}
}
