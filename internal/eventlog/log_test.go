package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
	"github.com/shinelabs/shine/pkg/eventstore/mock"
)

func TestLog_AppendUpdatesView(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	l := New(store, "s1", 0, nil)

	e, err := l.Append(context.Background(), event.TypeTranscriptChunk, []byte(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}

	view := l.Snapshot()
	if len(view) != 1 || view[0].ID != e.ID {
		t.Errorf("view = %+v, want the appended event", view)
	}
	if store.CallCount("Append") != 1 {
		t.Errorf("store Append calls = %d, want 1", store.CallCount("Append"))
	}
}

func TestLog_AppendFailureLeavesViewIntact(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	l := New(store, "s1", 0, nil)
	if _, err := l.Append(context.Background(), event.TypeTranscriptChunk, nil); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}

	store.AppendErr = eventstore.ErrUnavailable
	_, err := l.Append(context.Background(), event.TypeNudge, nil)
	if !errors.Is(err, eventstore.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}

	if got := len(l.Snapshot()); got != 1 {
		t.Errorf("view size = %d, want 1 after failed append", got)
	}
}

func TestLog_RefreshMergesDuplicatesAndStragglers(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mk := func(id string, offset int) event.Event {
		return event.Event{
			ID:        id,
			SessionID: "s1",
			Type:      event.TypeTranscriptChunk,
			CreatedAt: base.Add(time.Duration(offset) * time.Second),
		}
	}

	store := &mock.Store{QueryResult: []event.Event{mk("b", 2), mk("a", 1)}}
	l := New(store, "s1", 0, nil)

	view, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() unexpected error: %v", err)
	}
	if len(view) != 2 || view[0].ID != "a" || view[1].ID != "b" {
		t.Fatalf("view not time-ordered: %+v", view)
	}

	// Second refresh delivers one duplicate and one straggler older than the
	// view head; the merge absorbs both.
	store.QueryResult = []event.Event{mk("b", 2), mk("c", 0)}
	view, err = l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() unexpected error: %v", err)
	}
	if len(view) != 3 || view[0].ID != "c" {
		t.Errorf("straggler not merged in order: %+v", view)
	}
}

func TestLog_RefreshFailureServesLastView(t *testing.T) {
	t.Parallel()

	store := &mock.Store{QueryResult: []event.Event{{ID: "a", Type: event.TypeTranscriptChunk}}}
	l := New(store, "s1", 0, nil)
	if _, err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() unexpected error: %v", err)
	}

	store.QueryErr = eventstore.ErrUnavailable
	view, err := l.Refresh(context.Background())
	if !errors.Is(err, eventstore.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if len(view) != 1 || view[0].ID != "a" {
		t.Errorf("degraded refresh lost the last view: %+v", view)
	}
}

func TestLog_Transcript(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	store := &mock.Store{QueryResult: []event.Event{
		{ID: "t1", Type: event.TypeTranscriptChunk, CreatedAt: base},
		{ID: "n1", Type: event.TypeNudge, CreatedAt: base.Add(time.Second)},
		{ID: "t2", Type: event.TypeTranscriptChunk, CreatedAt: base.Add(2 * time.Second)},
	}}
	l := New(store, "s1", 0, nil)
	if _, err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() unexpected error: %v", err)
	}

	tr := l.Transcript()
	if len(tr) != 2 || tr[0].ID != "t1" || tr[1].ID != "t2" {
		t.Errorf("Transcript() = %+v, want [t1 t2]", tr)
	}
}

func TestLog_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	store := &mock.Store{}
	l := New(store, "s1", 0, nil)
	if _, err := l.Append(context.Background(), event.TypeTranscriptChunk, nil); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}

	snap := l.Snapshot()
	snap[0].ID = "mutated"

	if l.Snapshot()[0].ID == "mutated" {
		t.Error("Snapshot() exposed internal view for mutation")
	}
}
