package event

import (
	"fmt"
	"testing"
	"time"
)

// mkEvent builds a transcript event with a deterministic ID and timestamp
// offset (in seconds) from a fixed base time.
func mkEvent(id string, offsetSec int) Event {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return Event{
		ID:        id,
		SessionID: "s1",
		Type:      TypeTranscriptChunk,
		CreatedAt: base.Add(time.Duration(offsetSec) * time.Second),
	}
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func equalIDs(a, b []Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func TestMerge_Idempotent(t *testing.T) {
	view := Merge(nil, []Event{mkEvent("a", 0), mkEvent("b", 1), mkEvent("c", 2)}, DefaultViewLimit)

	t.Run("re-merging a sublist is a no-op", func(t *testing.T) {
		again := Merge(view, []Event{mkEvent("b", 1)}, DefaultViewLimit)
		if !equalIDs(view, again) {
			t.Errorf("view changed after re-merge: %v -> %v", ids(view), ids(again))
		}
	})

	t.Run("re-merging the whole view is a no-op", func(t *testing.T) {
		again := Merge(view, view, DefaultViewLimit)
		if !equalIDs(view, again) {
			t.Errorf("view changed after self-merge: %v -> %v", ids(view), ids(again))
		}
	})
}

func TestMerge_CommutativeOnIDs(t *testing.T) {
	base := []Event{mkEvent("a", 0), mkEvent("b", 10)}
	batchA := []Event{mkEvent("c", 3), mkEvent("d", 7)}
	batchB := []Event{mkEvent("d", 7), mkEvent("e", 5)} // overlaps batchA on "d"

	ab := Merge(Merge(base, batchA, DefaultViewLimit), batchB, DefaultViewLimit)
	ba := Merge(Merge(base, batchB, DefaultViewLimit), batchA, DefaultViewLimit)

	if !equalIDs(ab, ba) {
		t.Errorf("merge order changed the view:\n  A then B: %v\n  B then A: %v", ids(ab), ids(ba))
	}
}

func TestMerge_OrdersByCreatedAt(t *testing.T) {
	// Delivered out of order; the view must be chronological.
	view := Merge(nil, []Event{mkEvent("late", 9), mkEvent("early", 1), mkEvent("mid", 5)}, DefaultViewLimit)

	want := []string{"early", "mid", "late"}
	for i, id := range want {
		if view[i].ID != id {
			t.Fatalf("position %d: got %s, want %s (view %v)", i, view[i].ID, id, ids(view))
		}
	}
}

func TestMerge_StableOnEqualTimestamps(t *testing.T) {
	// Two events share a timestamp; arrival order must be preserved.
	first := mkEvent("first", 4)
	second := mkEvent("second", 4)

	view := Merge([]Event{first}, []Event{second}, DefaultViewLimit)
	if view[0].ID != "first" || view[1].ID != "second" {
		t.Errorf("tie-break lost arrival order: %v", ids(view))
	}
}

func TestMerge_BoundedView(t *testing.T) {
	var view []Event
	for i := 0; i < 120; i++ {
		incoming := []Event{mkEvent(fmt.Sprintf("e%03d", i), i)}
		view = Merge(view, incoming, DefaultViewLimit)
	}

	if len(view) != DefaultViewLimit {
		t.Fatalf("view size = %d, want %d", len(view), DefaultViewLimit)
	}
	// The oldest retained event must be the 70th append (120-50).
	if view[0].ID != "e070" {
		t.Errorf("oldest retained = %s, want e070", view[0].ID)
	}
	if view[len(view)-1].ID != "e119" {
		t.Errorf("newest retained = %s, want e119", view[len(view)-1].ID)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	existing := []Event{mkEvent("b", 2), mkEvent("a", 1)}
	incoming := []Event{mkEvent("c", 0)}

	_ = Merge(existing, incoming, DefaultViewLimit)

	if existing[0].ID != "b" || existing[1].ID != "a" {
		t.Error("existing slice was reordered in place")
	}
}

func TestFilterType(t *testing.T) {
	nudge := mkEvent("n", 3)
	nudge.Type = TypeNudge
	view := Merge(nil, []Event{mkEvent("t1", 1), nudge, mkEvent("t2", 5)}, DefaultViewLimit)

	chunks := FilterType(view, TypeTranscriptChunk)
	if len(chunks) != 2 {
		t.Fatalf("got %d transcript chunks, want 2", len(chunks))
	}
	if got := FilterType(view, TypeNudge); len(got) != 1 || got[0].ID != "n" {
		t.Errorf("nudge filter returned %v", ids(got))
	}
}
