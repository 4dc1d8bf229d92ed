package event

import "sort"

// Merge folds incoming into existing and returns the deduplicated,
// time-ordered, bounded view. It is a pure function: neither input slice is
// modified, and the result depends only on the set of events seen.
//
// Properties relied on throughout the codebase:
//
//   - Idempotent: merging events that are already present (matched by ID)
//     leaves the view unchanged.
//   - Commutative on IDs: batches with distinct timestamps can be merged in
//     any order with the same final view.
//   - Stable: events sharing a CreatedAt keep their original arrival order.
//   - Bounded: the result never exceeds limit events; when trimming, the
//     oldest events are dropped so the view holds the most recent ones.
//
// Consumers therefore never special-case duplicate or out-of-order delivery
// themselves; they re-merge whatever the store or notifier hands them.
func Merge(existing, incoming []Event, limit int) []Event {
	if limit <= 0 {
		limit = DefaultViewLimit
	}

	merged := make([]Event, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))

	for _, e := range existing {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		merged = append(merged, e)
	}
	for _, e := range incoming {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		merged = append(merged, e)
	}

	// Stable sort: equal timestamps preserve arrival order.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	if len(merged) > limit {
		trimmed := make([]Event, limit)
		copy(trimmed, merged[len(merged)-limit:])
		return trimmed
	}
	return merged
}

// FilterType returns the events of the given type, preserving order.
func FilterType(events []Event, t Type) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
