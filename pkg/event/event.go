// Package event defines the session event model shared by every Shine
// component: the wire-level [Event] envelope, the typed payloads carried
// inside it, and the pure [Merge] function that maintains a deduplicated,
// time-ordered, bounded view of a session's events.
//
// An Event is immutable once created. Its ID and CreatedAt are assigned by
// whichever store accepted the append and are authoritative; consumers never
// rewrite them. Within a session, events are totally ordered by
// (created_at, arrival) — see [Merge] for the exact tie-break rules.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultViewLimit is the maximum number of events retained in a session's
// bounded view. Older events fall out of the view; they are not necessarily
// deleted from the backing store.
const DefaultViewLimit = 50

// Type classifies an event's payload.
type Type string

const (
	// TypeTranscriptChunk is a fragment of the live transcript, produced by
	// the transcription collaborator, a manual note, or a test fixture.
	TypeTranscriptChunk Type = "transcript_chunk"

	// TypeNudge is a model-generated "voice to revisit" suggestion.
	TypeNudge Type = "nudge"

	// TypeInterruption is an inferred speech-overlap signal from the
	// energy-based detector.
	TypeInterruption Type = "interruption"
)

// IsValid reports whether t is a recognised event type.
func (t Type) IsValid() bool {
	switch t {
	case TypeTranscriptChunk, TypeNudge, TypeInterruption:
		return true
	}
	return false
}

// Event is the wire-level envelope for everything that happens in a session.
// The JSON shape below is the contract between the event log and any remote
// store and must round-trip exactly; optional payload fields are omitted when
// absent, not serialised as null.
type Event struct {
	// ID is an opaque, globally unique identifier assigned at creation by the
	// store (or locally when no store exists).
	ID string `json:"id"`

	// SessionID identifies the session this event belongs to.
	SessionID string `json:"session_id"`

	// Type classifies the payload.
	Type Type `json:"type"`

	// Payload is the type-specific body, kept raw so the envelope round-trips
	// byte-exactly regardless of which payload fields a producer set.
	// Decode it with [DecodePayload].
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the store-assigned creation timestamp used for ordering
	// and windowing.
	CreatedAt time.Time `json:"created_at"`
}

// MarshalPayload encodes a typed payload struct into the raw form carried by
// [Event.Payload].
func MarshalPayload(payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("event: marshal payload: %w", err)
	}
	return raw, nil
}

// DecodePayload decodes an event's raw payload into the typed struct pointed
// to by dst. Unknown fields are ignored so that newer producers do not break
// older consumers.
func DecodePayload(e Event, dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event: %s event %s has no payload", e.Type, e.ID)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("event: decode %s payload: %w", e.Type, err)
	}
	return nil
}
