// Package analyzer defines the Provider interface for conversation analysis
// backends.
//
// An analyzer reads a window of meeting transcript and produces either a
// short list of nudges (cautious "voice to revisit" suggestions for the
// facilitator) or an end-of-session Shine Report. Backends wrap an LLM API;
// the [mock] subpackage provides a deterministic offline implementation for
// demos and tests.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package analyzer

import (
	"context"
	"time"

	"github.com/shinelabs/shine/pkg/event"
)

// InterruptionContext carries detector output into an analysis request so the
// model can anchor its suggestion to a concrete moment.
type InterruptionContext struct {
	// At is when the overlap signal fired.
	At time.Time

	// Confidence is the detector's grade for the signal.
	Confidence event.Confidence

	// InterruptedIdea is the transcript text that was current when the
	// signal fired.
	InterruptedIdea string
}

// AnalyzeRequest is one nudge-analysis call.
type AnalyzeRequest struct {
	// Transcript is the window under analysis, one "Speaker: text" line per
	// chunk.
	Transcript string

	// Interruptions lists overlap signals that fired inside the window,
	// oldest first. May be empty.
	Interruptions []InterruptionContext

	// WindowMinutes is how many minutes of conversation the transcript
	// covers. Zero means the full session so far.
	WindowMinutes int
}

// ReflectRequest is one end-of-session reflection call.
type ReflectRequest struct {
	// Transcript is the full bounded session transcript.
	Transcript string

	// Nudges are the nudges surfaced during the session, oldest first.
	Nudges []event.NudgePayload
}

// ShineMoment is one participant contribution worth celebrating.
type ShineMoment struct {
	// Participant is the speaker the moment belongs to.
	Participant string `json:"participant"`

	// Contribution describes what they brought, in the model's words.
	Contribution string `json:"contribution"`

	// SuggestedFollowUp is an optional next step for the team.
	SuggestedFollowUp string `json:"suggested_follow_up,omitempty"`
}

// Report is the end-of-session Shine Report.
type Report struct {
	// Summary is a short, positive recap of how the conversation flowed.
	Summary string `json:"summary"`

	// Moments lists per-participant highlights.
	Moments []ShineMoment `json:"moments"`
}

// Provider is the abstraction over any conversation-analysis backend.
type Provider interface {
	// Analyze inspects a transcript window and returns the nudges worth
	// surfacing, oldest-signal first. An empty slice with a nil error means
	// the window holds nothing worth surfacing; an error is a backend
	// failure.
	Analyze(ctx context.Context, req AnalyzeRequest) ([]event.NudgePayload, error)

	// Reflect produces the end-of-session Shine Report from the full
	// transcript.
	Reflect(ctx context.Context, req ReflectRequest) (*Report, error)
}
