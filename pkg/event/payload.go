package event

import "time"

// Source identifies how a transcript chunk entered the session.
type Source string

const (
	// SourceMic marks chunks produced by the live transcription collaborator.
	SourceMic Source = "mic"

	// SourceManual marks chunks typed in by a participant.
	SourceManual Source = "manual"

	// SourceTest marks fixture chunks injected by test tooling.
	SourceTest Source = "test"
)

// IsValid reports whether s is a recognised transcript source.
func (s Source) IsValid() bool {
	return s == SourceMic || s == SourceManual || s == SourceTest
}

// Confidence grades an interruption signal. The detector emits medium when
// the speaker's energy collapsed sharply (consistent with yielding to a
// second speaker) and low when the drop was shallower.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
)

// IsValid reports whether c is a recognised confidence grade.
func (c Confidence) IsValid() bool {
	return c == ConfidenceLow || c == ConfidenceMedium
}

// SignalKindIdeaRevisit is the only nudge signal kind currently produced.
const SignalKindIdeaRevisit = "idea_revisit"

// TranscriptChunkPayload is the body of a [TypeTranscriptChunk] event.
type TranscriptChunkPayload struct {
	// Text is the transcribed (or typed) content.
	Text string `json:"text"`

	// TS is the producer-side capture time. Ordering still uses the
	// store-assigned Event.CreatedAt; TS is informational.
	TS time.Time `json:"ts"`

	// Source records how the chunk entered the session.
	Source Source `json:"source"`

	// SpeakerID identifies the speaker when diarisation is available.
	SpeakerID string `json:"speaker_id,omitempty"`

	// SpeakerLabel is the human-readable speaker name, preferred over
	// SpeakerID when building the analysis corpus.
	SpeakerLabel string `json:"speaker_label,omitempty"`
}

// NudgePayload is the body of a [TypeNudge] event: a "voice to revisit"
// suggestion produced by the external analyzer.
type NudgePayload struct {
	// SignalKind is always [SignalKindIdeaRevisit] for now.
	SignalKind string `json:"signal_kind"`

	// Title is a short headline for the nudge.
	Title string `json:"title"`

	// Owner names the participant whose idea should be revisited, when the
	// model could attribute it.
	Owner string `json:"owner,omitempty"`

	// InterruptedIdea quotes or paraphrases the idea that was cut off.
	InterruptedIdea string `json:"interrupted_idea,omitempty"`

	// ExtractedTopics lists coarse topics the model associated with the idea.
	ExtractedTopics []string `json:"extracted_topics,omitempty"`

	// Rationale explains, in cautious language, why the model flagged this.
	Rationale string `json:"rationale"`

	// SuggestedPhrase is a facilitator-ready sentence for reopening the idea.
	SuggestedPhrase string `json:"suggested_phrase"`

	// Confidence is the model's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`
}

// InterruptionPayload is the body of a [TypeInterruption] event.
type InterruptionPayload struct {
	// Timestamp is when the overlap was detected.
	Timestamp time.Time `json:"timestamp"`

	// Confidence grades the signal (low or medium).
	Confidence Confidence `json:"confidence"`

	// InterruptedIdea is the most recent transcript sentence(s) at emission
	// time. It is attributed by the consumer of the detector, never by the
	// detector itself.
	InterruptedIdea string `json:"interrupted_idea,omitempty"`
}
