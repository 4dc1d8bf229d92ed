package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shinelabs/shine/pkg/event"
)

// Defaults applied when the model omits optional nudge fields.
const (
	DefaultNudgeTitle  = "Voice to revisit"
	DefaultNudgePhrase = "Let's revisit that."
	// DefaultNudgeConfidence is assumed when the model reports none.
	DefaultNudgeConfidence = 0.8
)

// nudgeResponse is the loose wire shape of one nudge in a model reply.
type nudgeResponse struct {
	Title           string   `json:"title"`
	Owner           string   `json:"owner"`
	InterruptedIdea string   `json:"interrupted_idea"`
	ExtractedTopics []string `json:"extracted_topics"`
	Rationale       string   `json:"rationale"`
	SuggestedPhrase string   `json:"suggested_phrase"`
	Confidence      float64  `json:"confidence"`
}

// nudgesResponse is the envelope models return for Analyze.
type nudgesResponse struct {
	Nudges []nudgeResponse `json:"nudges"`
}

// ExtractNudges parses a model reply into nudge payloads. Models wrap JSON in
// markdown fences or chat it up more often than not, so the parser takes the
// outermost JSON object it can find, reads its "nudges" array, and fills
// defaulted fields per element. A reply whose array is empty or absent yields
// an empty slice and no error; the model simply found nothing worth
// surfacing.
func ExtractNudges(raw string) ([]event.NudgePayload, error) {
	body, err := extractObject(raw)
	if err != nil {
		return nil, fmt.Errorf("analyzer: nudge reply: %w", err)
	}

	var resp nudgesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("analyzer: parse nudge reply: %w", err)
	}

	nudges := make([]event.NudgePayload, 0, len(resp.Nudges))
	for _, r := range resp.Nudges {
		// Drop elements with no content at all; some models pad the array.
		if r.Title == "" && r.InterruptedIdea == "" && r.SuggestedPhrase == "" {
			continue
		}
		n := event.NudgePayload{
			SignalKind:      event.SignalKindIdeaRevisit,
			Title:           r.Title,
			Owner:           r.Owner,
			InterruptedIdea: r.InterruptedIdea,
			ExtractedTopics: r.ExtractedTopics,
			Rationale:       r.Rationale,
			SuggestedPhrase: r.SuggestedPhrase,
			Confidence:      r.Confidence,
		}
		if n.Title == "" {
			n.Title = DefaultNudgeTitle
		}
		if n.SuggestedPhrase == "" {
			n.SuggestedPhrase = DefaultNudgePhrase
		}
		if n.Confidence <= 0 || n.Confidence > 1 {
			n.Confidence = DefaultNudgeConfidence
		}
		nudges = append(nudges, n)
	}
	return nudges, nil
}

// ExtractReport parses a model reply into a Shine Report.
func ExtractReport(raw string) (*Report, error) {
	body, err := extractObject(raw)
	if err != nil {
		return nil, fmt.Errorf("analyzer: report reply: %w", err)
	}

	var r Report
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("analyzer: parse report reply: %w", err)
	}
	if r.Summary == "" && len(r.Moments) == 0 {
		return nil, fmt.Errorf("analyzer: empty report reply")
	}
	return &r, nil
}

// extractObject returns the outermost JSON object in raw, tolerating
// markdown code fences and surrounding prose.
func extractObject(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if f := strings.Index(s, "```"); f >= 0 {
		s = s[f+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	return []byte(s[start : end+1]), nil
}
