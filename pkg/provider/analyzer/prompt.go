package analyzer

import (
	"fmt"
	"strings"
)

// AnalyzeSystemPrompt steers the model toward cautious, facilitator-friendly
// suggestions. The response contract (bare JSON object with a "nudges" array)
// is what [ExtractNudges] parses.
const AnalyzeSystemPrompt = `You are a meeting-equity assistant observing a live conversation.
Your only job is to notice when a participant's idea may have been cut off or
dropped before the group engaged with it, and to offer the facilitator gentle
ways to bring those voices back.

Rules:
- Never accuse anyone of interrupting. Use cautious language ("may have been",
  "worth a look").
- Suggest at most three ideas to revisit, most important first. If nothing
  stands out, return an empty list.
- Keep each suggested phrase short enough to say out loud in one breath.

Respond with a single JSON object and nothing else:
{"nudges": [{"title": "...", "owner": "...", "interrupted_idea": "...",
 "extracted_topics": ["..."], "rationale": "...", "suggested_phrase": "...",
 "confidence": 0.0-1.0}]}
Return {"nudges": []} when there is nothing worth surfacing.`

// ReflectSystemPrompt drives the end-of-session Shine Report.
const ReflectSystemPrompt = `You are a meeting-equity assistant writing a short end-of-session
"Shine Report". Celebrate concrete contributions; do not rank or criticise
participants. Respond with a single JSON object and nothing else:
{"summary": "...", "moments": [{"participant": "...", "contribution": "...",
 "suggested_follow_up": "..."}]}`

// BuildAnalyzePrompt renders the user prompt for one analysis call.
func BuildAnalyzePrompt(req AnalyzeRequest) string {
	var b strings.Builder
	if req.WindowMinutes > 0 {
		fmt.Fprintf(&b, "Transcript window (last %d minutes):\n", req.WindowMinutes)
	} else {
		b.WriteString("Transcript of the session so far:\n")
	}
	b.WriteString(req.Transcript)
	b.WriteString("\n")

	if len(req.Interruptions) > 0 {
		b.WriteString("\nOverlap signals detected in this window:\n")
		for _, ic := range req.Interruptions {
			fmt.Fprintf(&b, "- %s (confidence %s)", ic.At.Format("15:04:05"), ic.Confidence)
			if ic.InterruptedIdea != "" {
				fmt.Fprintf(&b, ": near %q", ic.InterruptedIdea)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nWhich voices or ideas, if any, are worth revisiting?")
	return b.String()
}

// BuildReflectPrompt renders the user prompt for the Shine Report call.
func BuildReflectPrompt(req ReflectRequest) string {
	var b strings.Builder
	b.WriteString("Full session transcript:\n")
	b.WriteString(req.Transcript)
	b.WriteString("\n")

	if len(req.Nudges) > 0 {
		b.WriteString("\nNudges surfaced during the session:\n")
		for _, n := range req.Nudges {
			fmt.Fprintf(&b, "- %s", n.Title)
			if n.Owner != "" {
				fmt.Fprintf(&b, " (%s)", n.Owner)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nWrite the Shine Report.")
	return b.String()
}
