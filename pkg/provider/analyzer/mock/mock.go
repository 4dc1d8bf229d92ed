// Package mock provides a deterministic offline analyzer.
//
// It doubles as the demo-mode backend (no API key required) and as a test
// double: every call is recorded for assertion, and the exported fields
// override the canned responses.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// cannedNudges rotate across Analyze calls in demo mode.
var cannedNudges = []event.NudgePayload{
	{
		SignalKind:      event.SignalKindIdeaRevisit,
		Title:           "Voice to revisit",
		Rationale:       "An idea in this window may not have gotten a full hearing.",
		SuggestedPhrase: "Before we move on, was there a thought we didn't finish?",
		Confidence:      0.6,
	},
	{
		SignalKind:      event.SignalKindIdeaRevisit,
		Title:           "Quiet thread worth reopening",
		Rationale:       "A topic was raised once and not picked up again.",
		SuggestedPhrase: "Could we circle back to the earlier suggestion?",
		Confidence:      0.55,
	},
	{
		SignalKind:      event.SignalKindIdeaRevisit,
		Title:           "Idea cut short",
		Rationale:       "The conversation shifted right after this idea surfaced.",
		SuggestedPhrase: "I'd love to hear the rest of that idea.",
		Confidence:      0.65,
	},
}

// Provider is a configurable, deterministic analyzer.Provider.
type Provider struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// rotation indexes the canned nudges.
	rotation int

	// AnalyzeResult overrides the canned rotation when non-nil.
	AnalyzeResult []event.NudgePayload

	// AnalyzeErr is returned by [Provider.Analyze] when non-nil.
	AnalyzeErr error

	// ReflectResult overrides the derived report when non-nil.
	ReflectResult *analyzer.Report

	// ReflectErr is returned by [Provider.Reflect] when non-nil.
	ReflectErr error
}

// Compile-time interface check.
var _ analyzer.Provider = (*Provider)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *Provider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Provider) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Provider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Analyze implements analyzer.Provider. Without overrides it returns the
// canned nudges in rotation, anchored to the latest interruption context when
// the request carries one.
func (m *Provider) Analyze(_ context.Context, req analyzer.AnalyzeRequest) ([]event.NudgePayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Analyze", Args: []any{req}})

	if m.AnalyzeErr != nil {
		return nil, m.AnalyzeErr
	}
	if m.AnalyzeResult != nil {
		out := make([]event.NudgePayload, len(m.AnalyzeResult))
		copy(out, m.AnalyzeResult)
		return out, nil
	}

	n := cannedNudges[m.rotation%len(cannedNudges)]
	m.rotation++
	if len(req.Interruptions) > 0 {
		last := req.Interruptions[len(req.Interruptions)-1]
		n.InterruptedIdea = last.InterruptedIdea
	}
	return []event.NudgePayload{n}, nil
}

// Reflect implements analyzer.Provider. Without overrides it derives one
// shine moment per speaker found in the transcript.
func (m *Provider) Reflect(_ context.Context, req analyzer.ReflectRequest) (*analyzer.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Reflect", Args: []any{req}})

	if m.ReflectErr != nil {
		return nil, m.ReflectErr
	}
	if m.ReflectResult != nil {
		r := *m.ReflectResult
		return &r, nil
	}

	r := &analyzer.Report{Summary: "Everyone contributed to this session."}
	for _, sp := range speakers(req.Transcript) {
		r.Moments = append(r.Moments, analyzer.ShineMoment{
			Participant:  sp,
			Contribution: fmt.Sprintf("%s kept the conversation moving.", sp),
		})
	}
	return r, nil
}

// speakers extracts the distinct "Speaker:" labels from a transcript, in
// order of first appearance.
func speakers(transcript string) []string {
	var (
		seen = map[string]struct{}{}
		out  []string
	)
	for _, line := range strings.Split(transcript, "\n") {
		name, _, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
