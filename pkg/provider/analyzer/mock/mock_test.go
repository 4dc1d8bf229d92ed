package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

func TestAnalyze_RotatesAndRecords(t *testing.T) {
	t.Parallel()

	m := &Provider{}
	ctx := context.Background()

	first, err := m.Analyze(ctx, analyzer.AnalyzeRequest{Transcript: "Mia: hello"})
	if err != nil {
		t.Fatalf("Analyze() unexpected error: %v", err)
	}
	second, err := m.Analyze(ctx, analyzer.AnalyzeRequest{Transcript: "Mia: hello"})
	if err != nil {
		t.Fatalf("Analyze() unexpected error: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got %d and %d nudges, want 1 each", len(first), len(second))
	}
	if first[0].Title == second[0].Title {
		t.Errorf("canned nudges did not rotate: %q twice", first[0].Title)
	}
	if m.CallCount("Analyze") != 2 {
		t.Errorf("CallCount(Analyze) = %d, want 2", m.CallCount("Analyze"))
	}
}

func TestAnalyze_AnchorsToInterruption(t *testing.T) {
	t.Parallel()

	m := &Provider{}
	ns, err := m.Analyze(context.Background(), analyzer.AnalyzeRequest{
		Transcript: "Mia: what if we cache the lookups",
		Interruptions: []analyzer.InterruptionContext{
			{InterruptedIdea: "an older idea"},
			{InterruptedIdea: "what if we cache the lookups"},
		},
	})
	if err != nil {
		t.Fatalf("Analyze() unexpected error: %v", err)
	}
	if len(ns) != 1 || ns[0].InterruptedIdea != "what if we cache the lookups" {
		t.Errorf("nudges = %+v, want one anchored to the latest interruption", ns)
	}
}

func TestAnalyze_Overrides(t *testing.T) {
	t.Parallel()

	want := []event.NudgePayload{{Title: "override one"}, {Title: "override two"}}
	m := &Provider{AnalyzeResult: want}

	ns, err := m.Analyze(context.Background(), analyzer.AnalyzeRequest{})
	if err != nil {
		t.Fatalf("Analyze() unexpected error: %v", err)
	}
	if len(ns) != 2 || ns[0].Title != "override one" || ns[1].Title != "override two" {
		t.Errorf("nudges = %+v, want the configured override", ns)
	}

	m.AnalyzeErr = errors.New("boom")
	if _, err := m.Analyze(context.Background(), analyzer.AnalyzeRequest{}); err == nil {
		t.Error("configured error not returned")
	}
}

func TestReflect_DerivesMomentsPerSpeaker(t *testing.T) {
	t.Parallel()

	m := &Provider{}
	r, err := m.Reflect(context.Background(), analyzer.ReflectRequest{
		Transcript: "Mia: hello\nLeo: hi\nMia: again",
	})
	if err != nil {
		t.Fatalf("Reflect() unexpected error: %v", err)
	}
	if len(r.Moments) != 2 {
		t.Fatalf("got %d moments, want 2 distinct speakers", len(r.Moments))
	}
	if r.Moments[0].Participant != "Mia" || r.Moments[1].Participant != "Leo" {
		t.Errorf("moments = %+v, want first-appearance order", r.Moments)
	}
}
