package session

import (
	"testing"
	"time"
)

func TestRecentSpeech_CurrentIdea(t *testing.T) {
	t.Parallel()

	b := NewRecentSpeech()
	if got := b.CurrentIdea(); got != "" {
		t.Errorf("empty buffer CurrentIdea() = %q, want empty", got)
	}

	now := time.Now()
	b.Add("Mia", "first thought", now.Add(-2*time.Second))
	b.Add("Leo", "  second thought  ", now.Add(-time.Second))

	if got := b.CurrentIdea(); got != "second thought" {
		t.Errorf("CurrentIdea() = %q, want the latest trimmed chunk", got)
	}
}

func TestRecentSpeech_IgnoresBlankText(t *testing.T) {
	t.Parallel()

	b := NewRecentSpeech()
	b.Add("Mia", "   ", time.Now())
	if got := b.CurrentIdea(); got != "" {
		t.Errorf("CurrentIdea() = %q after blank Add, want empty", got)
	}
}

func TestRecentSpeech_ExpiresOldEntries(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewRecentSpeech()
	b.now = func() time.Time { return now }

	b.Add("Mia", "stale idea", now.Add(-time.Minute))
	if got := b.CurrentIdea(); got != "" {
		t.Errorf("CurrentIdea() = %q, want empty once the entry aged out", got)
	}

	b.Add("Leo", "fresh idea", now.Add(-time.Second))
	if got := b.CurrentIdea(); got != "fresh idea" {
		t.Errorf("CurrentIdea() = %q, want fresh idea", got)
	}
	if len(b.entries) != 1 {
		t.Errorf("stale entry survived eviction: %d entries", len(b.entries))
	}
}

func TestRecentSpeech_EnforcesSizeLimit(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewRecentSpeech()
	b.now = func() time.Time { return now }

	for i := range defaultRecentSize + 5 {
		b.Add("Mia", "idea", now.Add(time.Duration(i-defaultRecentSize-5)*time.Millisecond))
	}
	if len(b.entries) != defaultRecentSize {
		t.Errorf("buffer holds %d entries, want %d", len(b.entries), defaultRecentSize)
	}
}
