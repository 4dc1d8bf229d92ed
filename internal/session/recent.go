package session

import (
	"strings"
	"sync"
	"time"
)

// Defaults for the recent-speech buffer.
const (
	defaultRecentSize = 12
	defaultRecentAge  = 30 * time.Second
)

// RecentSpeech keeps the last few transcript chunks so that an overlap signal
// can be annotated with the idea that was current when it fired. Attribution
// happens here, at the session level; the detector itself only sees energy.
//
// The buffer enforces both a maximum entry count and a maximum age. All
// methods are safe for concurrent use.
type RecentSpeech struct {
	mu      sync.Mutex
	entries []speechEntry
	maxSize int
	maxAge  time.Duration
	now     func() time.Time
}

type speechEntry struct {
	speaker string
	text    string
	at      time.Time
}

// NewRecentSpeech creates a buffer with the default size and age limits.
func NewRecentSpeech() *RecentSpeech {
	return &RecentSpeech{
		entries: make([]speechEntry, 0, defaultRecentSize),
		maxSize: defaultRecentSize,
		maxAge:  defaultRecentAge,
		now:     time.Now,
	}
}

// Add appends a chunk and evicts entries over the size or age limit.
func (b *RecentSpeech) Add(speaker, text string, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if at.IsZero() {
		at = b.now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, speechEntry{speaker: speaker, text: text, at: at})
	b.evict()
}

// CurrentIdea returns the most recent unexpired chunk, the best available
// stand-in for "the idea on the table right now". Empty when the buffer holds
// nothing recent.
func (b *RecentSpeech) CurrentIdea() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.maxAge)
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].at.Before(cutoff) {
			break
		}
		return b.entries[i].text
	}
	return ""
}

// evict removes entries that are too old or exceed maxSize. Must be called
// with b.mu held. Survivors are copied to a fresh slice so evicted entries do
// not pin memory.
func (b *RecentSpeech) evict() {
	cutoff := b.now().Add(-b.maxAge)

	start := 0
	for start < len(b.entries) && b.entries[start].at.Before(cutoff) {
		start++
	}
	keep := b.entries[start:]
	if len(keep) > b.maxSize {
		keep = keep[len(keep)-b.maxSize:]
	}
	if start > 0 || len(keep) < len(b.entries) {
		fresh := make([]speechEntry, len(keep), b.maxSize)
		copy(fresh, keep)
		b.entries = fresh
	}
}
