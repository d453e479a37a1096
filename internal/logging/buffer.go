package logging

import (
	"slices"
	"sync"
	"time"
)

// LogEntry represents a single log line stored in the ring buffer.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Filter selects entries from a RingBuffer. The zero Filter selects
// everything.
type Filter struct {
	// MinLevel drops entries below this level name. Unknown names select
	// everything.
	MinLevel string
	// Module keeps only entries of one module when set.
	Module string
	// Limit keeps the newest Limit matches when positive.
	Limit int
}

func (f Filter) match(e LogEntry) bool {
	if f.Module != "" && e.Module != f.Module {
		return false
	}
	floor, ok := ParseLevel(f.MinLevel)
	if !ok {
		return true
	}
	level, _ := ParseLevel(e.Level)
	return level >= floor
}

// RingBuffer keeps the most recent log entries. It is safe for concurrent use.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int // slot the next Write fills
	full    bool
}

// NewRingBuffer creates a buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, max(size, 1))}
}

// Write stores entry, evicting the oldest one when the buffer is full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.next] = entry
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next = 0
		rb.full = true
	}
}

// Entries returns the entries f selects, oldest first.
func (rb *RingBuffer) Entries(f Filter) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	// Walk newest to oldest so Limit stops the scan early.
	out := make([]LogEntry, 0, min(rb.lenLocked(), max(f.Limit, 0)))
	for i := range rb.lenLocked() {
		idx := (rb.next - 1 - i + len(rb.entries)) % len(rb.entries)
		if e := rb.entries[idx]; f.match(e) {
			out = append(out, e)
			if len(out) == f.Limit {
				break
			}
		}
	}
	slices.Reverse(out)
	return out
}

// ReadAll returns every buffered entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Entries(Filter{})
}

// Len returns the number of buffered entries.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.lenLocked()
}

func (rb *RingBuffer) lenLocked() int {
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}
