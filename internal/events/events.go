// Package events is a bounded, sequenced buffer of conversion events that
// clients read incrementally.
package events

import (
	"slices"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/epub2zip/internal/models"
)

// Type classifies messages emitted while a session changes.
type Type string

const (
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeResult   Type = "result"
	TypeSummary  Type = "summary"
	TypeWarning  Type = "warning"
	TypeError    Type = "error"
)

const DefaultMaxEvents = 500

// Event is a sequenced payload consumed by CLI and HTTP subscribers.
type Event struct {
	Seq        int64             `json:"seq"`
	Timestamp  time.Time         `json:"timestamp"`
	Type       Type              `json:"type"`
	FileID     string            `json:"file_id,omitempty"`
	FileName   string            `json:"file_name,omitempty"`
	OutputName string            `json:"output_name,omitempty"`
	Status     models.FileStatus `json:"status,omitempty"`
	Percent    int               `json:"percent,omitempty"`
	Message    string            `json:"message,omitempty"`
	Summary    *models.Summary   `json:"summary,omitempty"`
}

// Bus stores recent events and provides incremental reads.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	listeners []func(Event)
}

// NewBus creates a bus keeping at most maxEvents events.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns its sequence and timestamp.
// Listeners are called synchronously after the event is stored.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if event.Type == TypeProgress && event.FileID != "" {
		// only the latest progress per file is kept
		b.events = slices.DeleteFunc(b.events, func(e Event) bool {
			return e.Type == TypeProgress && e.FileID == event.FileID
		})
	}
	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	listeners := b.listeners
	b.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
	return event
}

// EnsureCapacity raises the history limit to at least n events. It never
// lowers it.
func (b *Bus) EnsureCapacity(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.maxEvents {
		b.maxEvents = n
	}
}

// Capacity returns the current history limit.
func (b *Bus) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxEvents
}

// Subscribe registers fn for every later event.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Last returns the highest sequence number assigned so far.
func (b *Bus) Last() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
