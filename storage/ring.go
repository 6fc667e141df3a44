package storage

import (
	"sync"
	"time"

	"github.com/yairfalse/vigil/types"
)

// Ring is the bounded in-memory security event history. Oldest events are
// evicted first; eviction is atomic with respect to appends. Readers get
// copies, never views into the buffer.
type Ring struct {
	mu       sync.RWMutex
	events   []types.SecurityEvent
	head     int // index of oldest entry
	size     int
	capacity int
}

// NewRing creates a ring with the given capacity
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		events:   make([]types.SecurityEvent, capacity),
		capacity: capacity,
	}
}

// Append adds an event, evicting the oldest when full
func (r *Ring) Append(event types.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < r.capacity {
		r.events[(r.head+r.size)%r.capacity] = event
		r.size++
		return
	}

	// Full: overwrite oldest and advance head
	r.events[r.head] = event
	r.head = (r.head + 1) % r.capacity
}

// Len returns the number of events currently held
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the configured maximum
func (r *Ring) Capacity() int {
	return r.capacity
}

// Snapshot returns all events, oldest first
func (r *Ring) Snapshot() []types.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.SecurityEvent, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.events[(r.head+i)%r.capacity]
	}
	return out
}

// Query returns events matching the filter, newest first, capped at
// filter.Limit when positive
func (r *Ring) Query(filter types.EventFilter) []types.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.SecurityEvent
	for i := r.size - 1; i >= 0; i-- {
		event := r.events[(r.head+i)%r.capacity]
		if !event.Matches(filter) {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Recent returns events with timestamps inside the trailing window
func (r *Ring) Recent(window time.Duration, now time.Time) []types.SecurityEvent {
	return r.Query(types.EventFilter{Since: now.Add(-window)})
}

// CountSince counts events with timestamp at or after t
func (r *Ring) CountSince(t time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for i := 0; i < r.size; i++ {
		if !r.events[(r.head+i)%r.capacity].Timestamp.Before(t) {
			count++
		}
	}
	return count
}

// Get looks up an event by ID
func (r *Ring) Get(id string) (types.SecurityEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < r.size; i++ {
		event := r.events[(r.head+i)%r.capacity]
		if event.ID == id {
			return event, true
		}
	}
	return types.SecurityEvent{}, false
}
