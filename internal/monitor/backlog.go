package monitor

import (
	"sync"

	"camlbot/internal/session"
)

// Backlog is a fixed-capacity circular buffer of recent session events.
// It lets monitor clients that connect late catch up on recent traffic.
type Backlog struct {
	mu       sync.RWMutex
	buf      []session.Event
	capacity int
	pos      int // next write position
	full     bool
}

// NewBacklog creates a backlog with the given capacity.
func NewBacklog(capacity int) *Backlog {
	return &Backlog{
		buf:      make([]session.Event, capacity),
		capacity: capacity,
	}
}

// Add appends an event, evicting the oldest once full.
func (b *Backlog) Add(e session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf[b.pos] = e
	b.pos = (b.pos + 1) % b.capacity
	if b.pos == 0 {
		b.full = true
	}
}

// Recent returns the buffered events in chronological order.
func (b *Backlog) Recent() []session.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full {
		result := make([]session.Event, b.pos)
		copy(result, b.buf[:b.pos])
		return result
	}

	result := make([]session.Event, b.capacity)
	copy(result, b.buf[b.pos:])
	copy(result[b.capacity-b.pos:], b.buf[:b.pos])
	return result
}
