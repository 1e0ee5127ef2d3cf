package session

// DefaultHistoryDepth bounds the history ring unless configured otherwise.
const DefaultHistoryDepth = 20

// History is a bounded record of past commands, newest first. Once the ring
// is full, each push evicts the oldest entry.
//
// History is not internally synchronized; the owning Session's mutex guards
// it.
type History struct {
	entries []string
	depth   int
}

// NewHistory creates a ring holding at most depth entries.
func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &History{depth: depth}
}

// Push inserts cmd at the front, evicting the oldest entry when full.
func (h *History) Push(cmd string) {
	if len(h.entries) < h.depth {
		h.entries = append(h.entries, "")
	}
	copy(h.entries[1:], h.entries)
	h.entries[0] = cmd
}

// At returns the n-th entry, 1-based, newest first. Index 0 and indexes past
// the current length return ErrNotFound.
func (h *History) At(n int) (string, error) {
	if n < 1 || n > len(h.entries) {
		return "", ErrNotFound
	}
	return h.entries[n-1], nil
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	return len(h.entries)
}

// All returns a copy of the entries, newest first.
func (h *History) All() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}
