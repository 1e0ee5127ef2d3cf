package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"camlbot/internal/interp"
)

// ErrNotFound is returned for unknown chat ids and out-of-range history
// indexes.
var ErrNotFound = errors.New("not found")

// ErrTerminated is returned for writes against a session whose teardown has
// already been requested.
var ErrTerminated = errors.New("session terminated")

// Session is the live state for one chat's interpreter: the process handle,
// the output buffer filled by the reader loop and drained by the flush loop,
// the command history ring, and the activity/termination bookkeeping. The
// mutex guards all of it; the process handle is swapped under the same mutex
// on respawn.
type Session struct {
	ChatID    int64
	CreatedAt time.Time

	mu         sync.Mutex
	proc       *interp.Process
	buf        strings.Builder
	history    *History
	lastActive time.Time
	terminated bool

	// loops counts the reader and flush goroutines, including readers of
	// respawned processes, so teardown can wait for all of them.
	loops sync.WaitGroup
}

// Info is a read-only snapshot of a session, for listings.
type Info struct {
	ChatID     int64     `json:"chatId"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	Terminated bool      `json:"terminated"`
}

func newSession(chatID int64, proc *interp.Process, historyDepth int) *Session {
	now := time.Now()
	return &Session{
		ChatID:     chatID,
		CreatedAt:  now,
		proc:       proc,
		history:    NewHistory(historyDepth),
		lastActive: now,
	}
}

// AppendOutput adds interpreter output to the buffer and reports whether it
// was accepted. Called only by the reader loop. Once termination has been
// requested the append is refused: the buffer's owner may be mid-teardown.
func (s *Session) AppendOutput(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return false
	}
	s.buf.WriteString(text)
	return true
}

// DrainOutput atomically takes and clears the buffer. Called only by the
// flush loop. Still returns whatever remains after termination.
func (s *Session) DrainOutput() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.buf.String()
	s.buf.Reset()
	return out
}

// RecordHistory inserts cmd at the front of the history ring.
func (s *Session) RecordHistory(cmd string) {
	s.mu.Lock()
	s.history.Push(cmd)
	s.mu.Unlock()
}

// HistoryAt returns the n-th most recent command, 1-based.
func (s *Session) HistoryAt(n int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.At(n)
}

// HistoryList returns the recorded commands, newest first.
func (s *Session) HistoryList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.All()
}

// MarkActive updates the last-activity timestamp. Called on every accepted
// inbound command that reaches the session.
func (s *Session) MarkActive() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the last-activity timestamp.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// RequestTermination sets the termination flag. The flag is monotonic: once
// set it never reverts, and the reader and flush loops exit at their next
// checkpoint.
func (s *Session) RequestTermination() {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
}

// Terminated reports whether termination has been requested.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Snapshot returns a read-only view of the session.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ChatID:     s.ChatID,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
		Terminated: s.terminated,
	}
}

// process returns the current process handle.
func (s *Session) process() *interp.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// swapProcess installs a fresh process handle and returns the old one. It
// refuses once termination has been requested: installing a process on a
// session mid-teardown would leak it, since nothing terminates handles after
// Destroy has run.
func (s *Session) swapProcess(p *interp.Process) (*interp.Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil, false
	}
	old := s.proc
	s.proc = p
	return old, true
}
