package session

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"camlbot/internal/interp"
)

const (
	defaultFlushInterval = 1 * time.Second
	defaultJoinTimeout   = 3 * time.Second
)

// Sender delivers flushed interpreter output to the chat platform.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Config tunes the registry.
type Config struct {
	// Command is the interpreter invocation in argv form.
	// interp.DefaultCommand if empty.
	Command []string
	// HistoryDepth bounds each session's command ring.
	HistoryDepth int
	// FlushInterval is the pause between buffer drains.
	FlushInterval time.Duration
	// JoinTimeout bounds the wait for a session's loops during teardown.
	JoinTimeout time.Duration
}

// Registry is the single source of truth for which sessions exist. It maps
// chat ids to sessions, creates and destroys them, and runs the reader and
// flush loops. Structural changes happen under the registry lock; everything
// per-session is guarded by the session's own mutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session

	cfg    Config
	sender Sender
	sink   EventSink
}

// NewRegistry creates a registry. sink may be nil.
func NewRegistry(cfg Config, sender Sender, sink EventSink) *Registry {
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = DefaultHistoryDepth
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	return &Registry{
		sessions: make(map[int64]*Session),
		cfg:      cfg,
		sender:   sender,
		sink:     sink,
	}
}

// GetOrCreate returns the chat's session, spawning a fresh interpreter and
// starting its reader and flush loops if none exists. The whole create
// sequence runs under the registry lock so a racing second message cannot
// create a duplicate. A spawn failure leaves nothing registered.
func (r *Registry) GetOrCreate(chatID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[chatID]; ok {
		return s, nil
	}

	proc, err := interp.Start(r.cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("spawn interpreter: %w", err)
	}

	s := newSession(chatID, proc, r.cfg.HistoryDepth)
	r.sessions[chatID] = s

	s.loops.Add(2)
	go r.readLoop(s, proc)
	go r.flushLoop(s)

	log.Printf("session %d: created (interpreter pid %d)", chatID, proc.Pid())
	r.notify(Event{ChatID: chatID, Type: EventCreated, Timestamp: time.Now()})
	return s, nil
}

// Get returns the chat's session if one exists.
func (r *Registry) Get(chatID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[chatID]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots of all sessions, ordered by chat id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ChatID < infos[j].ChatID })
	return infos
}

// Send forwards one command line to the session's interpreter. On a write
// failure the interpreter is respawned, a fresh reader loop is started for
// the new process, and the line is resent exactly once; a second failure is
// returned to the caller, not retried. A write failure on a session whose
// teardown has been requested returns ErrTerminated instead of respawning:
// a concurrent Destroy (reaper, /kill, monitor) explains the dead pipe, and
// a respawn here would leak an interpreter nothing tears down.
func (r *Registry) Send(s *Session, line string) error {
	err := s.process().WriteLine(line)
	if err == nil {
		r.notify(Event{ChatID: s.ChatID, Type: EventInput, Data: line, Timestamp: time.Now()})
		return nil
	}
	if s.Terminated() {
		return fmt.Errorf("session %d: %w", s.ChatID, ErrTerminated)
	}
	log.Printf("session %d: write failed, respawning interpreter: %v", s.ChatID, err)

	proc, spawnErr := interp.Start(r.cfg.Command)
	if spawnErr != nil {
		return fmt.Errorf("respawn interpreter: %w", spawnErr)
	}
	old, ok := s.swapProcess(proc)
	if !ok {
		// Teardown won the race between the flag check and the swap.
		proc.Terminate()
		return fmt.Errorf("session %d: %w", s.ChatID, ErrTerminated)
	}
	// Reap the dead process; its reader loop exits on read failure.
	old.Terminate()

	// The old reader died with the old process. Without a fresh reader for
	// the new process all future output would be silently dropped.
	s.loops.Add(1)
	go r.readLoop(s, proc)
	log.Printf("session %d: interpreter respawned (pid %d)", s.ChatID, proc.Pid())

	if err := proc.WriteLine(line); err != nil {
		return fmt.Errorf("resend after respawn: %w", err)
	}
	r.notify(Event{ChatID: s.ChatID, Type: EventInput, Data: line, Timestamp: time.Now()})
	return nil
}

// Destroy tears down a session: flags the loops to stop, terminates the
// interpreter, waits briefly for the loops, and removes the registry entry.
// Proceeds regardless if the loops outlive the join timeout.
func (r *Registry) Destroy(chatID int64) error {
	r.mu.RLock()
	s, ok := r.sessions[chatID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %d: %w", chatID, ErrNotFound)
	}

	s.RequestTermination()
	s.process().Terminate()

	if !waitTimeout(&s.loops, r.cfg.JoinTimeout) {
		log.Printf("session %d: loops still running after %v, proceeding", chatID, r.cfg.JoinTimeout)
	}

	// Re-check membership under the write lock: two concurrent destroyers
	// (reaper, /kill, monitor) both pass the lookup above, but only the one
	// that removes the entry reports success and notifies.
	r.mu.Lock()
	if _, ok := r.sessions[chatID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %d: %w", chatID, ErrNotFound)
	}
	delete(r.sessions, chatID)
	r.mu.Unlock()

	log.Printf("session %d: destroyed", chatID)
	r.notify(Event{ChatID: chatID, Type: EventTerminated, Timestamp: time.Now()})
	return nil
}

// SnapshotIdle returns the sessions whose last activity predates cutoff.
// Only the scan happens under the registry lock; destroying the result is
// the caller's business.
func (r *Registry) SnapshotIdle(cutoff time.Time) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var idle []*Session
	for _, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	return idle
}

// Shutdown destroys all sessions.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.Destroy(id); err != nil {
			log.Printf("shutdown: destroy session %d: %v", id, err)
		}
	}
}

// readLoop pumps one process's output into the session buffer. It is bound
// to proc, not to whatever handle the session currently holds: after a
// respawn the old loop dies with the old process and the new process gets
// its own loop.
func (r *Registry) readLoop(s *Session, proc *interp.Process) {
	defer s.loops.Done()

	for {
		line, err := proc.ReadLine()
		if line != "" && !s.AppendOutput(line) {
			log.Printf("session %d: reader observed termination, exiting", s.ChatID)
			return
		}
		if err != nil {
			// EOF and closed-pipe errors mean the process is gone; the
			// writer decides whether to respawn.
			if err != io.EOF && !s.Terminated() {
				log.Printf("session %d: reader exiting: %v", s.ChatID, err)
			}
			return
		}
	}
}

// flushLoop periodically drains the session buffer outward. The termination
// flag is checked after the drain, so output produced up to the moment of
// termination is still delivered.
func (r *Registry) flushLoop(s *Session) {
	defer s.loops.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for range ticker.C {
		if out := s.DrainOutput(); out != "" {
			if err := r.sender.SendMessage(s.ChatID, out); err != nil {
				log.Printf("session %d: deliver output: %v", s.ChatID, err)
			}
			r.notify(Event{ChatID: s.ChatID, Type: EventOutput, Data: out, Timestamp: time.Now()})
		}
		if s.Terminated() {
			return
		}
	}
}

func (r *Registry) notify(e Event) {
	if r.sink != nil {
		r.sink.SessionEvent(e)
	}
}

// waitTimeout waits for wg up to d and reports whether it finished in time.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
