package bot

import (
	"strings"
	"sync"
	"testing"
	"time"

	"camlbot/internal/sanitize"
	"camlbot/internal/session"
)

// fakeSender records replies and flushed output.
type fakeSender struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeSender) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func (f *fakeSender) joined() string {
	return strings.Join(f.all(), "\x00")
}

// newTestRouter wires a router over a cat-backed registry. The hour-long
// flush interval keeps interpreter echo out of the recorded replies, so
// tests only see what the router itself sends.
func newTestRouter(sender *fakeSender) (*Router, *session.Registry) {
	reg := session.NewRegistry(session.Config{
		Command:       []string{"cat"},
		FlushInterval: time.Hour,
		JoinTimeout:   50 * time.Millisecond,
	}, sender, nil)
	return NewRouter(reg, sanitize.New(), sender), reg
}

func TestRouter_Help(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/help")

	replies := sender.all()
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if !strings.Contains(replies[0], "/ml") {
		t.Errorf("help text should list /ml, got %q", replies[0])
	}
	if reg.Len() != 0 {
		t.Error("/help must not create a session")
	}
}

func TestRouter_IgnoresNonCommands(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "just chatting")
	r.Handle(1, "/unknown")

	if len(sender.all()) != 0 {
		t.Errorf("expected silence, got %v", sender.all())
	}
	if reg.Len() != 0 {
		t.Error("unrecognized text must not create a session")
	}
}

func TestRouter_RejectsHazardousEval(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, `/ml Sys.command "ls"`)

	replies := sender.all()
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if !strings.Contains(replies[0], "forbidden identifier: Sys") {
		t.Errorf("expected the offending token in the reply, got %q", replies[0])
	}
	// Rejection happens before any session work: nothing is forwarded.
	if reg.Len() != 0 {
		t.Error("rejected payload must not create a session")
	}
}

func TestRouter_EvalCreatesSessionAndRecordsHistory(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/ml let x = 1;;")

	if reg.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", reg.Len())
	}
	s, _ := reg.Get(1)
	got, err := s.HistoryAt(1)
	if err != nil {
		t.Fatalf("HistoryAt failed: %v", err)
	}
	if got != "let x = 1;;" {
		t.Errorf("expected history entry %q, got %q", "let x = 1;;", got)
	}
}

func TestRouter_EvalRoundTrip(t *testing.T) {
	sender := &fakeSender{}
	reg := session.NewRegistry(session.Config{
		Command:       []string{"cat"},
		FlushInterval: 20 * time.Millisecond,
	}, sender, nil)
	defer reg.Shutdown()
	r := NewRouter(reg, sanitize.New(), sender)

	r.Handle(1, "/ml let x = 1;;")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(sender.joined(), "let x = 1;;\n") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("interpreter output never delivered")
}

func TestRouter_HistoryWithoutSession(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/history")

	replies := sender.all()
	if len(replies) != 1 || !strings.Contains(replies[0], "No commands") {
		t.Errorf("expected a no-history notice, got %v", replies)
	}
	if reg.Len() != 0 {
		t.Error("/history on an unknown chat must not create a session")
	}
}

func TestRouter_HistoryListsNewestFirst(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/ml first;;")
	r.Handle(1, "/ml second;;")
	r.Handle(1, "/history")

	replies := sender.all()
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	want := "1: second;;\n2: first;;"
	if replies[0] != want {
		t.Errorf("expected %q, got %q", want, replies[0])
	}
}

func TestRouter_ReplayResends(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/ml first;;")
	r.Handle(1, "/ml second;;")
	r.Handle(1, "/replay 2")

	s, _ := reg.Get(1)
	list := s.HistoryList()
	// The replayed command runs the same path as a fresh eval, so it is
	// recorded again at the front.
	if len(list) != 3 || list[0] != "first;;" {
		t.Errorf("expected replayed command re-recorded first, got %v", list)
	}
	if len(sender.all()) != 0 {
		t.Errorf("successful replay should be silent, got %v", sender.all())
	}
}

func TestRouter_ReplayOutOfRange(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/ml only;;")

	for _, text := range []string{"/replay 0", "/replay 5"} {
		r.Handle(1, text)
	}

	replies := sender.all()
	if len(replies) != 2 {
		t.Fatalf("expected 2 failure notices, got %d", len(replies))
	}
	for _, reply := range replies {
		if !strings.Contains(reply, "No command at history position") {
			t.Errorf("expected failure notice, got %q", reply)
		}
	}

	// No side effects: history unchanged.
	s, _ := reg.Get(1)
	if len(s.HistoryList()) != 1 {
		t.Errorf("out-of-range replay must not touch history, got %v", s.HistoryList())
	}
}

func TestRouter_ReplayUsage(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/replay nope")

	replies := sender.all()
	if len(replies) != 1 || !strings.Contains(replies[0], "Usage") {
		t.Errorf("expected usage notice, got %v", replies)
	}
}

func TestRouter_ReplayWithoutSession(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/replay 1")

	replies := sender.all()
	if len(replies) != 1 || !strings.Contains(replies[0], "No commands") {
		t.Errorf("expected a no-history notice, got %v", replies)
	}
}

func TestRouter_KillRemovesSession(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/ml let x = 1;;")
	if reg.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", reg.Len())
	}

	r.Handle(1, "/kill")
	if reg.Len() != 0 {
		t.Error("expected session removed by /kill")
	}

	// The next eval starts from scratch.
	r.Handle(1, "/ml again;;")
	if reg.Len() != 1 {
		t.Fatalf("expected a fresh session, got %d", reg.Len())
	}
	s, _ := reg.Get(1)
	if len(s.HistoryList()) != 1 {
		t.Error("fresh session must not inherit old history")
	}
}

func TestRouter_KillWithoutSession(t *testing.T) {
	sender := &fakeSender{}
	r, reg := newTestRouter(sender)
	defer reg.Shutdown()

	r.Handle(1, "/kill") // Must not reply or panic.

	if len(sender.all()) != 0 {
		t.Errorf("expected silence, got %v", sender.all())
	}
}

func TestRouter_SpawnFailureReported(t *testing.T) {
	sender := &fakeSender{}
	reg := session.NewRegistry(session.Config{
		Command: []string{"definitely-not-a-real-binary-xyz"},
	}, sender, nil)
	r := NewRouter(reg, sanitize.New(), sender)

	r.Handle(1, "/ml let x = 1;;")

	replies := sender.all()
	if len(replies) != 1 || !strings.Contains(replies[0], "could not start") {
		t.Errorf("expected a spawn-failure reply, got %v", replies)
	}
	if reg.Len() != 0 {
		t.Error("no session may be left half-initialized")
	}
}
