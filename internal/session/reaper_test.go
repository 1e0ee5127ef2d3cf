package session

import (
	"testing"
	"time"
)

func TestReaper_SweepDestroysIdleSessions(t *testing.T) {
	reg := newTestRegistry(&fakeSender{}, nil)
	defer reg.Shutdown()

	if _, err := reg.GetOrCreate(1); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	rp, err := NewReaper(reg, 10*time.Millisecond, time.Hour)
	if err != nil {
		t.Fatalf("NewReaper failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	rp.Sweep()

	if _, ok := reg.Get(1); ok {
		t.Error("expected idle session reaped")
	}
}

func TestReaper_SweepKeepsActiveSessions(t *testing.T) {
	reg := newTestRegistry(&fakeSender{}, nil)
	defer reg.Shutdown()

	s, err := reg.GetOrCreate(1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	s.MarkActive()

	rp, err := NewReaper(reg, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewReaper failed: %v", err)
	}
	rp.Sweep()

	if _, ok := reg.Get(1); !ok {
		t.Error("active session must survive the sweep")
	}
}

// A reaped chat id creates a brand-new session on its next message, not a
// reuse of the terminated one.
func TestReaper_FreshSessionAfterReap(t *testing.T) {
	reg := newTestRegistry(&fakeSender{}, nil)
	defer reg.Shutdown()

	s1, err := reg.GetOrCreate(1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	rp, err := NewReaper(reg, time.Nanosecond, time.Hour)
	if err != nil {
		t.Fatalf("NewReaper failed: %v", err)
	}
	time.Sleep(time.Millisecond)
	rp.Sweep()

	s2, err := reg.GetOrCreate(1)
	if err != nil {
		t.Fatalf("GetOrCreate after reap failed: %v", err)
	}
	if s1 == s2 {
		t.Error("expected a fresh session after the reap")
	}
	if s2.Terminated() {
		t.Error("fresh session must not be terminated")
	}
}

func TestReaper_StartStop(t *testing.T) {
	reg := newTestRegistry(&fakeSender{}, nil)
	rp, err := NewReaper(reg, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewReaper failed: %v", err)
	}
	rp.Start()
	rp.Stop()
}
