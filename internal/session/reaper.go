package session

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper destroys sessions that have been idle past a threshold, sweeping
// the registry on a fixed schedule.
type Reaper struct {
	registry *Registry
	idle     time.Duration
	cron     *cron.Cron
}

// NewReaper creates a reaper sweeping every sweepEvery, reclaiming sessions
// idle longer than idle.
func NewReaper(registry *Registry, idle, sweepEvery time.Duration) (*Reaper, error) {
	rp := &Reaper{
		registry: registry,
		idle:     idle,
		cron:     cron.New(),
	}
	if _, err := rp.cron.AddFunc(fmt.Sprintf("@every %s", sweepEvery), rp.Sweep); err != nil {
		return nil, fmt.Errorf("schedule reaper: %w", err)
	}
	return rp, nil
}

// Start begins the sweep schedule.
func (rp *Reaper) Start() {
	rp.cron.Start()
}

// Stop halts the schedule. A sweep already in flight finishes.
func (rp *Reaper) Stop() {
	rp.cron.Stop()
}

// Sweep destroys every session idle past the threshold. A failing teardown
// is logged per session and does not abort the rest of the pass.
func (rp *Reaper) Sweep() {
	log.Printf("reaper: sweeping")
	cutoff := time.Now().Add(-rp.idle)
	for _, s := range rp.registry.SnapshotIdle(cutoff) {
		if err := rp.registry.Destroy(s.ChatID); err != nil {
			log.Printf("reaper: destroy session %d: %v", s.ChatID, err)
		}
	}
	log.Printf("reaper: sweep finished")
}
