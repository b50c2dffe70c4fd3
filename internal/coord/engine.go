// Package coord provides the background tick loop for savewatch.
package coord

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/calder/savewatch/internal/sched"
	"github.com/calder/savewatch/internal/store"
	"github.com/calder/savewatch/internal/track"
	"github.com/calder/savewatch/internal/ui"
)

// historyLimit is how many journal rows each status update carries to the UI.
const historyLimit = 8

// Engine drives the tracker and the request scheduler from a single ticker
// goroutine. Uses context cancellation as the ONLY stop mechanism.
// Nothing downstream of Tick blocks: requests run off the tick path and
// broadcasts are fire-and-forget.
type Engine struct {
	tracker  *track.Tracker
	sched    *sched.Scheduler
	journal  *store.Store
	interval time.Duration
	wg       sync.WaitGroup

	lastStatus string
	lastState  track.State
	lastTickAt time.Time
	ticked     bool
}

// New creates an Engine. The journal may be nil to disable history.
func New(tracker *track.Tracker, scheduler *sched.Scheduler, journal *store.Store, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		tracker:  tracker,
		sched:    scheduler,
		journal:  journal,
		interval: interval,
	}
}

// Start begins ticking. Call with a cancellable context; Wait blocks until
// the loop exits. Runs one tick immediately so the UI never starts blank.
func (e *Engine) Start(ctx context.Context, program *tea.Program) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		e.tick(time.Now(), program)

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				e.tick(now, program)
			}
		}
	}()
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// tick runs one cycle: reconcile, advance the request queue, journal any
// status change, and push a status update to the UI.
func (e *Engine) tick(now time.Time, program *tea.Program) {
	// Cooldowns advance by wall time, not the nominal interval, so a
	// stalled or jittery ticker cannot stretch retry waits.
	var elapsed time.Duration
	if e.ticked {
		elapsed = now.Sub(e.lastTickAt)
		if elapsed < 0 {
			elapsed = 0
		}
	}
	e.lastTickAt = now
	e.ticked = true

	e.tracker.Tick(now)
	e.sched.Tick(elapsed)

	status := e.tracker.Status()
	state := e.tracker.TrackerState()
	if e.journal != nil && (status != e.lastStatus || state != e.lastState) {
		e.record(now, status, state)
	}
	e.lastStatus = status
	e.lastState = state

	if program == nil {
		return
	}

	upd := ui.StatusUpdate{
		Status: status,
		State:  state,
		Mode:   e.tracker.Mode(),
		Locked: e.tracker.Locked(),
		Queue:  e.sched.Counts(),
		At:     now,
	}
	if src, ok := e.tracker.Source(); ok {
		upd.Source = src.Path
		upd.SourceExists = src.Exists
	}
	if e.journal != nil {
		if events, err := e.journal.RecentEvents(historyLimit); err == nil {
			upd.History = events
		}
	}
	program.Send(upd)
}

// record journals the status transition behind this tick.
func (e *Engine) record(now time.Time, status string, state track.State) {
	kind := "status"
	switch state {
	case track.StateErrored:
		kind = "error"
	case track.StatePeerSynced:
		kind = "peer_sync"
	case track.StateLocalRead, track.StateIdle:
		if e.lastState == track.StateErrored {
			kind = "error_cleared"
		} else {
			kind = "source_adopted"
		}
	}

	event := store.Event{At: now, Kind: kind, Detail: status}
	if src, ok := e.tracker.Source(); ok {
		event.Source = src.Path
	}
	_ = e.journal.RecordEvent(event) // journal failures never stall the loop
}
