package coord

import (
	"testing"
	"time"

	"github.com/calder/savewatch/internal/sched"
	"github.com/calder/savewatch/internal/track"
)

// stubReader implements track.SaveReader with no backing files.
type stubReader struct{}

func (stubReader) SetPath(string)        {}
func (stubReader) TryRefresh() bool      { return false }
func (stubReader) State() track.Snapshot { return track.Snapshot{} }

// stubSink implements track.ProgressSink and accepts everything.
type stubSink struct{}

func (stubSink) SetCategory(string) bool { return true }
func (stubSink) SetVersion(string) bool  { return true }
func (stubSink) SetState(track.Snapshot) {}

// slowRequest hands its report callback to the test instead of finishing.
type slowRequest struct {
	url     string
	started chan func(sched.Outcome)
}

func newSlowRequest(url string) *slowRequest {
	return &slowRequest{url: url, started: make(chan func(sched.Outcome), 1)}
}

func (r *slowRequest) URL() string { return r.url }

func (r *slowRequest) Run(report func(sched.Outcome)) {
	r.started <- report
}

func (r *slowRequest) waitStart(t *testing.T) func(sched.Outcome) {
	t.Helper()
	select {
	case report := <-r.started:
		return report
	case <-time.After(2 * time.Second):
		t.Fatalf("request %s was never dispatched", r.url)
		return nil
	}
}

func newTestEngine(t *testing.T, s *sched.Scheduler) *Engine {
	t.Helper()
	tracker := track.New(track.NewLocator(), stubReader{}, stubSink{}, time.Second)
	return New(tracker, s, nil, time.Second)
}

func TestSchedulerAdvancesByWallTime(t *testing.T) {
	s := sched.New(sched.Config{MaxConcurrent: 1, RetryCooldown: 10 * time.Second})
	e := newTestEngine(t, s)

	req := newSlowRequest("http://example.com/a")
	s.Submit(req)

	t0 := time.Now()
	e.tick(t0, nil)
	req.waitStart(t)(sched.OutcomeTimedOut)

	e.tick(t0.Add(time.Second), nil)
	if st, _ := s.StateOf(req.url); st != sched.TimedOut {
		t.Fatalf("expected TimedOut after report, got %v", st)
	}

	// The ticker stalls for 15s of wall time. The cooldown must advance by
	// the real gap, not by one nominal interval, so the retry dispatches.
	e.tick(t0.Add(16*time.Second), nil)
	if st, _ := s.StateOf(req.url); st != sched.Active {
		t.Errorf("expected re-dispatch after the wall-clock cooldown, got %v", st)
	}
}

func TestFirstTickDispatchesImmediately(t *testing.T) {
	s := sched.New(sched.Config{MaxConcurrent: 1, PassCooldown: 500 * time.Millisecond})
	e := newTestEngine(t, s)

	req := newSlowRequest("http://example.com/a")
	s.Submit(req)

	e.tick(time.Now(), nil)
	if st, _ := s.StateOf(req.url); st != sched.Active {
		t.Errorf("first tick should dispatch, got %v", st)
	}
}

func TestBackwardClockDoesNotUnderflowCooldowns(t *testing.T) {
	s := sched.New(sched.Config{MaxConcurrent: 1, RetryCooldown: 10 * time.Second})
	e := newTestEngine(t, s)

	req := newSlowRequest("http://example.com/a")
	s.Submit(req)

	t0 := time.Now()
	e.tick(t0, nil)
	req.waitStart(t)(sched.OutcomeTimedOut)
	e.tick(t0.Add(time.Second), nil)

	// A clock step backwards must not shorten the wait.
	e.tick(t0, nil)
	if st, _ := s.StateOf(req.url); st != sched.TimedOut {
		t.Errorf("backward clock advanced the cooldown, state %v", st)
	}
}
