// Package sched provides a bounded-concurrency, deduplicating queue for
// outbound asynchronous requests with timeout/cooldown retry.
package sched

import (
	"sync"
	"time"

	"github.com/calder/savewatch/internal/logging"
)

// State is a request's lifecycle position. The five states are mutually
// exclusive membership sets over the URL namespace.
type State int

const (
	Pending State = iota
	Active
	TimedOut
	Completed
	Abandoned
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case TimedOut:
		return "timed_out"
	case Completed:
		return "completed"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Outcome is the terminal (or retryable) result a request reports back.
type Outcome int

const (
	// OutcomeCompleted removes the request from the queue for good.
	OutcomeCompleted Outcome = iota
	// OutcomeTimedOut parks the request for its cooldown, then retries.
	OutcomeTimedOut
	// OutcomeAbandoned gives up on the request permanently.
	OutcomeAbandoned
)

// Request is work the scheduler dispatches. The scheduler knows nothing
// about what a request does, only its lifecycle. Run is invoked on its own
// goroutine and must call report exactly once; report is safe to call from
// any goroutine. Timeout detection is the request's own concern.
type Request interface {
	URL() string
	Run(report func(Outcome))
}

// Config holds the scheduler's two knobs. Both are fixed at construction.
type Config struct {
	// MaxConcurrent bounds how many requests may be Active at once.
	MaxConcurrent int
	// PassCooldown is the minimum interval between dispatch passes.
	PassCooldown time.Duration
	// RetryCooldown is how long a timed-out request waits before it
	// re-enters the pending queue.
	RetryCooldown time.Duration
}

type result struct {
	url     string
	outcome Outcome
}

type record struct {
	req      Request
	state    State
	cooldown time.Duration // remaining wait while TimedOut
}

// Scheduler runs the request queue. Submit may be called from any
// goroutine; Tick is driven by the host loop. Completion callbacks post
// onto an internal channel that Tick drains, so every set mutation happens
// on the tick path.
type Scheduler struct {
	cfg Config

	mu        sync.Mutex
	records   map[string]*record // every known URL, in any state
	pending   []*record          // FIFO
	timedOut  []*record
	active    int
	results   chan result
	sincePass time.Duration

	// onTerminal, if set, observes Completed/Abandoned transitions
	// (e.g. to journal them). Called on the tick path.
	onTerminal func(url string, s State)
}

// New creates a Scheduler. Zero or negative config values fall back to a
// concurrency bound of 1 and no cooldowns.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:     cfg,
		records: make(map[string]*record),
		results: make(chan result, 64),
		// First tick dispatches immediately.
		sincePass: cfg.PassCooldown,
	}
}

// SetTerminalObserver registers a callback for terminal transitions.
func (s *Scheduler) SetTerminalObserver(fn func(url string, st State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTerminal = fn
}

// Submit queues a request. A URL already known in any state - pending,
// active, cooling down, or terminally done - is silently rejected; at most
// one record per URL exists for the process lifetime. Returns whether the
// request was accepted.
func (s *Scheduler) Submit(req Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	url := req.URL()
	if _, dup := s.records[url]; dup {
		return false
	}
	rec := &record{req: req, state: Pending}
	s.records[url] = rec
	s.pending = append(s.pending, rec)
	return true
}

// Tick advances the queue by elapsed time: drains completion reports,
// advances timed-out cooldowns, and - on the pass cadence - dispatches
// pending requests up to the concurrency bound.
func (s *Scheduler) Tick(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainResults()
	s.advanceCooldowns(elapsed)

	s.sincePass += elapsed
	if s.sincePass < s.cfg.PassCooldown {
		return
	}
	s.sincePass = 0

	for s.active < s.cfg.MaxConcurrent && len(s.pending) > 0 {
		rec := s.pending[0]
		s.pending = s.pending[1:]
		s.start(rec)
	}
}

// drainResults applies every report that arrived since the last tick.
func (s *Scheduler) drainResults() {
	for {
		select {
		case res := <-s.results:
			s.finish(res)
		default:
			return
		}
	}
}

func (s *Scheduler) finish(res result) {
	rec, ok := s.records[res.url]
	if !ok || rec.state != Active {
		// A request must report exactly once; anything else is a bug in
		// the request implementation, not a reason to corrupt the sets.
		logging.Warn("dropping stray request report", "url", res.url)
		return
	}
	s.active--
	switch res.outcome {
	case OutcomeCompleted:
		rec.state = Completed
		if s.onTerminal != nil {
			s.onTerminal(res.url, Completed)
		}
	case OutcomeAbandoned:
		rec.state = Abandoned
		if s.onTerminal != nil {
			s.onTerminal(res.url, Abandoned)
		}
	case OutcomeTimedOut:
		rec.state = TimedOut
		rec.cooldown = s.cfg.RetryCooldown
		s.timedOut = append(s.timedOut, rec)
	}
}

// advanceCooldowns moves timed-out entries whose cooldown has elapsed back
// to the tail of the pending queue.
func (s *Scheduler) advanceCooldowns(elapsed time.Duration) {
	remaining := s.timedOut[:0]
	for _, rec := range s.timedOut {
		rec.cooldown -= elapsed
		if rec.cooldown <= 0 {
			rec.state = Pending
			rec.cooldown = 0
			s.pending = append(s.pending, rec)
			continue
		}
		remaining = append(remaining, rec)
	}
	s.timedOut = remaining
}

// start marks the record active and launches it. Dispatch never blocks the
// tick: the request runs on its own goroutine and reports back through the
// results channel.
func (s *Scheduler) start(rec *record) {
	rec.state = Active
	s.active++
	url := rec.req.URL()
	go rec.req.Run(func(o Outcome) {
		s.results <- result{url: url, outcome: o}
	})
}

// Counts is a point-in-time census of the membership sets.
type Counts struct {
	Pending   int
	Active    int
	TimedOut  int
	Completed int
	Abandoned int
}

// Counts reports how many URLs sit in each state.
func (s *Scheduler) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Counts
	for _, rec := range s.records {
		switch rec.state {
		case Pending:
			c.Pending++
		case Active:
			c.Active++
		case TimedOut:
			c.TimedOut++
		case Completed:
			c.Completed++
		case Abandoned:
			c.Abandoned++
		}
	}
	return c
}

// StateOf returns the state of a known URL.
func (s *Scheduler) StateOf(url string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[url]
	if !ok {
		return 0, false
	}
	return rec.state, true
}

// Reset forgets terminally Completed and Abandoned URLs so they may be
// submitted again. In-flight and queued records are untouched.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for url, rec := range s.records {
		if rec.state == Completed || rec.state == Abandoned {
			delete(s.records, url)
		}
	}
}
