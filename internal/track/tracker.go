package track

import (
	"sync"
	"time"

	"github.com/calder/savewatch/internal/logging"
)

// State is the orchestrator's position in the refresh cycle, exposed for
// status display.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateLocalRead
	StatePeerSynced
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateLocalRead:
		return "local_read"
	case StatePeerSynced:
		return "peer_synced"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// SaveReader reads progress from the resolved source. TryRefresh reports
// whether the underlying data changed since the last read; comparing
// snapshots is the reader's responsibility, not the tracker's.
type SaveReader interface {
	SetPath(path string)
	TryRefresh() bool
	State() Snapshot
}

// ProgressSink receives reconciled progress. SetCategory and SetVersion
// report whether the name was accepted.
type ProgressSink interface {
	SetCategory(name string) bool
	SetVersion(name string) bool
	SetState(s Snapshot)
}

// Broadcaster forwards a freshly read snapshot to connected peers.
// Fire-and-forget: delivery failures belong to the networking layer.
type Broadcaster interface {
	Broadcast(s Snapshot)
}

// PeerFeed hands pushed snapshots to the tracker. Connected gates the
// peer-precedence branch; TakePending drains at most one snapshot per tick.
type PeerFeed interface {
	Connected() bool
	TakePending() (Snapshot, bool)
}

// Tracker is the refresh orchestrator. The host drives it by calling Tick
// once per cycle; the tracker decides whether that tick is effective (the
// refresh interval elapsed, or an early trigger fired) and runs one full
// reconciliation pass: resolve, then read or peer-sync, then forward.
//
// All engine state is mutated under a single mutex so early triggers may be
// fired from the UI or networking goroutines between ticks.
type Tracker struct {
	mu sync.Mutex

	loc    *Locator
	errs   ErrorState
	reader SaveReader
	sink   ProgressSink

	// optional collaborators
	broadcaster Broadcaster
	peers       PeerFeed

	interval time.Duration

	category string
	version  string

	state  State
	status string

	lastTick     time.Time
	ticked       bool
	forceRefresh bool
	worldChanged bool
}

// New creates a Tracker around the given locator and collaborators.
// The broadcaster and peer feed may be nil.
func New(loc *Locator, reader SaveReader, sink ProgressSink, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Tracker{
		loc:      loc,
		reader:   reader,
		sink:     sink,
		interval: interval,
		state:    StateIdle,
		status:   "waiting for first refresh",
	}
}

// SetBroadcaster enables the outbound server role: every successful local
// read is forwarded to connected clients.
func (t *Tracker) SetBroadcaster(b Broadcaster) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcaster = b
}

// SetPeerFeed attaches the co-op feed. While the feed reports a live
// connection, local reads are skipped entirely.
func (t *Tracker) SetPeerFeed(p PeerFeed) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers = p
}

// SetMode switches the discovery mode. Mode changes reset lock and error
// state and force an out-of-cycle refresh.
func (t *Tracker) SetMode(m Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m == t.loc.Mode() {
		return
	}
	t.loc.SetMode(m)
	t.errs.Clear()
	t.forceRefresh = true
}

// Mode returns the active discovery mode.
func (t *Tracker) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loc.Mode()
}

// SetFixedPath updates the fixed world path and forces a refresh.
func (t *Tracker) SetFixedPath(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loc.SetFixedPath(p)
	t.forceRefresh = true
}

// SetRoot updates the saves root folder. A changed root clears the source
// lock (inside the locator) and forces an out-of-cycle refresh.
func (t *Tracker) SetRoot(dir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if dir == t.loc.Root() {
		return
	}
	t.loc.SetRoot(dir)
	t.worldChanged = true
}

// SetCategory forwards the category to the sink; an accepted change forces
// a refresh. Returns whether the sink accepted the name.
func (t *Tracker) SetCategory(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setCategoryLocked(name)
}

func (t *Tracker) setCategoryLocked(name string) bool {
	if name == t.category {
		return true
	}
	if !t.sink.SetCategory(name) {
		return false
	}
	t.category = name
	t.forceRefresh = true
	return true
}

// SetVersion forwards the version to the sink; an accepted change forces
// a refresh.
func (t *Tracker) SetVersion(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setVersionLocked(name)
}

func (t *Tracker) setVersionLocked(name string) bool {
	if name == t.version {
		return true
	}
	if !t.sink.SetVersion(name) {
		return false
	}
	t.version = name
	t.forceRefresh = true
	return true
}

// SetLocked pins or releases the resolved source.
func (t *Tracker) SetLocked(locked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loc.SetLocked(locked)
}

// Locked reports whether the resolved source is pinned.
func (t *Tracker) Locked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loc.Locked()
}

// Invalidate requests an out-of-cycle refresh. The flag is consumed by
// exactly one reconciliation pass.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceRefresh = true
}

// ReportPeerUnreachable records a peer transport failure surfaced by the
// networking collaborator: a failed join, or a heartbeat-declared session
// drop. The same suppression applies as for resolution failures, so a host
// that stays down raises one notification, not one per attempt.
func (t *Tracker) ReportPeerUnreachable(condition, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateErrored
	if t.errs.Report(ErrPeerUnreachable, condition, message) {
		t.status = message
		logging.Warn("co-op peer unreachable", "condition", condition)
	}
}

// Status returns the single human-readable status line. It changes only
// when the underlying condition changes, never merely because a tick ran.
func (t *Tracker) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// TrackerState returns the orchestrator state after the last tick.
func (t *Tracker) TrackerState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Source returns the currently tracked source, if one is resolved.
func (t *Tracker) Source() (Source, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loc.Current()
}

// Tick runs one reconciliation pass if the refresh interval elapsed or an
// early trigger fired. Resolution failures halt the pass (recorded, never
// propagated); the next tick retries. Within one pass, resolution precedes
// read/sync, and read/sync precedes forwarding.
func (t *Tracker) Tick(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	due := !t.ticked || now.Sub(t.lastTick) >= t.interval
	if !due && !t.forceRefresh && !t.worldChanged {
		return
	}

	invalidated := t.forceRefresh || t.worldChanged
	// Consumed by this pass, whatever its outcome: every invalidation causes
	// exactly one pass, never zero and never more.
	t.forceRefresh = false
	t.worldChanged = false
	t.lastTick = now
	t.ticked = true

	if t.peers != nil && t.peers.Connected() {
		t.syncFromPeer(now)
		return
	}
	if t.loc.Mode() == ModePeerPush {
		// Local discovery is disabled in peer mode; without a live
		// connection there is nothing to reconcile. A recorded transport
		// failure keeps its status line until the session comes back.
		if t.errs.Active() {
			t.state = StateErrored
			return
		}
		t.state = StateIdle
		t.status = "waiting for co-op host"
		return
	}

	t.state = StateResolving
	src, changed, err := t.loc.Resolve(now)
	if err != nil {
		t.recordFailure(err)
		return
	}
	t.errs.Clear()
	t.status = "tracking " + src.Path
	if changed {
		t.reader.SetPath(src.Path)
	}

	if !t.reader.TryRefresh() && !changed && !invalidated {
		t.state = StateIdle
		return
	}

	snap := t.reader.State()
	snap.Origin = OriginLocalRead
	snap.Category = t.category
	snap.Version = t.version
	t.sink.SetState(snap)
	t.state = StateLocalRead

	if t.broadcaster != nil {
		t.broadcaster.Broadcast(snap)
	}
}

// syncFromPeer adopts at most one pushed snapshot. While the connection is
// live, local-read invalidations never overwrite the tracked state.
func (t *Tracker) syncFromPeer(now time.Time) {
	// The connection being live supersedes any recorded transport failure.
	if t.errs.Active() {
		t.errs.Clear()
		t.status = "connected to co-op host"
	}
	snap, ok := t.peers.TakePending()
	if !ok {
		t.state = StatePeerSynced
		return
	}
	if snap.Category != "" {
		t.setCategoryLocked(snap.Category)
	}
	if snap.Version != "" {
		t.setVersionLocked(snap.Version)
	}
	// Adoption alone must not schedule a local pass once the peer drops.
	t.forceRefresh = false
	snap.Origin = OriginPeerPush
	snap.TakenAt = now
	t.sink.SetState(snap)
	t.state = StatePeerSynced
	t.status = "synced from co-op host"
	logging.Debug("adopted peer snapshot", "category", snap.Category, "version", snap.Version)
}

// recordFailure stores the failure and updates the status line only when the
// failing condition is new, suppressing per-tick notification flapping.
func (t *Tracker) recordFailure(err error) {
	t.state = StateErrored
	re, ok := err.(*ResolveError)
	if !ok {
		re = resolveErr(ErrNone, "internal", "%v", err)
	}
	if t.errs.Report(re.Kind, re.Condition, re.Message) {
		t.status = re.Message
		logging.Warn("resolution failed", "kind", re.Kind.String(), "condition", re.Condition)
	}
}

// LastError returns the suppressed error state for status queries.
func (t *Tracker) LastError() (ErrKind, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errs.Kind(), t.errs.Message(), t.errs.Active()
}
