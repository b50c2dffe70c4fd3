// Package coop adapts snapshots pushed by a co-op peer into the tracking
// engine. It deduplicates identical payloads and hands decoded snapshots to
// the tracker through a single-slot mailbox drained on the tick path.
package coop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/calder/savewatch/internal/logging"
	"github.com/calder/savewatch/internal/registry"
	"github.com/calder/savewatch/internal/track"
)

// Envelope is the decoded wire payload. Data stays opaque to the engine.
type Envelope struct {
	Category string          `json:"category"`
	Version  string          `json:"version"`
	Data     json.RawMessage `json:"data"`
	SentAt   time.Time       `json:"sent_at"`
}

// Adapter receives peer payloads from the transport goroutines and exposes
// them to the tracker as a track.PeerFeed. Only the newest undelivered
// snapshot is kept; the tracker reconciles at most one per tick.
type Adapter struct {
	reg *registry.Registry

	mu          sync.Mutex
	connected   bool
	lastApplied []byte
	pending     track.Snapshot
	hasPending  bool
}

// NewAdapter creates an Adapter that validates incoming categories against
// the given registry.
func NewAdapter(reg *registry.Registry) *Adapter {
	return &Adapter{reg: reg}
}

// OnPeerMessage handles one pushed payload. Identical consecutive payloads
// are no-ops. A genuinely new payload is decoded, validated, and staged for
// the next tick. Returns whether the payload changed anything.
func (a *Adapter) OnPeerMessage(payload []byte) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if bytes.Equal(payload, a.lastApplied) {
		return false, nil
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false, fmt.Errorf("decode peer payload: %w", err)
	}
	if env.Category != "" {
		if _, err := a.reg.Lookup(env.Category); err != nil {
			return false, fmt.Errorf("peer payload: %w", err)
		}
	}

	a.lastApplied = bytes.Clone(payload)
	a.pending = track.Snapshot{
		Category: registry.Normalize(env.Category),
		Version:  env.Version,
		Data:     env.Data,
		Origin:   track.OriginPeerPush,
		TakenAt:  env.SentAt,
	}
	a.hasPending = true
	logging.Debug("staged peer snapshot", "category", a.pending.Category, "bytes", len(payload))
	return true, nil
}

// SetConnected flips the live-session flag. Dropping the connection clears
// the dedup memory so a reconnect always re-applies state, and drops any
// staged snapshot: the tracker falls back to local resolution next tick.
func (a *Adapter) SetConnected(connected bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected == connected {
		return
	}
	a.connected = connected
	if !connected {
		a.lastApplied = nil
		a.hasPending = false
		a.pending = track.Snapshot{}
	}
	logging.Info("co-op session state changed", "connected", connected)
}

// Connected reports whether a peer session is live.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// TakePending drains the staged snapshot, if any.
func (a *Adapter) TakePending() (track.Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasPending {
		return track.Snapshot{}, false
	}
	a.hasPending = false
	return a.pending, true
}
