// Package track implements the save-progress tracking engine: source
// resolution, error-state suppression, and the tick-driven refresh loop.
package track

import (
	"encoding/json"
	"time"
)

// Origin identifies where a snapshot came from.
type Origin int

const (
	// OriginLocalRead means the snapshot was read from the resolved source.
	OriginLocalRead Origin = iota
	// OriginPeerPush means the snapshot was delivered by a connected peer.
	OriginPeerPush
)

func (o Origin) String() string {
	switch o {
	case OriginLocalRead:
		return "local"
	case OriginPeerPush:
		return "peer"
	default:
		return "unknown"
	}
}

// Snapshot is one complete, immutable reading of progress state.
// The engine never interprets Data; it only decides which snapshot is
// current and when to fetch a new one.
type Snapshot struct {
	Category string          `json:"category"`
	Version  string          `json:"version"`
	Data     json.RawMessage `json:"data"`
	Origin   Origin          `json:"-"`
	TakenAt  time.Time       `json:"taken_at"`
}
