// Package ui provides the Bubble Tea TUI for savewatch.
package ui

import (
	"time"

	"github.com/calder/savewatch/internal/sched"
	"github.com/calder/savewatch/internal/store"
	"github.com/calder/savewatch/internal/track"
)

// StatusUpdate is sent by the engine after every tick.
type StatusUpdate struct {
	Status       string
	State        track.State
	Mode         track.Mode
	Source       string
	SourceExists bool
	Locked       bool
	Queue        sched.Counts
	History      []store.Event
	At           time.Time
}

// ProgressLoaded is sent when the current snapshot summary is fetched.
type ProgressLoaded struct {
	Category string
	Version  string
	Summary  string
	Err      error
}
