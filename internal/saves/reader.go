// Package saves reads progress out of a resolved world directory. Parsing
// the save format is out of scope for the engine; this reader detects
// changes by modification time and exposes an opaque summary snapshot.
package saves

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/calder/savewatch/internal/track"
)

// Reader implements track.SaveReader over a world directory on disk.
type Reader struct {
	mu          sync.Mutex
	path        string
	pathChanged bool
	forced      bool
	lastMod     time.Time
}

// NewReader returns a Reader with no path; SetPath comes from the tracker
// once a source resolves.
func NewReader() *Reader {
	return &Reader{}
}

// SetPath points the reader at a (re)resolved world directory.
func (r *Reader) SetPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path == r.path {
		return
	}
	r.path = path
	r.pathChanged = true
	r.lastMod = time.Time{}
}

// Invalidate forces the next TryRefresh to report a change.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced = true
}

// TryRefresh reports whether the underlying data changed since the last
// read: the path moved, an explicit invalidation is pending, or the save
// files were rewritten.
func (r *Reader) TryRefresh() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return false
	}
	changed := r.pathChanged || r.forced
	r.pathChanged = false
	r.forced = false

	mod := newestWrite(r.path)
	if !mod.Equal(r.lastMod) {
		r.lastMod = mod
		changed = true
	}
	return changed
}

// State reads the current progress summary. The payload stays opaque to
// the tracking engine.
func (r *Reader) State() track.Snapshot {
	r.mu.Lock()
	path := r.path
	mod := r.lastMod
	r.mu.Unlock()

	summary := struct {
		World            string    `json:"world"`
		AdvancementFiles int       `json:"advancement_files"`
		ModifiedAt       time.Time `json:"modified_at"`
	}{
		World:      filepath.Base(path),
		ModifiedAt: mod,
	}
	if entries, err := os.ReadDir(filepath.Join(path, "advancements")); err == nil {
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
				summary.AdvancementFiles++
			}
		}
	}

	data, _ := json.Marshal(summary)
	return track.Snapshot{
		Data:    data,
		Origin:  track.OriginLocalRead,
		TakenAt: time.Now(),
	}
}

// newestWrite returns the most recent mtime among the files that signal
// progress changes.
func newestWrite(world string) time.Time {
	var newest time.Time
	if info, err := os.Stat(filepath.Join(world, "level.dat")); err == nil {
		newest = info.ModTime()
	}
	if entries, err := os.ReadDir(filepath.Join(world, "advancements")); err == nil {
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(newest) {
				newest = info.ModTime()
			}
		}
	}
	return newest
}
