package track

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Mode selects how the active data source is discovered.
type Mode int

const (
	// ModeAutoDetect scans the saves root for the most recently written world.
	ModeAutoDetect Mode = iota
	// ModeFixedPath uses a user-specified world path verbatim.
	ModeFixedPath
	// ModePeerPush disables local discovery; state arrives from a peer.
	ModePeerPush
)

func (m Mode) String() string {
	switch m {
	case ModeAutoDetect:
		return "auto"
	case ModeFixedPath:
		return "fixed"
	case ModePeerPush:
		return "peer"
	default:
		return "unknown"
	}
}

// Source is the currently selected data-source handle.
type Source struct {
	Path           string
	Exists         bool
	LastResolvedAt time.Time
}

// invalidPathChars are rejected in fixed paths regardless of platform, to
// keep configs portable across the filesystems save folders end up on.
const invalidPathChars = "\x00*?\"<>|"

// eligibleWorld is the cheap structural pre-check for an auto-detect
// candidate: it must look like a save directory, not be proven one.
func eligibleWorld(dir string) bool {
	if info, err := os.Stat(filepath.Join(dir, "level.dat")); err == nil && !info.IsDir() {
		return true
	}
	if info, err := os.Stat(filepath.Join(dir, "advancements")); err == nil && info.IsDir() {
		return true
	}
	return false
}

// Locator resolves the active source under the configured mode.
//
// Not goroutine-safe: owned by the tracker and driven on the tick path only.
type Locator struct {
	mode      Mode
	fixedPath string
	rootDir   string
	locked    bool

	current    Source
	hasCurrent bool

	// eligible is swappable for tests; defaults to eligibleWorld.
	eligible func(dir string) bool
}

// NewLocator returns a locator in ModeAutoDetect with no root configured.
func NewLocator() *Locator {
	return &Locator{eligible: eligibleWorld}
}

// SetMode switches discovery mode. A mode change clears the lock and the
// previously resolved source.
func (l *Locator) SetMode(m Mode) {
	if m == l.mode {
		return
	}
	l.mode = m
	l.locked = false
	l.hasCurrent = false
	l.current = Source{}
}

// Mode returns the active discovery mode.
func (l *Locator) Mode() Mode {
	return l.mode
}

// SetFixedPath updates the user-specified path used in ModeFixedPath.
func (l *Locator) SetFixedPath(p string) {
	l.fixedPath = p
}

// SetRoot updates the auto-detect root folder. Changing the root identity
// clears the lock.
func (l *Locator) SetRoot(dir string) {
	clean := filepath.Clean(dir)
	if dir == "" {
		clean = ""
	}
	if clean != l.rootDir {
		l.rootDir = clean
		l.locked = false
	}
}

// Root returns the configured auto-detect root folder.
func (l *Locator) Root() string {
	return l.rootDir
}

// SetLocked pins the currently resolved source against re-scanning. The lock
// clears automatically when the root folder or the mode changes.
func (l *Locator) SetLocked(locked bool) {
	l.locked = locked
}

// Locked reports whether the current source is pinned.
func (l *Locator) Locked() bool {
	return l.locked
}

// Current returns the last resolved source, if any.
func (l *Locator) Current() (Source, bool) {
	return l.current, l.hasCurrent
}

// Resolve re-evaluates the active source. It returns the resolved source and
// whether its identity differs from the previously tracked one. Expected
// failures come back as *ResolveError; the caller records them, it never
// aborts the loop.
//
// In ModePeerPush local discovery is disabled and Resolve is a no-op.
func (l *Locator) Resolve(now time.Time) (Source, bool, error) {
	switch l.mode {
	case ModeFixedPath:
		return l.resolveFixed(now)
	case ModeAutoDetect:
		return l.resolveAuto(now)
	default:
		return l.current, false, nil
	}
}

func (l *Locator) resolveFixed(now time.Time) (Source, bool, error) {
	p := strings.TrimSpace(l.fixedPath)
	if p == "" {
		return Source{}, false, resolveErr(ErrEmptyPath, "fixed-path", "no world path configured")
	}
	if strings.ContainsAny(p, invalidPathChars) {
		return Source{}, false, resolveErr(ErrInvalidPath, p, "world path %q contains illegal characters", p)
	}
	p = filepath.Clean(p)
	changed := l.changedTo(p)
	return l.adopt(p, now), changed, nil
}

func (l *Locator) resolveAuto(now time.Time) (Source, bool, error) {
	if l.rootDir == "" {
		return Source{}, false, resolveErr(ErrEmptyPath, "root", "no saves folder configured")
	}
	if info, err := os.Stat(l.rootDir); err != nil || !info.IsDir() {
		return Source{}, false, resolveErr(ErrNoRootFolder, l.rootDir, "saves folder %q does not exist", l.rootDir)
	}

	// A live lock reuses the pinned source without scanning, but existence is
	// still re-verified. A pinned source that disappeared falls through to a
	// fresh scan on this same tick; stale handles are never reused.
	if l.locked && l.hasCurrent {
		if _, err := os.Stat(l.current.Path); err == nil {
			return l.adopt(l.current.Path, now), false, nil
		}
	}

	best, err := l.scan()
	if err != nil {
		return Source{}, false, err
	}
	changed := l.changedTo(best)
	return l.adopt(best, now), changed, nil
}

// scan enumerates immediate subdirectories of the root and picks the
// eligible one with the newest mtime. Ties prefer the previously selected
// source if still eligible, then the lexicographically smallest path, so
// repeated scans are stable across platforms.
func (l *Locator) scan() (string, error) {
	entries, err := os.ReadDir(l.rootDir)
	if err != nil {
		return "", resolveErr(ErrNoRootFolder, l.rootDir, "cannot read saves folder %q: %v", l.rootDir, err)
	}

	var (
		bestPath string
		bestMod  time.Time
		found    bool
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(l.rootDir, e.Name())
		if !l.eligible(dir) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		switch {
		case !found, mod.After(bestMod):
			bestPath, bestMod, found = dir, mod, true
		case mod.Equal(bestMod):
			if l.hasCurrent && dir == l.current.Path {
				bestPath = dir
			} else if !(l.hasCurrent && bestPath == l.current.Path) && dir < bestPath {
				bestPath = dir
			}
		}
	}
	if !found {
		return "", resolveErr(ErrNoCandidateFound, l.rootDir, "no world found under %q", l.rootDir)
	}
	return bestPath, nil
}

// changedTo reports whether adopting path would change the tracked identity.
func (l *Locator) changedTo(path string) bool {
	return !l.hasCurrent || l.current.Path != path
}

// adopt updates the tracked source. An unchanged identity keeps the existing
// handle (with refreshed existence and timestamp) so downstream state is not
// spuriously invalidated.
func (l *Locator) adopt(path string, now time.Time) Source {
	_, err := os.Stat(path)
	l.current = Source{
		Path:           path,
		Exists:         err == nil,
		LastResolvedAt: now,
	}
	l.hasCurrent = true
	return l.current
}
