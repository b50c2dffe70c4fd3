package registry

import (
	"sync"

	"github.com/calder/savewatch/internal/logging"
	"github.com/calder/savewatch/internal/track"
)

// Manager is the category/version collaborator: it validates switches
// against the registry and holds the latest reconciled snapshot for
// display. It implements track.ProgressSink.
type Manager struct {
	reg *Registry

	mu       sync.RWMutex
	category Category
	version  string
	state    track.Snapshot
	hasState bool
}

// NewManager creates a Manager with the given starting category and
// version. Invalid starting values are rejected.
func NewManager(reg *Registry, category, version string) (*Manager, error) {
	c, err := reg.Lookup(category)
	if err != nil {
		return nil, err
	}
	m := &Manager{reg: reg, category: c}
	if version != "" && !c.HasVersion(version) {
		logging.Warn("configured version not supported by category, ignoring",
			"category", c.Name, "version", version)
		version = ""
	}
	m.version = version
	return m, nil
}

// SetCategory switches the active category. Unknown names are refused.
func (m *Manager) SetCategory(name string) bool {
	c, err := m.reg.Lookup(name)
	if err != nil {
		logging.Warn("refusing category switch", "name", name, "error", err)
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Name == m.category.Name {
		return true
	}
	m.category = c
	// A category switch invalidates any version the new category does not
	// support, and any snapshot counted under the old rules.
	if m.version != "" && !c.HasVersion(m.version) {
		m.version = ""
	}
	m.state = track.Snapshot{}
	m.hasState = false
	return true
}

// SetVersion switches the active version within the current category.
func (m *Manager) SetVersion(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.category.HasVersion(name) {
		logging.Warn("refusing version switch", "category", m.category.Name, "version", name)
		return false
	}
	m.version = name
	return true
}

// SetState stores the latest reconciled snapshot.
func (m *Manager) SetState(s track.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.hasState = true
}

// Current returns the active category and version.
func (m *Manager) Current() (category, version string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.category.Name, m.version
}

// State returns the latest snapshot, if one has been reconciled.
func (m *Manager) State() (track.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.hasState
}
