// Package registry maps normalized category names to progress categories
// and holds the reconciled progress state the rest of the app reads.
package registry

import (
	"fmt"
	"strings"
	"sync"
)

// Category describes one trackable objective set and the game versions it
// supports.
type Category struct {
	Name     string
	Display  string
	Versions []string
}

// HasVersion reports whether the category supports the given version.
// An empty Versions list accepts anything.
func (c Category) HasVersion(v string) bool {
	if len(c.Versions) == 0 {
		return true
	}
	for _, have := range c.Versions {
		if have == v {
			return true
		}
	}
	return false
}

// Normalize folds a user- or peer-supplied category name into registry form.
func Normalize(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return strings.ReplaceAll(name, " ", "_")
}

// Registry resolves category names explicitly; unknown names are errors,
// never a silent fallthrough to a default.
type Registry struct {
	mu         sync.RWMutex
	categories map[string]Category
}

// New returns a registry preloaded with the built-in categories.
func New() *Registry {
	r := &Registry{categories: make(map[string]Category)}
	for _, c := range builtin() {
		r.categories[c.Name] = c
	}
	return r
}

func builtin() []Category {
	recent := []string{"1.19", "1.20", "1.21"}
	return []Category{
		{Name: "all_advancements", Display: "All Advancements", Versions: recent},
		{Name: "all_achievements", Display: "All Achievements", Versions: []string{"1.11", "1.12"}},
		{Name: "all_blocks", Display: "All Blocks", Versions: recent},
		{Name: "all_deaths", Display: "All Deaths", Versions: nil},
	}
}

// Register adds or replaces a category under its normalized name.
func (r *Registry) Register(c Category) error {
	name := Normalize(c.Name)
	if name == "" {
		return fmt.Errorf("empty category name")
	}
	c.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[name] = c
	return nil
}

// Lookup resolves a category by name.
func (r *Registry) Lookup(name string) (Category, error) {
	key := Normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[key]
	if !ok {
		return Category{}, fmt.Errorf("unknown category %q", name)
	}
	return c, nil
}

// Names returns all registered category names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	return names
}
