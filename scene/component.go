package scene

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/AnatoleLucet/finder"
)

// Component is a dynamically typed facet, identified by its kind.
// Scenes loaded from files attach components for kinds with no registered factory.
type Component struct {
	Kind  string
	Props map[string]string
}

func (c *Component) String() string {
	return c.Kind
}

type kindKey string

// Kind builds the query matching components of the given kind.
func Kind(name string) finder.Query {
	return finder.Query{
		Key:  kindKey(name),
		Name: name,
		Match: func(f finder.Facet) bool {
			c, ok := f.(*Component)
			return ok && c.Kind == name
		},
	}
}

// Factory builds a facet from the properties given in a scene file.
type Factory func(props map[string]string) (any, error)

type entry struct {
	query   finder.Query
	factory Factory
}

// Registry maps kind names to queries and, optionally, to factories for typed facets.
// Unregistered names fall back to Component kinds.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds name to the facet type T. When factory is non-nil, scene files
// naming the kind attach the facet it builds instead of a Component.
func Register[T any](r *Registry, name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{query: finder.TypeOf[T](), factory: factory}
}

// Query returns the query for name: the registered type if any, else the Component kind.
func (r *Registry) Query(name string) finder.Query {
	if r == nil {
		return Kind(name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[name]; ok {
		return e.query
	}
	return Kind(name)
}

func (r *Registry) Registered(name string) bool {
	if r == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names lists registered kinds, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Build creates the facet for kind: through its factory when one is registered,
// otherwise as a Component.
func (r *Registry) Build(kind string, props map[string]string) (any, error) {
	var factory Factory
	if r != nil {
		r.mu.RLock()
		factory = r.entries[kind].factory
		r.mu.RUnlock()
	}

	if factory == nil {
		return &Component{Kind: kind, Props: props}, nil
	}

	f, err := factory(props)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", kind, err)
	}
	if f == nil {
		return nil, fmt.Errorf("build %s: factory returned nil", kind)
	}
	return f, nil
}
