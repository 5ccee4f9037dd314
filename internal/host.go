package internal

import "reflect"

// Node is an opaque handle into the host graph. A nil interface is the absent node.
type Node = any

// Facet is a value attached to a node. A nil interface is the absent facet.
type Facet = any

// IsNil reports whether v is absent: a nil interface, or a nil pointer, map, slice,
// func or channel wrapped in one.
func IsNil(v any) bool {
	if v == nil {
		return true
	}

	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

// Match reports whether a facet satisfies a query.
type Match func(Facet) bool

// Host is the narrow view of the host graph the engine needs.
// Single lookups report absence through the boolean; multi lookups return nil or empty.
type Host interface {
	Facet(n Node, m Match) (Facet, bool)
	Facets(n Node, m Match) []Facet

	// node included, host-defined order
	FacetInDescendants(n Node, m Match) (Facet, bool)
	FacetsInDescendants(n Node, m Match) []Facet

	// node included, walking towards the root
	FacetInAncestors(n Node, m Match) (Facet, bool)
	FacetsInAncestors(n Node, m Match) []Facet

	FindFirst(m Match) (Facet, bool)
	FindAll(m Match) []Facet

	NodeByName(name string) (Node, bool)
	NodesByTag(tag string) []Node
}

// Query describes what is being looked up: a cache key, a display name and a predicate.
type Query struct {
	Key   any
	Name  string
	Match Match
}

func (q Query) valid() bool {
	return q.Key != nil && q.Match != nil
}
