package internal

import "fmt"

var errNoAnchor = fmt.Errorf("%w: must set anchor before find", ErrInvalidArgument)

// FindOne returns the first facet matching m within scope of n.
func FindOne(h Host, n Node, scope Scope, m Match) (Facet, bool, error) {
	if IsNil(n) {
		return nil, false, errNoAnchor
	}

	var f Facet
	var ok bool

	switch scope {
	case ScopeSelf:
		f, ok = h.Facet(n, m)
	case ScopeDescendants:
		f, ok = h.FacetInDescendants(n, m)
	case ScopeAncestors:
		f, ok = h.FacetInAncestors(n, m)
	case ScopeGlobal:
		f, ok = h.FindFirst(m)
	default:
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidMode, scope)
	}

	if f == nil {
		return nil, false, nil
	}
	return f, ok, nil
}

// FindAll returns every facet matching m within scope of n.
// The result is never nil so that callers can tell it apart from a skipped search.
func FindAll(h Host, n Node, scope Scope, m Match) ([]Facet, error) {
	if IsNil(n) {
		return nil, errNoAnchor
	}

	var found []Facet

	switch scope {
	case ScopeSelf:
		found = h.Facets(n, m)
	case ScopeDescendants:
		found = h.FacetsInDescendants(n, m)
	case ScopeAncestors:
		found = h.FacetsInAncestors(n, m)
	case ScopeGlobal:
		found = h.FindAll(m)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, scope)
	}

	if found == nil {
		found = []Facet{}
	}
	return found, nil
}
