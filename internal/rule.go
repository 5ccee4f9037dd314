package internal

import (
	"fmt"
	"slices"
)

type Mode int

const (
	ModeNullAlways Mode = iota
	ModeByScope
	ModeByName
	ModeByTag
	ModeByReferenceFacets
	ModeByReferenceNodes
)

var modeNames = [...]string{
	ModeNullAlways:        "null_always",
	ModeByScope:           "by_scope",
	ModeByName:            "by_name",
	ModeByTag:             "by_tag",
	ModeByReferenceFacets: "by_reference_facets",
	ModeByReferenceNodes:  "by_reference_nodes",
}

func (m Mode) Valid() bool {
	return m >= ModeNullAlways && int(m) < len(modeNames)
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidMode, s)
}

type Scope int

const (
	ScopeSelf Scope = iota
	ScopeDescendants
	ScopeAncestors
	ScopeGlobal
)

var scopeNames = [...]string{
	ScopeSelf:        "self",
	ScopeDescendants: "descendants",
	ScopeAncestors:   "ancestors",
	ScopeGlobal:      "global",
}

func (s Scope) Valid() bool {
	return s >= ScopeSelf && int(s) < len(scopeNames)
}

func (s Scope) String() string {
	if !s.Valid() {
		return fmt.Sprintf("scope(%d)", int(s))
	}
	return scopeNames[s]
}

func (s Scope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: scope %d", ErrInvalidMode, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(text []byte) error {
	v, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseScope(s string) (Scope, error) {
	for i, name := range scopeNames {
		if name == s {
			return Scope(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown scope %q", ErrInvalidMode, s)
}

const DefaultTag = "Untagged"

// RuleState is the full configuration of a locator.
// Parameters that the active mode does not use are kept so switching back restores them.
type RuleState struct {
	Mode  Mode
	Scope Scope

	Anchor Node
	Name   string
	Tag    string

	ReferenceFacets []Facet
	ReferenceNodes  []Node

	Caching         bool
	RaiseOnNotFound bool
	Diagnostics     bool
}

func DefaultRuleState() RuleState {
	return RuleState{
		Mode:            ModeByScope,
		Scope:           ScopeSelf,
		Tag:             DefaultTag,
		ReferenceFacets: []Facet{nil},
		ReferenceNodes:  []Node{nil},
		RaiseOnNotFound: true,
		Diagnostics:     true,
	}
}

// Clone copies the reference slices so the caller can't alias the locator's state.
func (r RuleState) Clone() RuleState {
	r.ReferenceFacets = slices.Clone(r.ReferenceFacets)
	r.ReferenceNodes = slices.Clone(r.ReferenceNodes)
	return r
}

func (r *RuleState) SetNullAlways() {
	r.Mode = ModeNullAlways
}

func (r *RuleState) SetByScope(anchor Node, scope Scope) error {
	if IsNil(anchor) {
		return invalidArgument("anchor")
	}
	r.Mode = ModeByScope
	r.Scope = scope
	r.Anchor = anchor
	return nil
}

func (r *RuleState) SetByName(name string, scope Scope) error {
	if name == "" {
		return invalidArgument("name")
	}
	r.Mode = ModeByName
	r.Scope = scope
	r.Name = name
	return nil
}

func (r *RuleState) SetByTag(tag string, scope Scope) error {
	if tag == "" {
		return invalidArgument("tag")
	}
	r.Mode = ModeByTag
	r.Scope = scope
	r.Tag = tag
	return nil
}

func (r *RuleState) SetByReferenceFacets(facets []Facet) error {
	if facets == nil {
		return invalidArgument("facets")
	}
	r.Mode = ModeByReferenceFacets
	r.ReferenceFacets = slices.Clone(facets)
	return nil
}

func (r *RuleState) SetByReferenceNodes(scope Scope, nodes []Node) error {
	if nodes == nil {
		return invalidArgument("nodes")
	}
	r.Mode = ModeByReferenceNodes
	r.Scope = scope
	r.ReferenceNodes = slices.Clone(nodes)
	return nil
}

// describe renders the search context used in not-found messages.
func (r *RuleState) describe(anchor Node) string {
	switch r.Mode {
	case ModeByScope:
		return fmt.Sprintf("%s of %v", r.Scope, anchor)
	case ModeByName:
		return fmt.Sprintf("%s of node named %q", r.Scope, r.Name)
	case ModeByTag:
		return fmt.Sprintf("nodes tagged %q", r.Tag)
	case ModeByReferenceFacets:
		return "reference facets"
	case ModeByReferenceNodes:
		return fmt.Sprintf("%s of reference nodes", r.Scope)
	}
	return r.Mode.String()
}
