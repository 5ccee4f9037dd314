// Package rules loads locator rules from YAML or HCL files.
//
// A rule file names nodes by path or name and facets by kind. Resolving a file
// against a graph and a registry yields a finder.Rule that can be applied to a locator.
package rules

import (
	"errors"
	"fmt"

	"github.com/AnatoleLucet/finder"
	"github.com/AnatoleLucet/finder/scene"
)

var (
	ErrInvalidRule = errors.New("invalid rule")
	ErrUnresolved  = errors.New("unresolved reference")
)

const (
	NotFoundRaise = "raise"
	NotFoundEmpty = "empty"
)

// File is a rule as written in a file, before references are resolved.
// Absent fields keep the defaults of finder.DefaultRule.
type File struct {
	Mode   string `yaml:"mode" hcl:"mode,optional"`
	Scope  string `yaml:"scope" hcl:"scope,optional"`
	Anchor string `yaml:"anchor" hcl:"anchor,optional"`
	Name   string `yaml:"name" hcl:"name,optional"`
	Tag    string `yaml:"tag" hcl:"tag,optional"`

	ReferenceNodes  []string   `yaml:"reference_nodes" hcl:"reference_nodes,optional"`
	ReferenceFacets []FacetRef `yaml:"reference_facets" hcl:"reference_facet,block"`

	Cache       *bool  `yaml:"cache" hcl:"cache,optional"`
	NotFound    string `yaml:"not_found" hcl:"not_found,optional"`
	Diagnostics *bool  `yaml:"diagnostics" hcl:"diagnostics,optional"`

	// facet kinds checked by Requires
	Requires []string `yaml:"requires" hcl:"requires,optional"`
}

// FacetRef points at the first facet of a kind on a node.
type FacetRef struct {
	Node string `yaml:"node" hcl:"node"`
	Kind string `yaml:"kind" hcl:"kind"`
}

// NodeLookup finds the nodes and facets a file refers to. *scene.Graph implements it.
type NodeLookup interface {
	NodeByName(name string) (finder.Node, bool)
	Facet(node finder.Node, m finder.Match) (finder.Facet, bool)
}

// Resolve turns the file into a rule. Parameters of other modes are resolved and
// kept too, so the rule behaves as if each had been set through the locator.
// A by_scope rule without an anchor is accepted; lookups then need an explicit node.
// Empty reference lists count as absent.
func (f *File) Resolve(nodes NodeLookup, reg *scene.Registry) (finder.Rule, error) {
	r := finder.DefaultRule()

	mode := finder.ByScope
	if f.Mode != "" {
		m, err := finder.ParseMode(f.Mode)
		if err != nil {
			return r, fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		mode = m
	}

	if f.Scope != "" {
		s, err := finder.ParseScope(f.Scope)
		if err != nil {
			return r, fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		r.Scope = s
	}

	if f.Anchor != "" {
		n, err := node(nodes, f.Anchor)
		if err != nil {
			return r, fmt.Errorf("anchor: %w", err)
		}
		r.Anchor = n
	}

	if f.Name != "" {
		r.Name = f.Name
	}
	if f.Tag != "" {
		r.Tag = f.Tag
	}

	var refNodes []finder.Node
	if len(f.ReferenceNodes) > 0 {
		refNodes = make([]finder.Node, 0, len(f.ReferenceNodes))
		for i, path := range f.ReferenceNodes {
			n, err := node(nodes, path)
			if err != nil {
				return r, fmt.Errorf("reference_nodes[%d]: %w", i, err)
			}
			refNodes = append(refNodes, n)
		}
		r.ReferenceNodes = refNodes
	}

	var refFacets []finder.Facet
	if len(f.ReferenceFacets) > 0 {
		refFacets = make([]finder.Facet, 0, len(f.ReferenceFacets))
		for i, ref := range f.ReferenceFacets {
			facet, err := ref.resolve(nodes, reg)
			if err != nil {
				return r, fmt.Errorf("reference_facets[%d]: %w", i, err)
			}
			refFacets = append(refFacets, facet)
		}
		r.ReferenceFacets = refFacets
	}

	var err error
	switch mode {
	case finder.NullAlways:
		r.SetNullAlways()
	case finder.ByScope:
		r.Mode = finder.ByScope
		if r.Anchor != nil {
			err = r.SetByScope(r.Anchor, r.Scope)
		}
	case finder.ByName:
		err = r.SetByName(r.Name, r.Scope)
	case finder.ByTag:
		err = r.SetByTag(r.Tag, r.Scope)
	case finder.ByReferenceFacets:
		err = r.SetByReferenceFacets(refFacets)
	case finder.ByReferenceNodes:
		err = r.SetByReferenceNodes(r.Scope, refNodes)
	}
	if err != nil {
		return r, fmt.Errorf("%w: %s: %w", ErrInvalidRule, mode, err)
	}

	if f.Cache != nil {
		r.Caching = *f.Cache
	}
	if f.Diagnostics != nil {
		r.Diagnostics = *f.Diagnostics
	}

	switch f.NotFound {
	case "":
	case NotFoundRaise:
		r.RaiseOnNotFound = true
	case NotFoundEmpty:
		r.RaiseOnNotFound = false
	default:
		return r, fmt.Errorf("%w: not_found must be %q or %q, got %q", ErrInvalidRule, NotFoundRaise, NotFoundEmpty, f.NotFound)
	}

	return r, nil
}

// Queries returns the queries for the kinds listed under requires, in order.
func (f *File) Queries(reg *scene.Registry) []finder.Query {
	qs := make([]finder.Query, 0, len(f.Requires))
	for _, kind := range f.Requires {
		qs = append(qs, reg.Query(kind))
	}
	return qs
}

// Apply resolves the file and writes the rule to l, clearing its cache.
func (f *File) Apply(l *finder.Locator, nodes NodeLookup, reg *scene.Registry) error {
	r, err := f.Resolve(nodes, reg)
	if err != nil {
		return err
	}

	l.SetRule(r)
	return nil
}

func node(nodes NodeLookup, name string) (finder.Node, error) {
	n, ok := nodes.NodeByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: no node %q", ErrUnresolved, name)
	}
	return n, nil
}

func (ref FacetRef) resolve(nodes NodeLookup, reg *scene.Registry) (finder.Facet, error) {
	if ref.Node == "" || ref.Kind == "" {
		return nil, fmt.Errorf("%w: node and kind are required", ErrInvalidRule)
	}

	n, err := node(nodes, ref.Node)
	if err != nil {
		return nil, err
	}

	facet, ok := nodes.Facet(n, reg.Query(ref.Kind).Match)
	if !ok {
		return nil, fmt.Errorf("%w: no %s on %q", ErrUnresolved, ref.Kind, ref.Node)
	}
	return facet, nil
}
