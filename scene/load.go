package scene

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidScene = errors.New("invalid scene")

type file struct {
	Nodes []nodeSpec `yaml:"nodes"`
}

type nodeSpec struct {
	Name     string      `yaml:"name"`
	Tag      string      `yaml:"tag"`
	Facets   []facetSpec `yaml:"facets"`
	Children []nodeSpec  `yaml:"children"`
}

// facetSpec is either a bare kind name or a {kind, props} mapping.
type facetSpec struct {
	Kind  string            `yaml:"kind"`
	Props map[string]string `yaml:"props"`
}

func (f *facetSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Kind = value.Value
		return nil
	}

	type plain facetSpec
	return value.Decode((*plain)(f))
}

// LoadFile reads a YAML scene from path. See LoadYAML.
func LoadFile(path string, reg *Registry) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}

	g, err := LoadYAML(data, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// LoadYAML builds a graph from a YAML document:
//
//	nodes:
//	  - name: World
//	    children:
//	      - name: Player
//	        tag: Player
//	        facets:
//	          - Health
//	          - kind: Weapon
//	            props: {damage: "12"}
//
// Facets are built through reg, which may be nil.
func LoadYAML(data []byte, reg *Registry) (*Graph, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
	}

	g := New()
	for i, ns := range f.Nodes {
		if err := g.build(nil, ns, reg, fmt.Sprintf("nodes[%d]", i)); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) build(parent *Node, ns nodeSpec, reg *Registry, at string) error {
	if ns.Name == "" {
		return fmt.Errorf("%w: %s: name cannot be empty", ErrInvalidScene, at)
	}

	var facets []any
	for i, fs := range ns.Facets {
		if fs.Kind == "" {
			return fmt.Errorf("%w: %s.facets[%d]: kind cannot be empty", ErrInvalidScene, at, i)
		}

		facet, err := reg.Build(fs.Kind, fs.Props)
		if err != nil {
			return fmt.Errorf("%w: %s.facets[%d]: %w", ErrInvalidScene, at, i, err)
		}
		facets = append(facets, facet)
	}

	opts := []NodeOption{WithFacets(facets...)}
	if ns.Tag != "" {
		opts = append(opts, WithTag(ns.Tag))
	}

	n := g.Add(parent, ns.Name, opts...)
	for i, child := range ns.Children {
		if err := g.build(n, child, reg, fmt.Sprintf("%s.children[%d]", at, i)); err != nil {
			return err
		}
	}
	return nil
}
