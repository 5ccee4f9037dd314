// Package scene is an in-memory node graph that locators can search.
//
// A Graph is an ordered forest of named nodes. Each node carries at most one tag
// and any number of facets. Traversals are pre-order, depth first, in child order.
package scene

import (
	"slices"
	"strings"
	"sync"

	"github.com/AnatoleLucet/finder"
)

type Graph struct {
	mu sync.RWMutex

	roots []*Node

	listenersMu sync.Mutex
	listeners   map[int]func()
	nextID      int
}

var _ finder.Host = (*Graph)(nil)

func New() *Graph {
	return &Graph{listeners: make(map[int]func())}
}

// Add creates a node under parent, or a new root when parent is nil.
// Nodes are tagged finder.DefaultTag unless WithTag says otherwise.
func (g *Graph) Add(parent *Node, name string, opts ...NodeOption) *Node {
	n := &Node{graph: g, name: name, tag: finder.DefaultTag}
	for _, opt := range opts {
		opt(n)
	}

	g.mu.Lock()
	if parent == nil {
		g.roots = append(g.roots, n)
	} else {
		if parent.graph != g {
			g.mu.Unlock()
			panic("scene: parent belongs to another graph")
		}
		if parent.destroyed {
			g.mu.Unlock()
			panic("scene: parent is destroyed")
		}
		parent.addChild(n)
	}
	g.mu.Unlock()

	g.notify()
	return n
}

func (g *Graph) removeRoot(n *Node) {
	if i := slices.Index(g.roots, n); i >= 0 {
		g.roots = slices.Delete(g.roots, i, i+1)
	}
}

func (g *Graph) Roots() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.roots)
}

// OnChange registers fn to run after every structural change: nodes added or destroyed,
// facets attached or detached, tags changed. It returns a function that unregisters fn.
func (g *Graph) OnChange(fn func()) (cancel func()) {
	g.listenersMu.Lock()
	defer g.listenersMu.Unlock()

	id := g.nextID
	g.nextID++
	g.listeners[id] = fn

	return func() {
		g.listenersMu.Lock()
		defer g.listenersMu.Unlock()
		delete(g.listeners, id)
	}
}

func (g *Graph) notify() {
	g.listenersMu.Lock()
	ids := make([]int, 0, len(g.listeners))
	for id := range g.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, g.listeners[id])
	}
	g.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Walk visits every node in pre-order with its depth, roots at depth 0.
// Returning false from fn stops the walk. The graph is snapshotted first, so fn
// may read and modify it; changes are not seen by the ongoing walk.
func (g *Graph) Walk(fn func(n *Node, depth int) bool) {
	type visit struct {
		node  *Node
		depth int
	}

	g.mu.RLock()
	var visits []visit
	var collect func(n *Node, depth int)
	collect = func(n *Node, depth int) {
		visits = append(visits, visit{n, depth})
		for child := range n.children() {
			collect(child, depth+1)
		}
	}
	for _, root := range g.roots {
		collect(root, 0)
	}
	g.mu.RUnlock()

	for _, v := range visits {
		if !fn(v.node, v.depth) {
			return
		}
	}
}

// own returns node as a live *Node of this graph.
func (g *Graph) own(node finder.Node) (*Node, bool) {
	n, ok := node.(*Node)
	if !ok || n == nil || n.graph != g || n.destroyed {
		return nil, false
	}
	return n, true
}

func (g *Graph) each(yield func(*Node) bool) {
	for _, root := range g.roots {
		if !root.walk(yield) {
			return
		}
	}
}

func firstFacet(n *Node, m finder.Match) (finder.Facet, bool) {
	for _, f := range n.facets {
		if f != nil && m(f) {
			return f, true
		}
	}
	return nil, false
}

func appendFacets(dst []finder.Facet, n *Node, m finder.Match) []finder.Facet {
	for _, f := range n.facets {
		if f != nil && m(f) {
			dst = append(dst, f)
		}
	}
	return dst
}

func (g *Graph) Facet(node finder.Node, m finder.Match) (finder.Facet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.own(node)
	if !ok {
		return nil, false
	}
	return firstFacet(n, m)
}

func (g *Graph) Facets(node finder.Node, m finder.Match) []finder.Facet {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.own(node)
	if !ok {
		return nil
	}
	return appendFacets(nil, n, m)
}

func (g *Graph) FacetInDescendants(node finder.Node, m finder.Match) (finder.Facet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.own(node)
	if !ok {
		return nil, false
	}
	for cur := range n.preorder() {
		if f, ok := firstFacet(cur, m); ok {
			return f, true
		}
	}
	return nil, false
}

func (g *Graph) FacetsInDescendants(node finder.Node, m finder.Match) []finder.Facet {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.own(node)
	if !ok {
		return nil
	}

	var found []finder.Facet
	for cur := range n.preorder() {
		found = appendFacets(found, cur, m)
	}
	return found
}

func (g *Graph) FacetInAncestors(node finder.Node, m finder.Match) (finder.Facet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.own(node)
	if !ok {
		return nil, false
	}
	for cur := range n.lineage() {
		if f, ok := firstFacet(cur, m); ok {
			return f, true
		}
	}
	return nil, false
}

func (g *Graph) FacetsInAncestors(node finder.Node, m finder.Match) []finder.Facet {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.own(node)
	if !ok {
		return nil
	}

	var found []finder.Facet
	for cur := range n.lineage() {
		found = appendFacets(found, cur, m)
	}
	return found
}

func (g *Graph) FindFirst(m finder.Match) (finder.Facet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var found finder.Facet
	var ok bool
	g.each(func(n *Node) bool {
		found, ok = firstFacet(n, m)
		return !ok
	})
	return found, ok
}

func (g *Graph) FindAll(m finder.Match) []finder.Facet {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var found []finder.Facet
	g.each(func(n *Node) bool {
		found = appendFacets(found, n, m)
		return true
	})
	return found
}

// NodeByName returns the first node, in pre-order, called name.
// A name containing a slash is resolved as a path instead, see NodeByPath.
func (g *Graph) NodeByName(name string) (finder.Node, bool) {
	if strings.Contains(name, "/") {
		n, ok := g.NodeByPath(name)
		if !ok {
			return nil, false
		}
		return n, true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var found *Node
	g.each(func(n *Node) bool {
		if n.name == name {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil, false
	}
	return found, true
}

// NodeByPath resolves a slash-separated path of names from a root, like "/World/Player".
// The leading slash is optional. At each level the first child with the name wins.
func (g *Graph) NodeByPath(path string) (*Node, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var cur *Node
	for _, root := range g.roots {
		if root.name == parts[0] {
			cur = root
			break
		}
	}

	for _, part := range parts[1:] {
		if cur == nil {
			break
		}

		var next *Node
		for child := range cur.children() {
			if child.name == part {
				next = child
				break
			}
		}
		cur = next
	}

	return cur, cur != nil
}

// NodesByTag returns every node carrying tag, in pre-order.
func (g *Graph) NodesByTag(tag string) []finder.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var nodes []finder.Node
	g.each(func(n *Node) bool {
		if n.tag == tag {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}
