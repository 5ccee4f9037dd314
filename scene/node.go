package scene

import (
	"iter"
	"reflect"
	"slices"
	"strings"
)

// Node is a position in a Graph. It holds facets and ordered children.
// Nodes are created through Graph.Add and live until Destroy.
type Node struct {
	graph *Graph

	name   string
	tag    string
	facets []any

	// called once when the node is destroyed
	onDestroy []func()

	destroyed bool

	parent       *Node
	prevSibling  *Node
	nextSibling  *Node
	childrenHead *Node
	childrenTail *Node
}

type NodeOption func(*Node)

func WithTag(tag string) NodeOption {
	return func(n *Node) { n.tag = tag }
}

func WithFacets(facets ...any) NodeOption {
	return func(n *Node) { n.facets = append(n.facets, facets...) }
}

func (n *Node) Name() string {
	n.graph.mu.RLock()
	defer n.graph.mu.RUnlock()
	return n.name
}

func (n *Node) Tag() string {
	n.graph.mu.RLock()
	defer n.graph.mu.RUnlock()
	return n.tag
}

func (n *Node) Parent() *Node {
	n.graph.mu.RLock()
	defer n.graph.mu.RUnlock()
	return n.parent
}

func (n *Node) Destroyed() bool {
	n.graph.mu.RLock()
	defer n.graph.mu.RUnlock()
	return n.destroyed
}

// Facets returns a copy of the facets attached to the node, in attach order.
func (n *Node) Facets() []any {
	n.graph.mu.RLock()
	defer n.graph.mu.RUnlock()
	return slices.Clone(n.facets)
}

// Path is the slash-separated list of names from the root, with a leading slash.
func (n *Node) Path() string {
	n.graph.mu.RLock()
	defer n.graph.mu.RUnlock()
	return n.path()
}

func (n *Node) path() string {
	var names []string
	for cur := n; cur != nil; cur = cur.parent {
		names = append(names, cur.name)
	}
	slices.Reverse(names)
	return "/" + strings.Join(names, "/")
}

func (n *Node) String() string {
	return n.Path()
}

// Children returns a snapshot of the node's children, in order.
func (n *Node) Children() []*Node {
	n.graph.mu.RLock()
	defer n.graph.mu.RUnlock()
	return slices.Collect(n.children())
}

func (n *Node) children() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		child := n.childrenHead

		for child != nil {
			if !yield(child) {
				return
			}

			child = child.nextSibling
		}
	}
}

// preorder yields n and its subtree, node before children.
func (n *Node) preorder() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		n.walk(yield)
	}
}

func (n *Node) walk(yield func(*Node) bool) bool {
	if !yield(n) {
		return false
	}
	for child := range n.children() {
		if !child.walk(yield) {
			return false
		}
	}
	return true
}

// lineage yields n and then each ancestor up to the root.
func (n *Node) lineage() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for cur := n; cur != nil; cur = cur.parent {
			if !yield(cur) {
				return
			}
		}
	}
}

func (parent *Node) addChild(child *Node) {
	child.parent = parent
	child.nextSibling = nil
	child.prevSibling = parent.childrenTail

	if parent.childrenTail != nil {
		parent.childrenTail.nextSibling = child
	} else {
		parent.childrenHead = child
	}

	parent.childrenTail = child
}

func (n *Node) unlink() {
	if n.prevSibling != nil {
		n.prevSibling.nextSibling = n.nextSibling
	} else if n.parent != nil {
		n.parent.childrenHead = n.nextSibling
	}

	if n.nextSibling != nil {
		n.nextSibling.prevSibling = n.prevSibling
	} else if n.parent != nil {
		n.parent.childrenTail = n.prevSibling
	}

	n.parent = nil
	n.prevSibling = nil
	n.nextSibling = nil
}

// Attach adds facets to the node.
func (n *Node) Attach(facets ...any) {
	n.graph.mu.Lock()
	n.facets = append(n.facets, facets...)
	n.graph.mu.Unlock()

	n.graph.notify()
}

// Detach removes a facet from the node. It reports whether the facet was attached.
// Facets that are not comparable, such as slices, can't be matched and are never detached.
func (n *Node) Detach(facet any) bool {
	if facet == nil || !reflect.ValueOf(facet).Comparable() {
		return false
	}

	n.graph.mu.Lock()
	i := slices.IndexFunc(n.facets, func(f any) bool {
		return reflect.ValueOf(f).Comparable() && f == facet
	})
	if i >= 0 {
		n.facets = slices.Delete(n.facets, i, i+1)
	}
	n.graph.mu.Unlock()

	if i < 0 {
		return false
	}
	n.graph.notify()
	return true
}

func (n *Node) SetTag(tag string) {
	n.graph.mu.Lock()
	n.tag = tag
	n.graph.mu.Unlock()

	n.graph.notify()
}

// OnDestroy registers fn to run once when the node or one of its ancestors is destroyed.
func (n *Node) OnDestroy(fn func()) {
	n.graph.mu.Lock()
	defer n.graph.mu.Unlock()
	n.onDestroy = append(n.onDestroy, fn)
}

// Destroy detaches the node and its subtree from the graph, then runs destroy hooks
// children first. Handles held elsewhere, including cached ones, are not invalidated.
func (n *Node) Destroy() {
	g := n.graph

	g.mu.Lock()
	if n.destroyed {
		g.mu.Unlock()
		return
	}

	if n.parent != nil {
		n.unlink()
	} else {
		g.removeRoot(n)
	}

	var hooks []func()
	n.destroy(&hooks)
	g.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	g.notify()
}

func (n *Node) destroy(hooks *[]func()) {
	for child := range n.children() {
		child.destroy(hooks)
	}
	n.childrenHead = nil
	n.childrenTail = nil

	n.destroyed = true
	*hooks = append(*hooks, n.onDestroy...)
	n.onDestroy = nil
}
