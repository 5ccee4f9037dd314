package internal

import (
	"errors"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNode is a node of stubHost: a name, a tag, facets and a parent.
type stubNode struct {
	name   string
	tag    string
	parent *stubNode
	facets []Facet
}

// stubHost keeps nodes in insertion order, which doubles as pre-order when parents come first.
type stubHost struct {
	nodes []*stubNode
	calls int
}

func (h *stubHost) add(parent *stubNode, name, tag string, facets ...Facet) *stubNode {
	n := &stubNode{name: name, tag: tag, parent: parent, facets: facets}
	h.nodes = append(h.nodes, n)
	return n
}

func (h *stubHost) descends(n, from *stubNode) bool {
	for ; n != nil; n = n.parent {
		if n == from {
			return true
		}
	}
	return false
}

func (h *stubHost) collect(keep func(*stubNode) bool, m Match) []Facet {
	h.calls++

	var found []Facet
	for _, n := range h.nodes {
		if !keep(n) {
			continue
		}
		for _, f := range n.facets {
			if m(f) {
				found = append(found, f)
			}
		}
	}
	return found
}

func first(fs []Facet) (Facet, bool) {
	if len(fs) == 0 {
		return nil, false
	}
	return fs[0], true
}

func (h *stubHost) Facet(n Node, m Match) (Facet, bool) { return first(h.Facets(n, m)) }
func (h *stubHost) Facets(n Node, m Match) []Facet {
	return h.collect(func(s *stubNode) bool { return s == n }, m)
}

func (h *stubHost) FacetInDescendants(n Node, m Match) (Facet, bool) {
	return first(h.FacetsInDescendants(n, m))
}

func (h *stubHost) FacetsInDescendants(n Node, m Match) []Facet {
	from := n.(*stubNode)
	return h.collect(func(s *stubNode) bool { return h.descends(s, from) }, m)
}

func (h *stubHost) FacetInAncestors(n Node, m Match) (Facet, bool) {
	return first(h.FacetsInAncestors(n, m))
}

func (h *stubHost) FacetsInAncestors(n Node, m Match) []Facet {
	h.calls++

	var found []Facet
	for s := n.(*stubNode); s != nil; s = s.parent {
		for _, f := range s.facets {
			if m(f) {
				found = append(found, f)
			}
		}
	}
	return found
}

func (h *stubHost) FindFirst(m Match) (Facet, bool) { return first(h.FindAll(m)) }
func (h *stubHost) FindAll(m Match) []Facet {
	return h.collect(func(*stubNode) bool { return true }, m)
}

func (h *stubHost) NodeByName(name string) (Node, bool) {
	for _, n := range h.nodes {
		if n.name == name {
			return n, true
		}
	}
	return nil, false
}

func (h *stubHost) NodesByTag(tag string) []Node {
	var nodes []Node
	for _, n := range h.nodes {
		if n.tag == tag {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func query[T any]() Query {
	typ := reflect.TypeFor[T]()
	return Query{
		Key:  typ,
		Name: typ.String(),
		Match: func(f Facet) bool {
			_, ok := f.(T)
			return ok
		},
	}
}

type tagged []string

func TestCache(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		c := NewCache()
		calls := 0
		resolve := func() (Facet, bool, error) {
			calls++
			return "x", true, nil
		}

		f, ok, hit, err := c.One("k", resolve)
		require.NoError(t, err)
		assert.Equal(t, "x", f)
		assert.True(t, ok)
		assert.False(t, hit)

		f, _, hit, _ = c.One("k", resolve)
		assert.Equal(t, "x", f)
		assert.True(t, hit)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, c.SingleCount())
	})

	t.Run("absent and failed single results are skipped", func(t *testing.T) {
		c := NewCache()

		_, ok, _, err := c.One("absent", func() (Facet, bool, error) { return nil, false, nil })
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, _, err = c.One("failed", func() (Facet, bool, error) { return nil, false, errors.New("boom") })
		assert.EqualError(t, err, "boom")

		assert.Equal(t, 0, c.SingleCount())
	})

	t.Run("multiple", func(t *testing.T) {
		c := NewCache()

		found, hit, err := c.All("empty", func() ([]Facet, error) { return []Facet{}, nil })
		require.NoError(t, err)
		assert.Empty(t, found)
		assert.False(t, hit)

		_, hit, _ = c.All("empty", func() ([]Facet, error) { return []Facet{"late"}, nil })
		assert.True(t, hit)

		_, _, err = c.All("skip", func() ([]Facet, error) { return nil, nil })
		require.NoError(t, err)

		assert.Equal(t, 1, c.MultipleCount())

		c.Clear()
		assert.Equal(t, 0, c.MultipleCount())
		assert.Equal(t, 0, c.SingleCount())
	})
}

func TestRuleState(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		r := DefaultRuleState()

		assert.Equal(t, ModeByScope, r.Mode)
		assert.Equal(t, ScopeSelf, r.Scope)
		assert.Nil(t, r.Anchor)
		assert.Equal(t, DefaultTag, r.Tag)
		assert.Equal(t, []Facet{nil}, r.ReferenceFacets)
		assert.Equal(t, []Node{nil}, r.ReferenceNodes)
		assert.True(t, r.RaiseOnNotFound)
		assert.True(t, r.Diagnostics)
		assert.False(t, r.Caching)
	})

	t.Run("setters reject missing parameters", func(t *testing.T) {
		r := DefaultRuleState()

		assert.ErrorIs(t, r.SetByScope(nil, ScopeGlobal), ErrInvalidArgument)
		assert.ErrorIs(t, r.SetByName("", ScopeGlobal), ErrInvalidArgument)
		assert.ErrorIs(t, r.SetByTag("", ScopeGlobal), ErrInvalidArgument)
		assert.ErrorIs(t, r.SetByReferenceFacets(nil), ErrInvalidArgument)
		assert.ErrorIs(t, r.SetByReferenceNodes(ScopeGlobal, nil), ErrInvalidArgument)

		assert.Equal(t, DefaultRuleState(), r)
	})

	t.Run("setters keep unrelated parameters", func(t *testing.T) {
		r := DefaultRuleState()

		require.NoError(t, r.SetByName("Player", ScopeDescendants))
		require.NoError(t, r.SetByTag("Enemy", ScopeAncestors))
		r.SetNullAlways()

		assert.Equal(t, ModeNullAlways, r.Mode)
		assert.Equal(t, "Player", r.Name)
		assert.Equal(t, "Enemy", r.Tag)
		assert.Equal(t, ScopeAncestors, r.Scope)
	})

	t.Run("empty reference lists are accepted", func(t *testing.T) {
		r := DefaultRuleState()

		require.NoError(t, r.SetByReferenceFacets([]Facet{}))
		assert.Empty(t, r.ReferenceFacets)
		require.NoError(t, r.SetByReferenceNodes(ScopeSelf, []Node{}))
		assert.Empty(t, r.ReferenceNodes)
	})

	t.Run("clone does not alias", func(t *testing.T) {
		r := DefaultRuleState()
		facets := []Facet{"a", "b"}
		require.NoError(t, r.SetByReferenceFacets(facets))

		facets[0] = "changed"
		c := r.Clone()
		c.ReferenceFacets[1] = "changed"

		assert.Equal(t, []Facet{"a", "b"}, r.ReferenceFacets)
	})
}

func TestText(t *testing.T) {
	for m := ModeNullAlways; m <= ModeByReferenceNodes; m++ {
		text, err := m.MarshalText()
		require.NoError(t, err)

		var back Mode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, m, back)
	}

	for s := ScopeSelf; s <= ScopeGlobal; s++ {
		parsed, err := ParseScope(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseMode("by_magic")
	assert.ErrorIs(t, err, ErrInvalidMode)
	_, err = ParseScope("siblings")
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = Mode(42).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, "mode(42)", Mode(42).String())
	assert.Equal(t, "scope(-1)", Scope(-1).String())
}

func TestScopeDispatch(t *testing.T) {
	h := &stubHost{}
	root := h.add(nil, "Root", DefaultTag, 1)
	mid := h.add(root, "Mid", DefaultTag, 2, "s")
	leaf := h.add(mid, "Leaf", DefaultTag, 3)
	h.add(nil, "Other", DefaultTag, 4)

	ints := query[int]().Match

	cases := []struct {
		scope Scope
		from  *stubNode
		want  []Facet
	}{
		{ScopeSelf, mid, []Facet{2}},
		{ScopeDescendants, mid, []Facet{2, 3}},
		{ScopeAncestors, leaf, []Facet{3, 2, 1}},
		{ScopeGlobal, leaf, []Facet{1, 2, 3, 4}},
	}

	for _, tc := range cases {
		t.Run(tc.scope.String(), func(t *testing.T) {
			all, err := FindAll(h, tc.from, tc.scope, ints)
			require.NoError(t, err)
			assert.Equal(t, tc.want, all)

			f, ok, err := FindOne(h, tc.from, tc.scope, ints)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tc.want[0], f)
		})
	}

	t.Run("empty results are never nil", func(t *testing.T) {
		all, err := FindAll(h, leaf, ScopeSelf, query[bool]().Match)
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})

	t.Run("nil anchor", func(t *testing.T) {
		_, _, err := FindOne(h, nil, ScopeGlobal, ints)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.EqualError(t, err, "invalid argument: must set anchor before find")

		_, err = FindAll(h, nil, ScopeSelf, ints)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, _, err := FindOne(h, leaf, Scope(9), ints)
		assert.ErrorIs(t, err, ErrInvalidMode)

		_, err = FindAll(h, leaf, Scope(9), ints)
		assert.ErrorIs(t, err, ErrInvalidMode)
	})
}

func TestEngine(t *testing.T) {
	newHost := func() (*stubHost, *stubNode, *stubNode) {
		h := &stubHost{}
		a := h.add(nil, "A", "T", 1, "shared")
		b := h.add(nil, "B", "T", 2, "shared")
		return h, a, b
	}

	t.Run("by tag dedupes and ignores the scope", func(t *testing.T) {
		h, _, _ := newHost()
		e := NewEngine(h, Config{})
		require.NoError(t, e.Mutate(func(r *RuleState) error { return r.SetByTag("T", ScopeGlobal) }))

		all, err := e.All(query[string](), nil)
		require.NoError(t, err)
		assert.Equal(t, []Facet{"shared"}, all)

		all, err = e.All(query[int](), nil)
		require.NoError(t, err)
		assert.Equal(t, []Facet{1, 2}, all)
	})

	t.Run("by reference nodes dedupes, by reference facets does not", func(t *testing.T) {
		h, a, b := newHost()
		e := NewEngine(h, Config{})

		require.NoError(t, e.Mutate(func(r *RuleState) error {
			return r.SetByReferenceNodes(ScopeSelf, []Node{a, nil, b, a})
		}))
		all, err := e.All(query[string](), nil)
		require.NoError(t, err)
		assert.Equal(t, []Facet{"shared"}, all)

		require.NoError(t, e.Mutate(func(r *RuleState) error {
			return r.SetByReferenceFacets([]Facet{"x", nil, 7, "x"})
		}))
		all, err = e.All(query[string](), nil)
		require.NoError(t, err)
		assert.Equal(t, []Facet{"x", "x"}, all)
	})

	t.Run("multi misses on names are not cached", func(t *testing.T) {
		h, _, _ := newHost()
		e := NewEngine(h, Config{})
		require.NoError(t, e.Mutate(func(r *RuleState) error { return r.SetByName("Nobody", ScopeSelf) }))
		e.Toggle(func(r *RuleState) {
			r.Caching = true
			r.RaiseOnNotFound = false
		})

		all, err := e.All(query[int](), nil)
		require.NoError(t, err)
		assert.Empty(t, all)
		assert.Equal(t, 0, e.CachesCount())

		e.Toggle(func(r *RuleState) { r.RaiseOnNotFound = true })
		_, err = e.All(query[int](), nil)
		assert.EqualError(t, err, `not found: int in node named "Nobody" [by_name]`)
	})

	t.Run("invalid queries", func(t *testing.T) {
		h, a, _ := newHost()
		e := NewEngine(h, Config{})
		require.NoError(t, e.Mutate(func(r *RuleState) error { return r.SetByScope(a, ScopeSelf) }))

		_, err := e.One(Query{Name: "nothing"}, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = e.All(Query{Key: "k"}, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("present bypasses the cache", func(t *testing.T) {
		h, a, _ := newHost()
		e := NewEngine(h, Config{})
		require.NoError(t, e.Mutate(func(r *RuleState) error { return r.SetByScope(a, ScopeSelf) }))
		e.Toggle(func(r *RuleState) { r.Caching = true })

		for range 2 {
			ok, err := e.Present(query[int](), nil)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		assert.Equal(t, 2, h.calls)
		assert.Equal(t, 0, e.TotalCacheCount())
	})

	t.Run("present all skips empty queries and names each miss once", func(t *testing.T) {
		h, a, _ := newHost()
		e := NewEngine(h, Config{})
		require.NoError(t, e.Mutate(func(r *RuleState) error { return r.SetByScope(a, ScopeSelf) }))

		ok, err := e.PresentAll([]Query{query[int](), {Name: "ignored"}}, nil)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = e.PresentAll(nil, nil)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = e.PresentAll([]Query{query[bool](), query[int](), query[bool](), query[tagged]()}, nil)
		assert.False(t, ok)
		assert.EqualError(t, err, "not found: requires bool / internal.tagged [by_scope]")

		e.Toggle(func(r *RuleState) { r.RaiseOnNotFound = false })
		ok, err = e.PresentAll([]Query{query[bool]()}, nil)
		assert.False(t, ok)
		assert.NoError(t, err)
	})

	t.Run("null always never raises", func(t *testing.T) {
		h, _, _ := newHost()
		e := NewEngine(h, Config{})
		require.NoError(t, e.Mutate(func(r *RuleState) error {
			r.SetNullAlways()
			return nil
		}))

		f, err := e.One(query[int](), nil)
		assert.Nil(t, f)
		assert.NoError(t, err)

		ok, err := e.PresentAll([]Query{query[int]()}, nil)
		assert.False(t, ok)
		assert.NoError(t, err)
		assert.Equal(t, 0, h.calls)
	})
}

func TestAppendUnique(t *testing.T) {
	seen := make(map[any]struct{})
	shared := &stubNode{}

	got := appendUnique(nil, seen, []Facet{1, shared, nil, 1})
	got = appendUnique(got, seen, []Facet{shared, []int{1}, []int{1}, 2})

	assert.Len(t, got, 5)
	assert.Equal(t, 1, got[0])
	assert.Same(t, shared, got[1])
	assert.Equal(t, []int{1}, got[2])
	assert.Equal(t, []int{1}, got[3])
	assert.Equal(t, 2, got[4])
}

func TestAppendUniqueDynamicValues(t *testing.T) {
	type boxed struct{ v any }
	seen := make(map[any]struct{})

	var got []Facet
	assert.NotPanics(t, func() {
		got = appendUnique(nil, seen, []Facet{boxed{[]int{1}}, boxed{2}, boxed{[]int{1}}, boxed{2}})
	})
	assert.Len(t, got, 3)
}

func TestIsNil(t *testing.T) {
	var node *stubNode
	var m map[string]int
	var fn func()

	for _, v := range []any{nil, node, m, fn, []int(nil)} {
		assert.True(t, IsNil(v), "%T", v)
	}
	for _, v := range []any{&stubNode{}, 0, "", struct{}{}, []int{}} {
		assert.False(t, IsNil(v), "%T", v)
	}

	r := DefaultRuleState()
	assert.ErrorIs(t, r.SetByScope(node, ScopeSelf), ErrInvalidArgument)

	h := &stubHost{}
	_, _, err := FindOne(h, node, ScopeGlobal, query[int]().Match)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = FindAll(h, node, ScopeGlobal, query[int]().Match)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, h.calls)
}

func TestCallSite(t *testing.T) {
	t.Run("test files are callers", func(t *testing.T) {
		site, ok := RuntimeCallSite()
		require.True(t, ok)
		assert.Contains(t, site.Function, "TestCallSite")
		assert.Equal(t, "engine_test.go", filepath.Base(site.File))
	})

	t.Run("library frames", func(t *testing.T) {
		frames := []runtime.Frame{
			{Function: modulePath + ".Get[...]", File: "/src/finder/finder.go"},
			{Function: modulePath + "/internal.(*Engine).One", File: "/src/finder/internal/engine.go"},
		}
		for _, f := range frames {
			assert.True(t, libraryFrame(f), f.Function)
		}

		callers := []runtime.Frame{
			{Function: modulePath + "_test.TestX", File: "/src/finder/finder_test.go"},
			{Function: modulePath + "/scene.(*Graph).Add", File: "/src/finder/scene/graph.go"},
			{Function: "main.main", File: "/src/game/main.go"},
		}
		for _, f := range callers {
			assert.False(t, libraryFrame(f), f.Function)
		}
	})

	t.Run("annotation", func(t *testing.T) {
		site := CallSite{Function: "game.Update", File: "game.go", Line: 7}
		e := NewEngine(&stubHost{}, Config{CallSites: func() (CallSite, bool) { return site, true }})

		err := e.annotate(invalidArgument("tag"))
		assert.EqualError(t, err, "invalid argument: tag cannot be empty (called by game.go:7)")
		assert.Same(t, err, e.annotate(err))

		plain := errors.New("plain")
		assert.Same(t, plain, e.annotate(plain))

		e.Toggle(func(r *RuleState) { r.Diagnostics = false })
		assert.NotErrorAs(t, e.annotate(invalidArgument("tag")), new(*SiteError))
	})
}
