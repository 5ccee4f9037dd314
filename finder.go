package finder

import (
	"reflect"

	"github.com/AnatoleLucet/finder/internal"
	"github.com/google/uuid"
)

// Locator resolves facets from a host graph according to a single rule.
// It is not safe for concurrent use, see Confined.
type Locator struct {
	engine *internal.Engine
}

// New creates a locator over host with the default rule: ByScope, Self, no anchor,
// no caching, raising on not found.
func New(host Host, opts ...Option) *Locator {
	if host == nil {
		panic("finder: nil host")
	}

	var cfg internal.Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Locator{internal.NewEngine(host, cfg)}
}

func (l *Locator) mutate(change func(*internal.RuleState) error) *Locator {
	l.engine.Mutate(change)
	return l
}

// ByNullAlways makes every lookup return nothing, without ever failing.
func (l *Locator) ByNullAlways() *Locator {
	return l.mutate(func(r *internal.RuleState) error {
		r.SetNullAlways()
		return nil
	})
}

// ByScope searches scope relative to anchor. A nil anchor, including a nil pointer
// such as a missed NodeByPath, is rejected.
func (l *Locator) ByScope(anchor Node, scope Scope) *Locator {
	return l.mutate(func(r *internal.RuleState) error { return r.SetByScope(anchor, scope) })
}

// ByName searches scope relative to the first node called name.
func (l *Locator) ByName(name string, scope Scope) *Locator {
	return l.mutate(func(r *internal.RuleState) error { return r.SetByName(name, scope) })
}

// ByTag searches the nodes carrying tag. Each tagged node is searched on itself only;
// scope is stored but not used by this mode.
func (l *Locator) ByTag(tag string, scope Scope) *Locator {
	return l.mutate(func(r *internal.RuleState) error { return r.SetByTag(tag, scope) })
}

// ByReferenceFacets picks among the given facets. Nil entries are skipped.
func (l *Locator) ByReferenceFacets(facets ...Facet) *Locator {
	return l.mutate(func(r *internal.RuleState) error { return r.SetByReferenceFacets(facets) })
}

// ByReferenceNodes searches scope relative to each given node, in order. Nil entries are skipped.
func (l *Locator) ByReferenceNodes(scope Scope, nodes ...Node) *Locator {
	return l.mutate(func(r *internal.RuleState) error { return r.SetByReferenceNodes(scope, nodes) })
}

// WithCache memoizes results per requested type until the rule changes.
// While caching, the anchor passed to GetFrom must not vary.
func (l *Locator) WithCache() *Locator {
	l.engine.Toggle(func(r *internal.RuleState) { r.Caching = true })
	return l
}

func (l *Locator) WithoutCache() *Locator {
	l.engine.Toggle(func(r *internal.RuleState) { r.Caching = false })
	return l
}

// RaiseOnNotFound makes lookups that find nothing return an ErrNotFound error.
func (l *Locator) RaiseOnNotFound() *Locator {
	l.engine.Toggle(func(r *internal.RuleState) { r.RaiseOnNotFound = true })
	return l
}

// EmptyOnNotFound makes lookups that find nothing return the zero value or an empty slice.
func (l *Locator) EmptyOnNotFound() *Locator {
	l.engine.Toggle(func(r *internal.RuleState) { r.RaiseOnNotFound = false })
	return l
}

// WithDiagnostics annotates errors with the caller's location, when a call-site source is installed.
func (l *Locator) WithDiagnostics() *Locator {
	l.engine.Toggle(func(r *internal.RuleState) { r.Diagnostics = true })
	return l
}

func (l *Locator) WithoutDiagnostics() *Locator {
	l.engine.Toggle(func(r *internal.RuleState) { r.Diagnostics = false })
	return l
}

// ClearCache forgets every memoized result. Call it after restructuring the graph.
func (l *Locator) ClearCache() { l.engine.ClearCache() }

// Err returns the error of the last rejected rule change, if no change succeeded since.
func (l *Locator) Err() error { return l.engine.Err() }

// Rule returns a copy of the whole configuration.
func (l *Locator) Rule() Rule { return l.engine.Rule() }

// SetRule overwrites the whole configuration and clears the cache.
// Unlike the By* methods it does not validate parameters.
func (l *Locator) SetRule(r Rule) *Locator {
	l.engine.SetRule(r)
	return l
}

func (l *Locator) ID() uuid.UUID            { return l.engine.ID() }
func (l *Locator) Mode() Mode               { return l.engine.Rule().Mode }
func (l *Locator) Scope() Scope             { return l.engine.Rule().Scope }
func (l *Locator) Anchor() Node             { return l.engine.Rule().Anchor }
func (l *Locator) Name() string             { return l.engine.Rule().Name }
func (l *Locator) Tag() string              { return l.engine.Rule().Tag }
func (l *Locator) ReferenceFacets() []Facet { return l.engine.Rule().ReferenceFacets }
func (l *Locator) ReferenceNodes() []Node   { return l.engine.Rule().ReferenceNodes }
func (l *Locator) Caching() bool            { return l.engine.Rule().Caching }
func (l *Locator) RaisesOnNotFound() bool   { return l.engine.Rule().RaiseOnNotFound }
func (l *Locator) Diagnostics() bool        { return l.engine.Rule().Diagnostics }

// CacheCount is the number of memoized single results.
func (l *Locator) CacheCount() int { return l.engine.CacheCount() }

// CachesCount is the number of memoized multiple results.
func (l *Locator) CachesCount() int { return l.engine.CachesCount() }

func (l *Locator) TotalCacheCount() int { return l.engine.TotalCacheCount() }

// TypeOf builds the query matching facets assignable to T.
func TypeOf[T any]() Query {
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

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}

	return v.(T)
}

// Get resolves a facet of type T from the rule's anchor.
func Get[T any](l *Locator) (T, error) {
	f, err := l.engine.One(TypeOf[T](), nil)
	return as[T](f), err
}

// GetFrom resolves a facet of type T, searching from the given node instead of the anchor.
func GetFrom[T any](l *Locator, from Node) (T, error) {
	if internal.IsNil(from) {
		var zero T
		return zero, l.engine.Invalid("from")
	}

	f, err := l.engine.One(TypeOf[T](), from)
	return as[T](f), err
}

// GetAll resolves every facet of type T. The slice is never nil.
func GetAll[T any](l *Locator) ([]T, error) {
	fs, err := l.engine.All(TypeOf[T](), nil)
	return convert[T](fs), err
}

// GetAllFrom is GetAll searching from the given node instead of the anchor.
func GetAllFrom[T any](l *Locator, from Node) ([]T, error) {
	if internal.IsNil(from) {
		return []T{}, l.engine.Invalid("from")
	}

	fs, err := l.engine.All(TypeOf[T](), from)
	return convert[T](fs), err
}

func convert[T any](fs []Facet) []T {
	out := make([]T, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.(T))
	}
	return out
}

// Require reports whether a facet of type T is present, bypassing the cache.
// When absent it fails like Get would.
func Require[T any](l *Locator) (bool, error) {
	return l.engine.Present(TypeOf[T](), nil)
}

func RequireFrom[T any](l *Locator, from Node) (bool, error) {
	if internal.IsNil(from) {
		return false, l.engine.Invalid("from")
	}
	return l.engine.Present(TypeOf[T](), from)
}

// Requires reports whether every query finds a facet, bypassing the cache.
// When raising, the error lists all missing queries.
func Requires(l *Locator, queries ...Query) (bool, error) {
	return l.engine.PresentAll(queries, nil)
}

func RequiresFrom(l *Locator, from Node, queries ...Query) (bool, error) {
	if internal.IsNil(from) {
		return false, l.engine.Invalid("from")
	}
	return l.engine.PresentAll(queries, from)
}

// Find resolves a single facet for an arbitrary query.
func Find(l *Locator, q Query) (Facet, error) {
	return l.engine.One(q, nil)
}

func FindFrom(l *Locator, from Node, q Query) (Facet, error) {
	if internal.IsNil(from) {
		return nil, l.engine.Invalid("from")
	}
	return l.engine.One(q, from)
}

// FindAll resolves every facet for an arbitrary query. The slice is never nil.
func FindAll(l *Locator, q Query) ([]Facet, error) {
	return l.engine.All(q, nil)
}

func FindAllFrom(l *Locator, from Node, q Query) ([]Facet, error) {
	if internal.IsNil(from) {
		return []Facet{}, l.engine.Invalid("from")
	}
	return l.engine.All(q, from)
}
