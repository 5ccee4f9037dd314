package internal

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/AnatoleLucet/finder"

// ResolveEvent describes one finished resolution, for observers.
type ResolveEvent struct {
	Locator  uuid.UUID
	Mode     Mode
	Query    string
	Shape    Shape
	Cached   bool
	CacheHit bool
	Found    bool
	Err      error
	Duration time.Duration
}

type Observer interface {
	ObserveResolve(ResolveEvent)
	ObserveCacheClear(locator uuid.UUID)
}

// CallSiteFunc reports the caller to blame for an error, if it can tell.
type CallSiteFunc func() (CallSite, bool)

type Config struct {
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Observer  Observer
	CallSites CallSiteFunc
	Confined  bool
}

// Engine owns a rule, its result cache and the host it searches.
// It is not safe for concurrent use.
type Engine struct {
	id   uuid.UUID
	host Host

	rule  RuleState
	cache *Cache

	// error of the last rejected rule change, returned by every lookup until a change succeeds
	err error

	logger    *slog.Logger
	tracer    trace.Tracer
	observer  Observer
	callSites CallSiteFunc

	confined  bool
	goroutine int64
}

func NewEngine(host Host, cfg Config) *Engine {
	e := &Engine{
		id:        uuid.New(),
		host:      host,
		rule:      DefaultRuleState(),
		cache:     NewCache(),
		tracer:    cfg.Tracer,
		observer:  cfg.Observer,
		callSites: cfg.CallSites,
		confined:  cfg.Confined,
		goroutine: currentGoroutine(),
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e.logger = logger.With("locator", e.id.String())

	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}

	return e
}

func (e *Engine) ID() uuid.UUID { return e.id }
func (e *Engine) Err() error    { return e.err }

func (e *Engine) Rule() RuleState { return e.rule.Clone() }

// Cache counters are read by editors, so they skip the goroutine check.
func (e *Engine) CacheCount() int  { return e.cache.SingleCount() }
func (e *Engine) CachesCount() int { return e.cache.MultipleCount() }
func (e *Engine) TotalCacheCount() int {
	return e.cache.SingleCount() + e.cache.MultipleCount()
}

// Mutate applies a rule change atomically. On success the cache is cleared;
// on failure the rule is left untouched and the error is kept for later lookups.
func (e *Engine) Mutate(change func(*RuleState) error) error {
	e.mustOwn()

	next := e.rule.Clone()
	if err := change(&next); err != nil {
		e.err = e.annotate(err)
		e.logger.Debug("rule change rejected", "error", err)
		return e.err
	}

	e.rule = next
	e.err = nil
	e.clearCache()
	e.logger.Debug("rule changed", "mode", next.Mode.String(), "scope", next.Scope.String())
	return nil
}

// Toggle flips a flag that does not affect what a rule matches, so the cache survives.
func (e *Engine) Toggle(change func(*RuleState)) {
	e.mustOwn()
	change(&e.rule)
}

// SetRule replaces the whole rule, the way a property editor writes fields back.
func (e *Engine) SetRule(r RuleState) {
	e.mustOwn()
	e.rule = r.Clone()
	e.err = nil
	e.clearCache()
	e.logger.Debug("rule replaced", "mode", r.Mode.String(), "scope", r.Scope.String())
}

func (e *Engine) ClearCache() {
	e.mustOwn()
	e.clearCache()
}

func (e *Engine) clearCache() {
	e.cache.Clear()
	if e.observer != nil {
		e.observer.ObserveCacheClear(e.id)
	}
}

// One resolves a single facet. A nil facet with a nil error means "absent, and the rule allows it".
func (e *Engine) One(q Query, from Node) (Facet, error) {
	if err := e.checkGoroutine(); err != nil {
		return nil, err
	}

	start := time.Now()
	f, hit, err := e.one(q, from)

	e.observe(ResolveEvent{
		Mode:     e.rule.Mode,
		Query:    q.Name,
		Shape:    ShapeSingle,
		Cached:   e.rule.Caching,
		CacheHit: hit,
		Found:    f != nil,
		Err:      err,
		Duration: time.Since(start),
	})

	return f, e.annotate(err)
}

func (e *Engine) one(q Query, from Node) (Facet, bool, error) {
	if e.err != nil {
		return nil, false, e.err
	}
	if !q.valid() {
		return nil, false, invalidArgument("query")
	}

	anchor := e.anchor(from)

	var miss string
	resolve := func() (Facet, bool, error) {
		e.logger.Debug("cache miss", "query", q.Name, "shape", ShapeSingle.String())

		_, span := e.startSpan(q, ShapeSingle)
		f, ok, m, err := e.resolveOne(q, anchor)
		endSpan(span, ok, err)

		miss = m
		return f, ok, err
	}

	var f Facet
	var ok, hit bool
	var err error

	if e.rule.Caching {
		f, ok, hit, err = e.cache.One(q.Key, resolve)
	} else {
		f, ok, err = resolve()
	}
	if err != nil {
		return nil, hit, err
	}

	if !ok {
		return nil, hit, e.notFound(q, anchor, miss)
	}
	return f, hit, nil
}

// All resolves every matching facet. The result is never nil.
func (e *Engine) All(q Query, from Node) ([]Facet, error) {
	if err := e.checkGoroutine(); err != nil {
		return []Facet{}, err
	}

	start := time.Now()
	found, hit, err := e.all(q, from)

	e.observe(ResolveEvent{
		Mode:     e.rule.Mode,
		Query:    q.Name,
		Shape:    ShapeMultiple,
		Cached:   e.rule.Caching,
		CacheHit: hit,
		Found:    len(found) > 0,
		Err:      err,
		Duration: time.Since(start),
	})

	if found == nil {
		found = []Facet{}
	}
	return found, e.annotate(err)
}

func (e *Engine) all(q Query, from Node) ([]Facet, bool, error) {
	if e.err != nil {
		return nil, false, e.err
	}
	if !q.valid() {
		return nil, false, invalidArgument("query")
	}

	anchor := e.anchor(from)

	var miss string
	resolve := func() ([]Facet, error) {
		e.logger.Debug("cache miss", "query", q.Name, "shape", ShapeMultiple.String())

		_, span := e.startSpan(q, ShapeMultiple)
		found, m, err := e.resolveAll(q, anchor)
		endSpan(span, len(found) > 0, err)

		miss = m
		return found, err
	}

	var found []Facet
	var hit bool
	var err error

	if e.rule.Caching {
		found, hit, err = e.cache.All(q.Key, resolve)
	} else {
		found, err = resolve()
	}
	if err != nil {
		return nil, hit, err
	}

	if len(found) == 0 {
		return nil, hit, e.notFound(q, anchor, miss)
	}
	return found, hit, nil
}

// Present checks for a facet without going through the cache.
func (e *Engine) Present(q Query, from Node) (bool, error) {
	if err := e.checkGoroutine(); err != nil {
		return false, err
	}

	ok, miss, err := e.present(q, from)
	if err != nil {
		return false, e.annotate(err)
	}
	if !ok {
		return false, e.annotate(e.notFound(q, e.anchor(from), miss))
	}
	return true, nil
}

func (e *Engine) present(q Query, from Node) (bool, string, error) {
	if e.err != nil {
		return false, "", e.err
	}
	if !q.valid() {
		return false, "", invalidArgument("query")
	}

	_, ok, miss, err := e.resolveOne(q, e.anchor(from))
	return ok, miss, err
}

// PresentAll checks every query and reports the missing ones together.
func (e *Engine) PresentAll(qs []Query, from Node) (bool, error) {
	if err := e.checkGoroutine(); err != nil {
		return false, err
	}

	var missing []string
	seen := make(map[string]struct{})

	for _, q := range qs {
		if q.Match == nil {
			continue
		}

		ok, _, err := e.present(q, from)
		if err != nil {
			return false, e.annotate(err)
		}
		if ok {
			continue
		}

		if _, dup := seen[q.Name]; !dup {
			seen[q.Name] = struct{}{}
			missing = append(missing, q.Name)
		}
	}

	if len(missing) == 0 {
		return true, nil
	}

	e.logger.Debug("requirements missing", "queries", missing)
	if e.rule.RaiseOnNotFound && e.rule.Mode != ModeNullAlways {
		return false, e.annotate(&NotFoundError{
			Mode:    e.rule.Mode,
			Context: "requires " + strings.Join(missing, " / "),
		})
	}
	return false, nil
}

func (e *Engine) anchor(from Node) Node {
	if !IsNil(from) {
		return from
	}
	return e.rule.Anchor
}

// resolveOne runs the strategy of the active mode. On absence, miss may describe
// how far the search got when the generic description of the rule would mislead.
func (e *Engine) resolveOne(q Query, anchor Node) (Facet, bool, string, error) {
	r := &e.rule

	switch r.Mode {
	case ModeNullAlways:
		return nil, false, "", nil

	case ModeByScope:
		f, ok, err := FindOne(e.host, anchor, r.Scope, q.Match)
		return f, ok, "", err

	case ModeByName:
		n, ok := e.host.NodeByName(r.Name)
		if !ok || IsNil(n) {
			return nil, false, fmt.Sprintf("node named %q", r.Name), nil
		}
		f, ok, err := FindOne(e.host, n, r.Scope, q.Match)
		return f, ok, "", err

	case ModeByTag:
		nodes := e.host.NodesByTag(r.Tag)
		if len(nodes) == 0 {
			return nil, false, fmt.Sprintf("any node tagged %q", r.Tag), nil
		}
		for _, n := range nodes {
			if IsNil(n) {
				continue
			}
			f, ok, err := FindOne(e.host, n, ScopeSelf, q.Match)
			if err != nil || ok {
				return f, ok, "", err
			}
		}
		return nil, false, "", nil

	case ModeByReferenceFacets:
		for _, f := range r.ReferenceFacets {
			if !IsNil(f) && q.Match(f) {
				return f, true, "", nil
			}
		}
		return nil, false, "", nil

	case ModeByReferenceNodes:
		for _, n := range r.ReferenceNodes {
			if IsNil(n) {
				continue
			}
			f, ok, err := FindOne(e.host, n, r.Scope, q.Match)
			if err != nil || ok {
				return f, ok, "", err
			}
		}
		return nil, false, "", nil
	}

	return nil, false, "", fmt.Errorf("%w: %s", ErrInvalidMode, r.Mode)
}

// resolveAll is the multi-result counterpart of resolveOne.
// A nil slice means the outcome must not be cached.
func (e *Engine) resolveAll(q Query, anchor Node) ([]Facet, string, error) {
	r := &e.rule

	switch r.Mode {
	case ModeNullAlways:
		return nil, "", nil

	case ModeByScope:
		found, err := FindAll(e.host, anchor, r.Scope, q.Match)
		return found, "", err

	case ModeByName:
		n, ok := e.host.NodeByName(r.Name)
		if !ok || IsNil(n) {
			return nil, fmt.Sprintf("node named %q", r.Name), nil
		}
		found, err := FindAll(e.host, n, r.Scope, q.Match)
		return found, "", err

	case ModeByTag:
		nodes := e.host.NodesByTag(r.Tag)
		if len(nodes) == 0 {
			return nil, fmt.Sprintf("any node tagged %q", r.Tag), nil
		}
		found := []Facet{}
		seen := make(map[any]struct{})
		for _, n := range nodes {
			if IsNil(n) {
				continue
			}
			fs, err := FindAll(e.host, n, ScopeSelf, q.Match)
			if err != nil {
				return nil, "", err
			}
			found = appendUnique(found, seen, fs)
		}
		return found, "", nil

	case ModeByReferenceFacets:
		found := []Facet{}
		for _, f := range r.ReferenceFacets {
			if !IsNil(f) && q.Match(f) {
				found = append(found, f)
			}
		}
		return found, "", nil

	case ModeByReferenceNodes:
		found := []Facet{}
		seen := make(map[any]struct{})
		for _, n := range r.ReferenceNodes {
			if IsNil(n) {
				continue
			}
			fs, err := FindAll(e.host, n, r.Scope, q.Match)
			if err != nil {
				return nil, "", err
			}
			found = appendUnique(found, seen, fs)
		}
		return found, "", nil
	}

	return nil, "", fmt.Errorf("%w: %s", ErrInvalidMode, r.Mode)
}

// appendUnique appends facets not seen before, keeping first-seen order.
// Facets that are not comparable at runtime, including structs holding a slice
// in an interface field, can't be keyed and are always appended.
func appendUnique(dst []Facet, seen map[any]struct{}, fs []Facet) []Facet {
	for _, f := range fs {
		if f == nil {
			continue
		}
		if reflect.ValueOf(f).Comparable() {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
		}
		dst = append(dst, f)
	}
	return dst
}

// notFound applies the not-found policy. NullAlways never raises.
func (e *Engine) notFound(q Query, anchor Node, miss string) error {
	r := &e.rule
	if !r.RaiseOnNotFound || r.Mode == ModeNullAlways {
		return nil
	}

	where := miss
	if where == "" {
		where = r.describe(anchor)
	}

	e.logger.Debug("not found", "query", q.Name, "context", where)
	return &NotFoundError{Mode: r.Mode, Query: q.Name, Context: where}
}

func (e *Engine) observe(ev ResolveEvent) {
	if e.observer == nil {
		return
	}
	ev.Locator = e.id
	e.observer.ObserveResolve(ev)
}

func (e *Engine) startSpan(q Query, shape Shape) (context.Context, trace.Span) {
	return e.tracer.Start(context.Background(), "finder.resolve",
		trace.WithAttributes(
			attribute.String("finder.locator", e.id.String()),
			attribute.String("finder.mode", e.rule.Mode.String()),
			attribute.String("finder.query", q.Name),
			attribute.String("finder.shape", shape.String()),
		),
	)
}

func endSpan(span trace.Span, found bool, err error) {
	span.SetAttributes(attribute.Bool("finder.found", found))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
