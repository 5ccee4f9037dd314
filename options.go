package finder

import (
	"log/slog"

	"github.com/AnatoleLucet/finder/internal"
	"go.opentelemetry.io/otel/trace"
)

type Option func(*internal.Config)

type (
	// Observer is notified after every lookup and cache clear. See the metrics package.
	Observer     = internal.Observer
	ResolveEvent = internal.ResolveEvent
	Shape        = internal.Shape
)

const (
	ShapeSingle   = internal.ShapeSingle
	ShapeMultiple = internal.ShapeMultiple
)

// WithLogger sets the logger for debug records about rule changes, cache misses and misses.
func WithLogger(logger *slog.Logger) Option {
	return func(c *internal.Config) { c.Logger = logger }
}

// WithTracer records a span around every lookup that reaches the host graph.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *internal.Config) { c.Tracer = tracer }
}

func WithObserver(o Observer) Option {
	return func(c *internal.Config) { c.Observer = o }
}

// WithCallSites installs the source of caller locations used by diagnostics.
// Without it, diagnostics leave errors as they are.
func WithCallSites(fn CallSiteFunc) Option {
	return func(c *internal.Config) { c.CallSites = fn }
}

// Confined binds the locator to the goroutine calling New.
// Lookups from other goroutines fail with ErrWrongGoroutine; rule changes panic with it.
func Confined() Option {
	return func(c *internal.Config) { c.Confined = true }
}
