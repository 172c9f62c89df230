// Package tracing records cell dispatches as OpenTelemetry spans.
//
// Each channel dispatch becomes a span. A cascade (a Set whose subscribers
// set further cells) produces nested spans, because dispatches nest on the
// calling goroutine. The observer must only see cells of one goroutine,
// which is the rule for cells anyway.
//
// The tracer comes from the global provider unless one is given:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	cell.SetObserver(tracing.New(ctx))
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/cellkit/pkg/cell"
)

// Default tracer name.
const defaultTracerName = "cellkit"

// Config configures the tracing observer.
type Config struct {
	// TracerName is the name of the tracer (default: "cellkit").
	TracerName string

	// Provider supplies the tracer. If nil, the global provider is used.
	Provider trace.TracerProvider

	// Filter determines which dispatches to trace.
	// If nil, all dispatches are traced.
	Filter func(info cell.DispatchInfo) bool
}

// Option configures the tracing observer.
type Option func(*Config)

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(c *Config) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.Provider = tp
	}
}

// WithFilter sets a filter function for dispatches.
func WithFilter(filter func(info cell.DispatchInfo) bool) Option {
	return func(c *Config) {
		c.Filter = filter
	}
}

// Observer is a cell.Observer that opens a span per dispatch.
type Observer struct {
	tracer trace.Tracer
	filter func(info cell.DispatchInfo) bool

	// base parents top-level dispatches; stack holds the contexts of the
	// spans currently open, innermost last.
	base  context.Context
	stack []context.Context
}

var _ cell.Observer = (*Observer)(nil)

// New creates an observer. Spans of top-level dispatches are children of
// the span in ctx, if any.
func New(ctx context.Context, opts ...Option) *Observer {
	config := Config{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var tracer trace.Tracer
	if config.Provider != nil {
		tracer = config.Provider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}

	return &Observer{
		tracer: tracer,
		filter: config.Filter,
		base:   ctx,
	}
}

// BeginDispatch implements cell.Observer.
func (o *Observer) BeginDispatch(info cell.DispatchInfo) func() {
	if o.filter != nil && !o.filter(info) {
		return func() {}
	}

	spanCtx, span := o.tracer.Start(
		o.current(),
		spanName(info),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("cell.id", int64(info.CellID)),
			attribute.String("cell.name", info.Name),
			attribute.String("cell.channel", info.Channel.String()),
			attribute.Int("cell.subscribers", info.Subscribers),
		),
	)
	o.stack = append(o.stack, spanCtx)
	depth := len(o.stack)

	return func() {
		// Spans close innermost first; truncating to depth-1 also drops any
		// span a panicking subscriber left open above this one.
		if len(o.stack) >= depth {
			o.stack = o.stack[:depth-1]
		}
		span.End()
	}
}

// RecomputeFailed implements cell.Observer. The error is recorded on the
// innermost open span, or on a span of its own outside any dispatch.
func (o *Observer) RecomputeFailed(name string, err error) {
	if len(o.stack) > 0 {
		span := trace.SpanFromContext(o.stack[len(o.stack)-1])
		span.RecordError(err, trace.WithAttributes(attribute.String("cell.name", name)))
		span.SetStatus(codes.Error, err.Error())
		return
	}

	_, span := o.tracer.Start(o.base, "cell.recompute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cell.name", name)),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// Depth returns the number of spans currently open.
func (o *Observer) Depth() int {
	return len(o.stack)
}

func (o *Observer) current() context.Context {
	if len(o.stack) == 0 {
		return o.base
	}
	return o.stack[len(o.stack)-1]
}

func spanName(info cell.DispatchInfo) string {
	if info.Name != "" {
		return fmt.Sprintf("cell.%s %s", info.Channel, info.Name)
	}
	return fmt.Sprintf("cell.%s", info.Channel)
}
