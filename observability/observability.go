// Package observability wires hang's subsystems to OpenTelemetry
// tracing/logging and Prometheus metrics. It is ambient: every
// exported call is safe to make with Setup never called, or called
// with a zero Config, in which case spans and recorders are
// noop-equivalent. Grounded in the teacher's observability surface
// (mpisat-qumo/observability's test files pin this package's API;
// no implementation source survived the retrieval, so Setup/Start/
// Span/Recorder below are a fresh implementation against that
// contract, retargeted from relay/cache concepts to jitter-buffer and
// pipeline concepts).
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls which observability backends Setup wires up. The
// zero value disables everything: Setup(ctx, Config{}) succeeds and
// every subsequent call is a noop.
type Config struct {
	Service   string
	TraceAddr string // OTLP/gRPC collector address; empty disables tracing
	LogAddr   string // OTLP/gRPC collector address; empty disables log export
	Metrics   bool   // registers Prometheus collectors when true
}

var (
	tracer        trace.Tracer = otel.Tracer("github.com/okdaichi/hang")
	tracerEnabled bool
	metricsOn     bool

	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
)

// Setup installs the configured backends as process-global state.
// Call once at startup; Shutdown releases what Setup created.
func Setup(ctx context.Context, cfg Config) error {
	tracerEnabled = false
	metricsOn = cfg.Metrics

	if cfg.TraceAddr != "" {
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.TraceAddr), otlptracegrpc.WithInsecure())
		if err != nil {
			return err
		}
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(resourceFor(cfg.Service)),
		)
		otel.SetTracerProvider(tracerProvider)
		tracerEnabled = true
	}
	tracer = otel.Tracer("github.com/okdaichi/hang")

	if cfg.LogAddr != "" {
		exp, err := otlploggrpc.New(ctx, otlploggrpc.WithEndpoint(cfg.LogAddr), otlploggrpc.WithInsecure())
		if err != nil {
			return err
		}
		loggerProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
			sdklog.WithResource(resourceFor(cfg.Service)),
		)
	}

	if metricsOn {
		registerMetrics()
	}

	slog.Info("observability configured", "service", cfg.Service, "tracing", tracerEnabled, "metrics", metricsOn)
	return nil
}

// Shutdown flushes and releases everything Setup created. Safe to
// call even if Setup was never called or failed.
func Shutdown(ctx context.Context) error {
	var err error
	if tracerProvider != nil {
		if e := tracerProvider.Shutdown(ctx); e != nil {
			err = e
		}
		tracerProvider = nil
	}
	if loggerProvider != nil {
		if e := loggerProvider.Shutdown(ctx); e != nil {
			err = e
		}
		loggerProvider = nil
	}
	tracerEnabled = false
	metricsOn = false
	return err
}

// Enabled reports whether a real tracer backend is installed.
func Enabled() bool { return tracerEnabled }

// MetricsEnabled reports whether Prometheus collectors are registered.
func MetricsEnabled() bool { return metricsOn }

func resourceFor(service string) *resource.Resource {
	if service == "" {
		service = "hang"
	}
	return resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))
}

// Span wraps an OpenTelemetry span with hang's attribute helpers. It
// is always non-nil and always safe to call even when tracing is
// disabled (the underlying span is the noop implementation otel
// returns for an unset TracerProvider).
type Span struct {
	span  trace.Span
	onEnd []func()
}

// Start begins a span named name under ctx.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	ctx2, raw := tracer.Start(ctx, name)
	return ctx2, &Span{span: raw}
}

// StartOption configures StartWith.
type StartOption func(*startConfig)

type startConfig struct {
	attrs   []attribute.KeyValue
	onStart func()
	onEnd   func()
}

// Attrs sets attributes on the span as soon as it starts.
func Attrs(attrs ...attribute.KeyValue) StartOption {
	return func(c *startConfig) { c.attrs = append(c.attrs, attrs...) }
}

// OnStart registers a callback invoked synchronously once the span
// has started.
func OnStart(fn func()) StartOption {
	return func(c *startConfig) { c.onStart = fn }
}

// OnEnd registers a callback invoked synchronously when Span.End runs.
func OnEnd(fn func()) StartOption {
	return func(c *startConfig) { c.onEnd = fn }
}

// StartWith begins a span with attributes and lifecycle callbacks
// attached in one call.
func StartWith(ctx context.Context, name string, opts ...StartOption) (context.Context, *Span) {
	var cfg startConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx2, raw := tracer.Start(ctx, name, trace.WithAttributes(cfg.attrs...))
	s := &Span{span: raw}
	if cfg.onEnd != nil {
		s.onEnd = append(s.onEnd, cfg.onEnd)
	}
	if cfg.onStart != nil {
		cfg.onStart()
	}
	return ctx2, s
}

// End finishes the span, running any OnEnd callbacks first.
func (s *Span) End() {
	for _, fn := range s.onEnd {
		fn()
	}
	s.span.End()
}

// Error records err on the span and marks it failed. A nil err is a
// noop so callers can unconditionally call Error in a defer.
func (s *Span) Error(err error, msg string) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, msg)
}

// Event adds a named point-in-time event with attributes.
func (s *Span) Event(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Set adds attributes to the span.
func (s *Span) Set(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// Attribute helpers, namespaced under "moq." the way the teacher's
// relay spans tag broadcast/track/group identifiers.
func Track(name string) attribute.KeyValue     { return attribute.String("moq.track", name) }
func Group(seq int) attribute.KeyValue         { return attribute.Int64("moq.group", int64(seq)) }
func GroupSequence(seq int) attribute.KeyValue { return attribute.Int64("moq.group", int64(seq)) }
func Frames(n int) attribute.KeyValue          { return attribute.Int64("moq.frames", int64(n)) }
func Broadcast(path string) attribute.KeyValue { return attribute.String("moq.broadcast", path) }
func Subscribers(n int) attribute.KeyValue     { return attribute.Int64("moq.subscribers", int64(n)) }

// Str and Num build ad-hoc attributes for call sites with no
// dedicated helper.
func Str(key, value string) attribute.KeyValue { return attribute.String(key, value) }
func Num(key string, value int64) attribute.KeyValue { return attribute.Int64(key, value) }
