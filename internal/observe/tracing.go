// Package observe sets up OpenTelemetry tracing for the server and holds the
// small span helpers the services share.
package observe

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig selects where spans go. With Stdout unset tracing is a no-op.
type TracingConfig struct {
	ServiceName string
	Stdout      bool
	// Writer receives pretty-printed spans; nil means os.Stdout.
	Writer io.Writer
}

// Tracing owns the tracer provider built by NewTracing.
type Tracing struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

func NewTracing(cfg TracingConfig) (*Tracing, error) {
	if !cfg.Stdout {
		return &Tracing{
			provider: tracenoop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if cfg.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
	}
	exp, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	)
	return &Tracing{provider: tp, shutdown: tp.Shutdown}, nil
}

func (t *Tracing) Provider() trace.TracerProvider {
	return t.provider
}

func (t *Tracing) Tracer(name string) trace.Tracer {
	return t.provider.Tracer(name)
}

// Shutdown flushes and stops the exporter. Safe to call on a no-op Tracing.
func (t *Tracing) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// NoopTracer is used by components constructed without tracing.
func NoopTracer() trace.Tracer {
	return tracenoop.NewTracerProvider().Tracer("noop")
}

// EndSpan ends the span and records the error status if present.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
