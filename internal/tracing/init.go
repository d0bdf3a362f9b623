// Package tracing wraps OpenTelemetry span creation behind a construction-root
// owned Tracer, following the teacher's internal/tracing package.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const AppName = "layered-memory-engine"

// Tracer owns the process-wide TracerProvider and its shutdown hook. It is
// constructed once at startup and passed explicitly through the container;
// its constructor sets the process's OpenTelemetry globals, the
// TracerProvider and the text-map propagator (library-level globals,
// unavoidable with the otel API).
type Tracer struct {
	tracer  trace.Tracer
	Cleanup func(context.Context) error
}

// InitTracer builds the TracerProvider. With no OTLP endpoint configured it
// exports to stdout, matching the teacher's fallback when no collector is set.
func InitTracer() (*Tracer, error) {
	labels := []attribute.KeyValue{
		semconv.TelemetrySDKLanguageGo,
		semconv.ServiceNameKey.String(AppName),
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, labels...)

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		tracer: tp.Tracer(AppName),
		Cleanup: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return tp.Shutdown(ctx)
		},
	}, nil
}

// ContextWithSpan starts a new span named name as a child of ctx.
func (t *Tracer) ContextWithSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (
	context.Context, trace.Span,
) {
	return t.tracer.Start(ctx, name, opts...)
}
