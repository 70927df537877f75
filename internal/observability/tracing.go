package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of pooldb spans.
const TracerName = "github.com/dreamware/pooldb"

// ServiceName identifies this service in traces.
const ServiceName = "pooldb"

// Tracer returns the pooldb tracer from the global provider. Until
// InitTracing installs one, the global provider is a no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracing installs a global TracerProvider that writes spans to w as
// JSON. When enabled is false nothing is installed and the returned
// shutdown is a no-op.
//
// Call shutdown on exit so batched spans are flushed.
func InitTracing(enabled bool, w io.Writer) (shutdown func(context.Context) error, err error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", ServiceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
