package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the OTLP/HTTP exporter.
type TracingConfig struct {
	// Endpoint is host:port of the collector. Empty disables tracing.
	Endpoint string `yaml:"otlp_endpoint"`

	// Insecure sends spans over plain HTTP.
	Insecure bool `yaml:"insecure"`

	ServiceName    string `yaml:"-"`
	ServiceVersion string `yaml:"-"`
}

// SetupTracing installs a global tracer provider exporting to cfg.Endpoint.
// With no endpoint the global no-op provider stays in place. The returned
// function flushes and stops the provider.
func SetupTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "deskclaw"
	}
	res := resource.NewSchemaless(
		semconv.ServiceName(name),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns a tracer for the named component.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/flemzord/deskclaw/" + name)
}
