// Package telemetry sets up the process-wide otel trace provider, adapted
// from the teacher's pkg/observability/tracer.go (OTLP gRPC exporter behind
// an enabled flag, noop provider fallback, sampling ratio, service-name
// resource attribute).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config mirrors the teacher's TracerConfig shape, trimmed to the
// exporter endpoint, sampling rate and service-name knobs.
type Config struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL  string  `yaml:"endpoint_url" mapstructure:"endpoint_url"`
	SamplingRate float64 `yaml:"sampling_rate" mapstructure:"sampling_rate"`
	ServiceName  string  `yaml:"service_name" mapstructure:"service_name"`
}

// InitGlobalTracer installs a tracer provider as the global otel default
// and returns it so callers can Shutdown it at process exit. A disabled
// config installs a noop provider, same as the teacher, so instrumented
// code never needs an enabled-check of its own.
func InitGlobalTracer(ctx context.Context, cfg Config) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.EndpointURL),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "personacore"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	samplingRate := cfg.SamplingRate
	if samplingRate <= 0 {
		samplingRate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(samplingRate)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns a named tracer off the global provider. HandleTurn does not
// call it: no per-stage spans are opened around the pipeline nodes.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
