// Package observability provides logging, metrics, and tracing.
//
// Logs are JSON slog records carrying request and session identifiers, metrics are
// Prometheus collectors on the default registry, and traces are exported over OTLP gRPC.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/fairyhunter13/ai-interview-coach/internal/config"
)

// SampleRatio returns the trace sampling ratio for cfg. An explicit ratio in [0,1]
// wins; otherwise prod samples a quarter of root spans and other envs sample all.
func SampleRatio(cfg config.Config) float64 {
	switch {
	case cfg.OTELSampleRatio >= 0 && cfg.OTELSampleRatio <= 1:
		return cfg.OTELSampleRatio
	case cfg.IsProd():
		return 0.25
	default:
		return 1.0
	}
}

// SetupTracing installs a global tracer provider exporting to cfg.OTLPEndpoint. With
// no endpoint it returns a nil shutdown func and leaves the no-op provider in place.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		slog.Info("tracing disabled", slog.String("reason", "no OTLP endpoint"))
		return nil, nil
	}
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.OTELServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.AppEnv),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("op=observability.SetupTracing: resource: %w", err)
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=observability.SetupTracing: exporter: %w", err)
	}

	ratio := SampleRatio(cfg)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	slog.Info("tracing enabled", slog.String("endpoint", cfg.OTLPEndpoint), slog.Float64("sample_ratio", ratio))
	return tp.Shutdown, nil
}
