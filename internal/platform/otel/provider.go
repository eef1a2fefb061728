// Package otel wires OpenTelemetry tracing for the macrotable binaries.
package otel

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/macrotable/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceNamespace = "macrotable"

// Config holds the tracing settings read from MACROTABLE_OTEL_* variables.
// Tracing stays off until Endpoint is set.
type Config struct {
	Enabled     bool    `env:"OTEL_ENABLED"      envDefault:"true"`
	Endpoint    string  `env:"OTEL_ENDPOINT"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
	Version     string  `env:"OTEL_SERVICE_VERSION"`
}

func (c Config) active() bool {
	return c.Enabled && strings.TrimSpace(c.Endpoint) != ""
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

// Setup reads Config from the environment and installs a global tracer
// provider for serviceName. The returned func is safe to call when tracing
// is off.
func Setup(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return noop, fmt.Errorf("otel config: %w", err)
	}
	return SetupWithConfig(ctx, serviceName, cfg)
}

// SetupWithConfig is Setup with explicit settings.
func SetupWithConfig(ctx context.Context, serviceName string, cfg Config) (ShutdownFunc, error) {
	if !cfg.active() {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(strings.TrimSpace(cfg.Endpoint)))
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(serviceAttributes(serviceName, cfg.Version)...))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return provider.Shutdown, nil
}

func serviceAttributes(serviceName, version string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName), semconv.ServiceNamespace(serviceNamespace)}
	if version = strings.TrimSpace(version); version != "" {
		attrs = append(attrs, semconv.ServiceVersion(version))
	}
	return attrs
}

// sampler clamps ratio: 1 and above samples everything, 0 and below nothing.
// Partial ratios follow the parent's decision when there is one.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func noop(context.Context) error { return nil }
