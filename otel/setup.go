package otel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const instrumentationName = "github.com/samerGMTM22/RealTime-Agent-LiveKit"

// Config selects exporters. Metrics are always exposed through the
// Prometheus handler; traces are exported only when OTLPEndpoint is set.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint is a host:port for the OTLP/HTTP trace exporter.
	OTLPEndpoint string
	Insecure     bool
}

// Telemetry owns the providers created by Setup.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Observer       *DispatchObserver

	registry *prometheus.Registry
}

// Setup builds tracer and meter providers and a dispatch observer bound to
// them.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "toolctl"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: build resource: %w", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("otel: create OTLP trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("otel: create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)

	observer, err := NewDispatchObserver(mp.Meter(instrumentationName), tp.Tracer(instrumentationName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("otel: create dispatch observer: %w", err)
	}

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		Observer:       observer,
		registry:       registry,
	}, nil
}

// MetricsHandler serves the Prometheus exposition of every recorded metric.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return errors.Join(t.TracerProvider.Shutdown(ctx), t.MeterProvider.Shutdown(ctx))
}
