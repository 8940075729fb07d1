// Package telemetry wires OpenTelemetry metrics for the orchestrator.
//
// Telemetry is optional and degrades gracefully: a nil or disabled Provider
// hands out no-op meters and records nothing.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config controls provider construction.
type Config struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// DefaultConfig returns telemetry disabled with the stock service name.
func DefaultConfig() Config {
	return Config{Enabled: false, ServiceName: "cycled"}
}

// Provider owns the meter provider and its exporter.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
}

// New builds a Provider. When cfg.Enabled is false the returned Provider is
// a functional no-op.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(mp)
	return &Provider{meterProvider: mp}, nil
}

// Meter returns a meter for the given instrumentation scope. Safe on a nil
// or disabled provider.
func (p *Provider) Meter(name string) metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name)
	}
	return p.meterProvider.Meter(name)
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}
	return nil
}
