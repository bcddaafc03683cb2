// Package telemetry installs the OpenTelemetry meter provider behind the
// tracker's instruments.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds metrics export settings.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Interval between exports to Writer.
	Interval time.Duration
	Writer   io.Writer
}

// Provider owns the SDK meter provider installed as the global one.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	config        Config
}

// New builds a meter provider that periodically exports to cfg.Writer and
// installs it globally. A disabled config leaves the global no-op provider.
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{config: cfg}, nil
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("metrics enabled but no writer configured")
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	var opts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		opts = append(opts, sdkmetric.WithInterval(cfg.Interval))
	}
	return newWithReader(cfg, sdkmetric.NewPeriodicReader(exporter, opts...))
}

func newWithReader(cfg Config, reader sdkmetric.Reader) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	return &Provider{meterProvider: mp, config: cfg}, nil
}

// Enabled reports whether instruments are exported.
func (p *Provider) Enabled() bool {
	return p.config.Enabled
}

// Flush exports everything recorded so far.
func (p *Provider) Flush(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("metric flush failed: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("metric shutdown failed: %w", err)
	}
	return nil
}
