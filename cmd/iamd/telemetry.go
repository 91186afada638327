package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"

	otelexport "github.com/MrEthical07/goIAM/metrics/export/otel"
)

const meterName = "github.com/MrEthical07/goIAM/cmd/iamd"

// startOTel pushes engine metrics to an OTLP/HTTP collector. Without an
// endpoint it does nothing and returns a no-op shutdown.
func startOTel(ctx context.Context, cfg MetricsConfig, service, env string, source otelexport.Source) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.DeploymentEnvironment(env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	interval := cfg.OTLPInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)

	bridge, err := otelexport.NewExporter(provider.Meter(meterName), source)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	return func(ctx context.Context) error {
		if err := bridge.Close(); err != nil {
			return err
		}
		return provider.Shutdown(ctx)
	}, nil
}
