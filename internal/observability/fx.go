package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/gavel/internal/config"
	"github.com/smallbiznis/gavel/internal/observability/logger"
	"github.com/smallbiznis/gavel/internal/observability/metrics"
	"github.com/smallbiznis/gavel/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		provideSessionGauges,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideTracingConfig(cfg config.Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.Otel.Enabled,
		ServiceName:      cfg.AppName,
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.Otel.ExporterEndpoint,
		ExporterProtocol: cfg.Otel.ExporterProtocol,
		SamplingRatio:    cfg.Otel.SamplingRatio,
	}
}

func provideMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.Otel.Enabled,
		ExporterEndpoint: cfg.Otel.ExporterEndpoint,
		ExporterProtocol: cfg.Otel.ExporterProtocol,
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}

func provideSessionGauges(cfg metrics.Config) (*metrics.SessionGauges, error) {
	return metrics.NewSessionGauges(prometheus.DefaultRegisterer, cfg)
}
