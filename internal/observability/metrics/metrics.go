package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	logins          metric.Int64Counter
	messages        metric.Int64Counter
	charges         metric.Int64Counter
	priceTierWrites metric.Int64Counter
	eventsDropped   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "gavel"
	}
	meter := provider.Meter(name)

	logins, err := meter.Int64Counter("gavel_session_logins_total")
	if err != nil {
		return nil, err
	}
	messages, err := meter.Int64Counter("gavel_session_messages_total")
	if err != nil {
		return nil, err
	}
	charges, err := meter.Int64Counter("gavel_ledger_charges_total")
	if err != nil {
		return nil, err
	}
	priceTierWrites, err := meter.Int64Counter("gavel_price_tier_writes_total")
	if err != nil {
		return nil, err
	}
	eventsDropped, err := meter.Int64Counter("gavel_events_dropped_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		logins:          logins,
		messages:        messages,
		charges:         charges,
		priceTierWrites: priceTierWrites,
		eventsDropped:   eventsDropped,
	}, nil
}

// Login results recorded by RecordLogin.
const (
	LoginOK       = "ok"
	LoginConflict = "conflict"
	LoginInvalid  = "invalid"
)

// RecordLogin counts login attempts by result: LoginOK, LoginConflict or
// LoginInvalid.
func (m *Metrics) RecordLogin(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.logins.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMessage counts outbound messages by operation and outcome.
func (m *Metrics) RecordMessage(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.messages.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCharge counts recorded auction charges.
func (m *Metrics) RecordCharge(ctx context.Context) {
	if m == nil {
		return
	}
	m.charges.Add(ctx, 1)
}

// RecordPriceTierWrite counts schedule mutations by operation and result.
func (m *Metrics) RecordPriceTierWrite(ctx context.Context, operation, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.priceTierWrites.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventDropped counts events the dispatcher could not buffer.
func (m *Metrics) RecordEventDropped(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_kind", strings.TrimSpace(kind)))
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"result":     {},
	"operation":  {},
	"outcome":    {},
	"event_kind": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Identities never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
