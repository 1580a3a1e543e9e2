package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionGauges tracks point-in-time presence and backlog size.
type SessionGauges struct {
	online  prometheus.Gauge
	pending prometheus.Gauge
}

// NewSessionGauges registers the gauges on registerer (the default registry when nil).
func NewSessionGauges(registerer prometheus.Registerer, cfg Config) (*SessionGauges, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "gavel"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "gavel_sessions_online",
		Help:        "Identities currently bound to a live connection.",
		ConstLabels: constLabels,
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "gavel_notifications_pending",
		Help:        "Messages queued for identities without a live connection.",
		ConstLabels: constLabels,
	})

	for _, c := range []prometheus.Collector{online, pending} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return &SessionGauges{online: online, pending: pending}, nil
}

func (g *SessionGauges) SessionOpened() {
	if g == nil {
		return
	}
	g.online.Inc()
}

func (g *SessionGauges) SessionClosed() {
	if g == nil {
		return
	}
	g.online.Dec()
}

func (g *SessionGauges) AddPending(delta int) {
	if g == nil || delta == 0 {
		return
	}
	g.pending.Add(float64(delta))
}
