// Package metrics exposes dispatcher counters for Prometheus scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dispatcher's Prometheus collectors.
type Metrics struct {
	MessagesSent    *prometheus.CounterVec
	MessagesFailed  *prometheus.CounterVec
	MessagesRetried *prometheus.CounterVec
	ActiveWorkers   prometheus.Gauge
	CampaignsEnded  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metric set on a private registry so tests can build
// independent instances.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_messages_sent_total",
			Help: "Messages delivered successfully, by campaign.",
		}, []string{"campaign"}),
		MessagesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_messages_failed_total",
			Help: "Messages that reached a terminal failure, by campaign and class.",
		}, []string{"campaign", "class"}),
		MessagesRetried: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_messages_retried_total",
			Help: "Transient failures returned to the queue with backoff.",
		}, []string{"campaign"}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_active_workers",
			Help: "Dispatch workers currently holding a concurrency slot.",
		}),
		CampaignsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_campaigns_ended_total",
			Help: "Campaigns that reached a terminal status, by status.",
		}, []string{"status"}),
		registry: registry,
	}
}

// Handler returns the /metrics HTTP handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
