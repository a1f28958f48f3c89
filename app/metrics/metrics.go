// Package metrics exposes billing counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	ChargesTotal      *prometheus.CounterVec
	ChargeDuration    *prometheus.HistogramVec
	CycleRuns         *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	CycleOutcomes     *prometheus.CounterVec
	Anomalies         *prometheus.CounterVec
	WebhooksTotal     *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
}

// New registers all collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		ChargesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "charges_total",
				Help:      "Gateway charge attempts by gateway, kind and result",
			},
			[]string{"gateway", "kind", "result"},
		),
		ChargeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "billing",
				Name:      "charge_duration_seconds",
				Help:      "Gateway charge latency in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"gateway"},
		),
		CycleRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "cycle_runs_total",
				Help:      "Billing passes by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "billing",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of a full billing pass",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		CycleOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "cycle_items_total",
				Help:      "Subscriptions and merchants handled per pass by outcome",
			},
			[]string{"kind", "outcome"},
		),
		Anomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "anomalies_total",
				Help:      "Billing anomalies by reason",
			},
			[]string{"reason"},
		),
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "webhooks_total",
				Help:      "Gateway webhooks by gateway and result",
			},
			[]string{"gateway", "result"},
		),
		NotificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billing",
				Name:      "notifications_total",
				Help:      "Notifications handed to the notifier by type and result",
			},
			[]string{"type", "result"},
		),
	}
}
