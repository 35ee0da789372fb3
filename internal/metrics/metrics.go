// Package metrics exposes Prometheus counters/gauges for the enforcement
// pipeline, scraped at GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsByKind = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wardloop_alerts_total",
		Help: "Alerts created, by kind and severity.",
	}, []string{"kind", "severity"})

	BansByLevel = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wardloop_bans_total",
		Help: "Bans created, by subject kind.",
	}, []string{"subject_kind"})

	ForwarderQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wardloop_forwarder_queue_depth",
		Help: "Current number of items queued for delivery.",
	})

	ForwarderDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wardloop_forwarder_drops_total",
		Help: "Queue items dropped due to overflow.",
	})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wardloop_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter.",
	})
)
