// Package metrics holds the process wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "apronguard"

var (
	// HTTPRequestDuration tracks HTTP request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestsInFlight counts requests being served.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests being served",
		},
	)

	// StoreConnections tracks session store connection pools.
	StoreConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session_store",
			Name:      "pool_connections",
			Help:      "Session store pool connections by store and state",
		},
		[]string{"store", "state"},
	)
)
