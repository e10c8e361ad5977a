package enrichment

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "apronguard"

var (
	lookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "lookups_total",
			Help:      "Enrichment lookups by name and final status",
		},
		[]string{"lookup", "status"},
	)

	lookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "lookup_duration_seconds",
			Help:      "Time until an enrichment lookup settled",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"lookup"},
	)
)

// recordLookup records the settled state of one slot.
func recordLookup(name string, status Status, d time.Duration) {
	lookupsTotal.WithLabelValues(name, string(status)).Inc()
	if d > 0 {
		lookupDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}
