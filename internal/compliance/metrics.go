package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "apronguard"

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compliance",
		Name:      "transitions_total",
		Help:      "Proposed phase transitions by target phase and decision",
	},
	[]string{"to", "accepted", "reason"},
)

func recordDecision(d Decision) {
	accepted := "false"
	if d.Accepted {
		accepted = "true"
	}
	to := string(d.To)
	if d.Reason == ReasonUnknownPhase {
		to = "unknown"
	}
	transitionsTotal.WithLabelValues(to, accepted, string(d.Reason)).Inc()
}
