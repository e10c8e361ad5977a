package tools

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "apronguard"

var executionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "executions_total",
		Help:      "Tool executions by kind and success",
	},
	[]string{"kind", "success"},
)

func recordExecution(kind Kind, success bool) {
	executionsTotal.WithLabelValues(string(kind), strconv.FormatBool(success)).Inc()
}
