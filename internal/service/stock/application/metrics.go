// internal/service/stock/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "granary_stock_transitions_total",
		Help: "Ledger transitions by kind and outcome (ok or error code).",
	}, []string{"kind", "outcome"})

	contentionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "granary_stock_contention_retries_total",
		Help: "Conditional-write conflicts that triggered a local retry.",
	})
)
