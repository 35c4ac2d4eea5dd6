package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paychain",
		Name:      "transactions_total",
		Help:      "Payment transactions by kind and terminal status.",
	}, []string{"kind", "status"})

	// CriticalInconsistencies counts deductions whose transaction could not be
	// completed. Every increment needs operator follow-up.
	CriticalInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paychain",
		Name:      "critical_inconsistencies_total",
		Help:      "Deducted payments left without a completed transaction record.",
	})

	UsageRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paychain",
		Name:      "usage_rejections_total",
		Help:      "Requests rejected by the daily usage limit.",
	}, []string{"scope"})

	StreamDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paychain",
		Name:      "stream_deltas_total",
		Help:      "Content deltas decoded from the AI gateway stream.",
	}, []string{"consumer"})
)
