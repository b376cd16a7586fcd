package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsTotal tracks logical calls by final outcome
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecluster_invocations_total",
			Help: "Total number of logical invocations",
		},
		[]string{"service", "method", "outcome"},
	)

	// AttemptsTotal tracks transport attempts per endpoint
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecluster_attempts_total",
			Help: "Total number of transport attempts",
		},
		[]string{"service", "endpoint", "result"},
	)

	// AdmissionRejectionsTotal tracks calls rejected before any attempt
	AdmissionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecluster_admission_rejections_total",
			Help: "Total number of calls rejected by admission gates",
		},
		[]string{"key", "gate"},
	)

	// DegradedTotal tracks synthesized degrade responses
	DegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecluster_degraded_total",
			Help: "Total number of degraded responses",
		},
		[]string{"service", "method"},
	)

	// CircuitState is 0 closed, 1 half-open, 2 open
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livecluster_circuit_state",
			Help: "Circuit state per policy key and endpoint (0 closed, 1 half-open, 2 open)",
		},
		[]string{"key", "endpoint"},
	)

	// InvokeLatency tracks transport attempt latency
	InvokeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livecluster_invoke_latency_seconds",
			Help:    "Transport attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
)
