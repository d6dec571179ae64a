package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successfully completed operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations.
	OutcomeError = "error"
	// OutcomeDegraded labels cycles that completed on the deterministic
	// fallback path after an oracle failure.
	OutcomeDegraded = "degraded"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "analysis_cycles_total",
			Help:      "Total analysis cycles run, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "warroom",
			Name:      "analysis_cycle_seconds",
			Help:      "Analysis cycle latency in seconds.",
			Buckets:   []float64{0.05, 0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
		},
	)

	oracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "oracle_requests_total",
			Help:      "Oracle calls issued, partitioned by call site and outcome.",
		},
		[]string{"call", "outcome"},
	)

	collaborationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "collaborations_total",
			Help:      "Collaboration protocol runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "signals_total",
			Help:      "Classified engineer updates, partitioned by signal kind.",
		},
		[]string{"kind"},
	)
)

// Register attaches warroom collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		oracleRequestsTotal,
		collaborationsTotal,
		signalsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records an analysis cycle duration and outcome label.
func ObserveCycle(duration time.Duration, outcome string) {
	cyclesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveOracleCall counts one oracle call for the given call site.
func ObserveOracleCall(call, outcome string) {
	oracleRequestsTotal.WithLabelValues(call, outcome).Inc()
}

// ObserveCollaboration counts one collaboration protocol run.
func ObserveCollaboration(outcome string) {
	collaborationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSignal counts one classified engineer update.
func ObserveSignal(kind string) {
	signalsTotal.WithLabelValues(kind).Inc()
}
