// Package metrics defines the Prometheus instruments the core pipeline
// emits through. Every stage in internal/coordinator, internal/drain,
// internal/ship, and internal/replay reports through the package-level
// vars here rather than taking a metrics interface as a constructor
// argument. main.go is the only place that serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoingest_cycles_total",
			Help: "Total number of scheduler ticks processed, by outcome",
		},
		[]string{"outcome"}, // "completed", "skipped_busy"
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geoingest_cycle_duration_seconds",
			Help:    "Duration of one full cycle (replay + drain + ship)",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecordsDrainedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoingest_records_drained_total",
			Help: "Total number of records drained from a family's queue and accepted by validation",
		},
		[]string{"family"},
	)

	RecordsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoingest_records_rejected_total",
			Help: "Total number of records dropped by validation during drain (replayed backup entries are not re-validated)",
		},
		[]string{"family"},
	)

	RecordsShippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoingest_records_shipped_total",
			Help: "Total number of records successfully loaded into the warehouse",
		},
		[]string{"family"},
	)

	ShipOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoingest_ship_outcomes_total",
			Help: "Total number of BatchShipper.Ship calls, by family and outcome",
		},
		[]string{"family", "outcome"},
	)

	BackupPendingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geoingest_backup_pending",
			Help: "Number of pending backup entries observed at the start of the last replay pass",
		},
		[]string{"family"},
	)

	BackupExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoingest_backup_exhausted_total",
			Help: "Total number of backup entries moved to quarantine after exhausting their retry budget",
		},
		[]string{"family"},
	)

	ReplayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geoingest_replay_duration_seconds",
			Help:    "Duration of one backup-replay pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	CircuitBreakerOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoingest_circuit_breaker_open_total",
			Help: "Total number of calls rejected because an external client's circuit breaker was open (counted per rejected call, not per trip)",
		},
		[]string{"dependency"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleDuration,
		RecordsDrainedTotal,
		RecordsRejectedTotal,
		RecordsShippedTotal,
		ShipOutcomesTotal,
		BackupPendingGauge,
		BackupExhaustedTotal,
		ReplayDuration,
		CircuitBreakerOpenTotal,
	)
}

// Handler returns the Prometheus scrape handler, mounted by main.go at
// /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
