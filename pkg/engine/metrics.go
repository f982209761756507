package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for sync runs.
var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailsync_runs_total",
		Help: "Total sync runs by outcome",
	}, []string{"outcome"}) // "complete", "incomplete", "failed"

	syncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailsync_run_duration_seconds",
		Help:    "Sync run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	syncPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_pages_total",
		Help: "Total summary pages fetched",
	})

	syncRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailsync_records",
		Help: "Records held by the last finished run by fidelity",
	}, []string{"fidelity"})

	syncDetailFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_detail_failures_total",
		Help: "Total detail fetches that left a message at summary fidelity",
	})

	syncDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_duplicate_identities_total",
		Help: "Total identities seen again on a later summary page",
	})
)
