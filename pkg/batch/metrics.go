package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal counts submitted batches by mode ("parallel", "multiplexed").
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_batches_total",
			Help: "Total number of detail batches submitted",
		},
		[]string{"mode"},
	)

	// BatchSize tracks the number of items per batch.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsync_batch_size",
			Help:    "Number of detail requests per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// ItemsTotal counts finished detail fetches by outcome ("ok", "error").
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_detail_fetches_total",
			Help: "Total number of detail fetches by outcome",
		},
		[]string{"outcome"},
	)

	// ItemDuration tracks single detail fetch latency.
	ItemDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsync_detail_fetch_duration_seconds",
			Help:    "Detail fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
)
