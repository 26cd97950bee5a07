// Package metrics provides Prometheus metrics for variation rendering.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Render outcomes.
const (
	OutcomeRendered = "rendered"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

var (
	// VariationsTotal counts variations by outcome.
	VariationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stdimage",
			Name:      "variations_total",
			Help:      "Total number of variation render attempts",
		},
		[]string{"variation", "outcome"},
	)

	// RenderDuration measures decode+resize+encode time of one variation.
	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stdimage",
			Name:      "render_duration_seconds",
			Help:      "Duration of a single variation render in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"variation"},
	)

	// BatchJobsTotal counts batch jobs by outcome.
	BatchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stdimage",
			Name:      "batch_jobs_total",
			Help:      "Total number of batch render jobs",
		},
		[]string{"route", "outcome"},
	)

	// DeletedFilesTotal counts originals and variations removed from storage.
	DeletedFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stdimage",
			Name:      "deleted_files_total",
			Help:      "Total number of files deleted by delete and replace cascades",
		},
	)
)

// RecordVariation records one variation outcome.
func RecordVariation(variation, outcome string, seconds float64) {
	VariationsTotal.WithLabelValues(variation, outcome).Inc()
	if outcome == OutcomeRendered {
		RenderDuration.WithLabelValues(variation).Observe(seconds)
	}
}

// RecordBatchJob records one batch job outcome.
func RecordBatchJob(route, outcome string) {
	BatchJobsTotal.WithLabelValues(route, outcome).Inc()
}
