package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sounddrop_sweeps_total",
		Help: "Total number of retention sweeps run.",
	})

	dropsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sounddrop_drops_archived_total",
		Help: "Total number of drops moved from the hot store to the archive.",
	})

	archiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sounddrop_archive_failures_total",
		Help: "Total number of archive writes that failed during a sweep.",
	})

	hotConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sounddrop_hot_write_conflicts_total",
		Help: "Total number of hot store writes rejected because another writer got there first.",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sounddrop_sweep_duration_seconds",
		Help:    "Duration of retention sweeps in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)
