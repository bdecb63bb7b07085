// Package metrics provides Prometheus metrics for the rankings engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds all Prometheus collectors for the rankings engine.
type Manager struct {
	registry *prometheus.Registry

	// Write path
	rankUpdatesApplied prometheus.Counter
	rankUpdateBatches  prometheus.Counter

	// Rebuilds
	fullRebuilds        prometheus.Counter
	fullRebuildErrors   prometheus.Counter
	fullRebuildDuration prometheus.Histogram

	// Finalization
	seasonsFinalized  prometheus.Counter
	finalizeErrors    prometheus.Counter
	finalizeDuration  prometheus.Histogram
	finalizedRankRows prometheus.Counter

	// Store health
	cacheErrors prometheus.Counter
}

// Global manager used through the package-level Record functions.
var globalManager = NewManager(prometheus.NewRegistry())

// NewManager creates a Manager registering on the given registry.
func NewManager(registry *prometheus.Registry) *Manager {
	factory := promauto.With(registry)

	return &Manager{
		registry: registry,

		rankUpdatesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "rank_updates_applied_total",
			Help:      "Number of per-user rank score upserts applied to the cache.",
		}),
		rankUpdateBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "rank_update_batches_total",
			Help:      "Number of incremental rank update batches applied.",
		}),
		fullRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "full_rebuilds_total",
			Help:      "Number of full cache rebuilds completed.",
		}),
		fullRebuildErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "full_rebuild_errors_total",
			Help:      "Number of full cache rebuilds that failed.",
		}),
		fullRebuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "full_rebuild_duration_seconds",
			Help:      "Duration of full cache rebuilds.",
			Buckets:   prometheus.DefBuckets,
		}),
		seasonsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "seasons_finalized_total",
			Help:      "Number of seasons finalized.",
		}),
		finalizeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "finalize_errors_total",
			Help:      "Number of season finalization attempts that failed.",
		}),
		finalizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "finalize_duration_seconds",
			Help:      "Duration of season finalization runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		finalizedRankRows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "finalized_rank_rows_total",
			Help:      "Number of permanent finalized rank rows written.",
		}),
		cacheErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbattery",
			Subsystem: "rankings",
			Name:      "cache_errors_total",
			Help:      "Number of rankings cache operations that failed.",
		}),
	}
}

// GetRegistry returns the registry backing the global manager, for exposing
// via promhttp in the (out of process scope here) API layer.
func GetRegistry() *prometheus.Registry {
	return globalManager.registry
}

// RecordRankUpdates records one applied incremental batch of n upserts.
func RecordRankUpdates(n int) {
	globalManager.rankUpdateBatches.Inc()
	globalManager.rankUpdatesApplied.Add(float64(n))
}

// RecordFullRebuild records one completed full rebuild.
func RecordFullRebuild(d time.Duration) {
	globalManager.fullRebuilds.Inc()
	globalManager.fullRebuildDuration.Observe(d.Seconds())
}

// RecordFullRebuildError records one failed full rebuild.
func RecordFullRebuildError() {
	globalManager.fullRebuildErrors.Inc()
}

// RecordSeasonFinalized records one finalized season and its rank rows.
func RecordSeasonFinalized(d time.Duration, rankRows int) {
	globalManager.seasonsFinalized.Inc()
	globalManager.finalizeDuration.Observe(d.Seconds())
	globalManager.finalizedRankRows.Add(float64(rankRows))
}

// RecordFinalizeError records one failed finalization attempt.
func RecordFinalizeError() {
	globalManager.finalizeErrors.Inc()
}

// RecordCacheError records one failed rankings cache operation.
func RecordCacheError() {
	globalManager.cacheErrors.Inc()
}
