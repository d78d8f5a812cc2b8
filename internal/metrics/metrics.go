// Package metrics exposes Prometheus collectors for the crawl and comparison
// pipelines.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal          *prometheus.CounterVec
	fetchDurationSeconds  *prometheus.HistogramVec
	batchesTotal          *prometheus.CounterVec
	batchProductsInserted prometheus.Counter
	scorerRequestsTotal   *prometheus.CounterVec
	comparisonLookups     *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricehound_fetches_total",
				Help: "Total platform fetch attempts, labeled by platform and outcome.",
			},
			[]string{"platform", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricehound_fetch_duration_seconds",
				Help:    "Platform fetch latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricehound_batches_total",
				Help: "Total committed crawl batches, labeled by session status.",
			},
			[]string{"status"},
		)

		batchProductsInserted = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricehound_batch_products_inserted_total",
				Help: "Total product rows committed across all batches.",
			},
		)

		scorerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricehound_scorer_requests_total",
				Help: "Similarity scoring runs, labeled by path (primary or fallback).",
			},
			[]string{"path"},
		)

		comparisonLookups = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricehound_comparison_lookups_total",
				Help: "Comparison cache lookups, labeled by result (hit or miss).",
			},
			[]string{"result"},
		)
	})
}

// ObserveFetch records one fetch unit's outcome and latency.
func ObserveFetch(platform, status string, elapsed time.Duration) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(platform, status).Inc()
	fetchDurationSeconds.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// ObserveBatch records a committed batch and its inserted row count.
func ObserveBatch(status string, inserted int) {
	if batchesTotal == nil {
		return
	}
	batchesTotal.WithLabelValues(status).Inc()
	batchProductsInserted.Add(float64(inserted))
}

// ObserveScorerPath records which scoring path produced a result.
func ObserveScorerPath(path string) {
	if scorerRequestsTotal == nil {
		return
	}
	scorerRequestsTotal.WithLabelValues(path).Inc()
}

// ObserveComparisonLookup records a cache hit or miss.
func ObserveComparisonLookup(result string) {
	if comparisonLookups == nil {
		return
	}
	comparisonLookups.WithLabelValues(result).Inc()
}
