// Package metrics defines the Prometheus collectors for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts page-assembly lookups served from the response cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_cache_hits_total",
		Help: "Number of enrichment lookups served fresh from the cache",
	})

	// CacheMisses counts lookups that needed an upstream fetch.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_cache_misses_total",
		Help: "Number of enrichment lookups that missed the cache or were stale",
	})

	// FetchDuration observes video metadata fetch latency.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stream_fetch_duration_seconds",
		Help:    "Latency of video metadata fetches",
		Buckets: prometheus.DefBuckets,
	})

	// FetchErrors counts failed video metadata fetches.
	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_fetch_errors_total",
		Help: "Number of failed video metadata fetches",
	})

	// AnnotationCalls counts LLM annotation attempts.
	AnnotationCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_annotation_calls_total",
		Help: "Number of LLM annotation attempts",
	})

	// AnnotationErrors counts failed LLM annotation attempts.
	AnnotationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_annotation_errors_total",
		Help: "Number of failed LLM annotation attempts",
	})

	// PageAssemblyDuration observes end-to-end page assembly latency.
	PageAssemblyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stream_page_assembly_duration_seconds",
		Help:    "Latency of whole page assembly including enrichment",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// JobsPublished counts annotation jobs enqueued to the broker, by outcome.
	JobsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_annotation_jobs_published_total",
		Help: "Number of annotation refresh jobs published, labeled by outcome",
	}, []string{"outcome"})

	// JobsConsumed counts annotation jobs processed by the worker, by outcome.
	JobsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_annotation_jobs_consumed_total",
		Help: "Number of annotation refresh jobs consumed, labeled by outcome",
	}, []string{"outcome"})
)
