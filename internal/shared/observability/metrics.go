package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	NormalizeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reviewable_normalize_seconds",
		Help:    "Time spent normalizing a source snippet into statements.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	AnalyzeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reviewable_analyze_seconds",
		Help:    "End-to-end time for one analysis call.",
		Buckets: prometheus.DefBuckets,
	})

	AnalyzeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewable_analyze_total",
		Help: "Total analysis calls by outcome.",
	}, []string{"outcome"})

	FindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewable_findings_total",
		Help: "Total findings reported, by rule id.",
	}, []string{"rule"})

	GraphSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reviewable_graph_steps",
		Help:    "Async steps per analyzed function.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewable_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewable_http_requests_total",
		Help: "Analyze endpoint requests by status code.",
	}, []string{"code"})
)
