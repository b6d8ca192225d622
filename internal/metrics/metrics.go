// Package metrics provides Prometheus metrics for the zero-shot evaluation
// pipeline: checkpoint inference invocations, prediction-cache
// effectiveness, and evaluation timings. Metrics are exposed on an
// optional /metrics endpoint while a long ensemble run is in flight.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the evaluation pipeline.
type Metrics struct {
	// Inference metrics
	InferencesTotal   prometheus.Counter   // Total checkpoint inference invocations
	InferenceFailures prometheus.Counter   // Total failed inference invocations
	InferenceLatency  prometheus.Histogram // Per-checkpoint inference latency in seconds

	// Prediction cache metrics
	CacheHits   prometheus.Counter // Cached prediction matrices reused
	CacheMisses prometheus.Counter // Checkpoints that required fresh inference

	// Evaluation metrics
	EnsembleSize      prometheus.Gauge     // Checkpoints in the current ensemble
	EvalDuration      prometheus.Histogram // AUC evaluation duration in seconds
	BootstrapDuration prometheus.Histogram // Bootstrap run duration in seconds
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// testing without affecting the global Prometheus registry).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		InferencesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "inferences_total",
			Help: "Total checkpoint inference invocations",
		}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "inference_failures_total",
			Help: "Total failed inference invocations",
		}),
		InferenceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Per-checkpoint inference latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_hits_total",
			Help: "Cached prediction matrices reused",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_misses_total",
			Help: "Checkpoints that required fresh inference",
		}),
		EnsembleSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ensemble_size",
			Help: "Checkpoints in the current ensemble",
		}),
		EvalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eval_duration_seconds",
			Help:    "AUC evaluation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		BootstrapDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bootstrap_duration_seconds",
			Help:    "Bootstrap run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}
