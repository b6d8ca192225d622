package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestWrapper_CounterOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if v := testutil.ToFloat64(metrics.InferencesTotal); v != 0 {
		t.Errorf("Expected initial counter value 0, got %f", v)
	}

	wrapper.InferencesInc()
	wrapper.InferencesInc()
	if v := testutil.ToFloat64(metrics.InferencesTotal); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}

	wrapper.InferenceFailuresInc()
	if v := testutil.ToFloat64(metrics.InferenceFailures); v != 1 {
		t.Errorf("Expected failure counter value 1, got %f", v)
	}

	wrapper.CacheHitsInc()
	wrapper.CacheMissesInc()
	wrapper.CacheMissesInc()
	if v := testutil.ToFloat64(metrics.CacheHits); v != 1 {
		t.Errorf("Expected cache hits 1, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.CacheMisses); v != 2 {
		t.Errorf("Expected cache misses 2, got %f", v)
	}
}

func TestWrapper_HistogramObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.InferenceLatencyObserve(1.5)
	wrapper.InferenceLatencyObserve(0.3)

	count := testutil.CollectAndCount(metrics.InferenceLatency)
	if count != 1 {
		t.Errorf("Expected 1 histogram metric, got %d", count)
	}
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two registries must not collide on registration.
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.EnsembleSize.Set(4)
	if v := testutil.ToFloat64(b.EnsembleSize); v != 0 {
		t.Errorf("Registries leaked state: %f", v)
	}
}
