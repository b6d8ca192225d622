package metrics

// Wrapper adapts Metrics to the narrow interfaces the inference and
// ensemble packages consume, avoiding circular imports.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) InferencesInc() {
	w.m.InferencesTotal.Inc()
}

func (w *Wrapper) InferenceFailuresInc() {
	w.m.InferenceFailures.Inc()
}

func (w *Wrapper) InferenceLatencyObserve(v float64) {
	w.m.InferenceLatency.Observe(v)
}

func (w *Wrapper) CacheHitsInc() {
	w.m.CacheHits.Inc()
}

func (w *Wrapper) CacheMissesInc() {
	w.m.CacheMisses.Inc()
}
