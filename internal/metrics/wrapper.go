package metrics

// Wrapper adapts Metrics to the narrow tracker interfaces consumed by the
// feature store and the prediction monitor, avoiding circular imports. A nil
// Wrapper is usable and drops every observation.
type Wrapper struct {
	m *Metrics
}

// NewWrapper wraps a Metrics instance. A nil argument yields a no-op wrapper.
func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

// FeatureErrorsInc counts one feature validation failure.
func (w *Wrapper) FeatureErrorsInc() {
	if w == nil || w.m == nil {
		return
	}
	w.m.FeatureErrors.Inc()
}

// FeatureCacheHitInc counts one feature cache hit.
func (w *Wrapper) FeatureCacheHitInc() {
	if w == nil || w.m == nil {
		return
	}
	w.m.FeatureCacheHits.Inc()
}

// FeatureCacheMissInc counts one feature cache miss.
func (w *Wrapper) FeatureCacheMissInc() {
	if w == nil || w.m == nil {
		return
	}
	w.m.FeatureCacheMisses.Inc()
}

// PredictionTrackedInc counts one tracked prediction for a method.
func (w *Wrapper) PredictionTrackedInc(method string) {
	if w == nil || w.m == nil {
		return
	}
	w.m.PredictionsTracked.WithLabelValues(method).Inc()
}

// PredictionVerifiedInc counts one verified prediction for a method and
// error category.
func (w *Wrapper) PredictionVerifiedInc(method, category string) {
	if w == nil || w.m == nil {
		return
	}
	w.m.PredictionsVerified.WithLabelValues(method, category).Inc()
}

// VerificationMAPESet records the latest overall verification MAPE.
func (w *Wrapper) VerificationMAPESet(mape float64) {
	if w == nil || w.m == nil {
		return
	}
	w.m.VerificationMAPE.Set(mape)
}

// PredictionFailureInc counts one model failure for a method.
func (w *Wrapper) PredictionFailureInc(method string) {
	if w == nil || w.m == nil {
		return
	}
	w.m.PredictionFailures.WithLabelValues(method).Inc()
}

// EnrichmentRequestInc counts one enrichment call outcome.
func (w *Wrapper) EnrichmentRequestInc(source, outcome string) {
	if w == nil || w.m == nil {
		return
	}
	w.m.EnrichmentRequests.WithLabelValues(source, outcome).Inc()
}
