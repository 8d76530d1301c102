// Package metrics provides Prometheus metrics collection for the agrocast
// prediction service. It defines and manages all model, ensemble, feature,
// and system metrics that are exposed via the Prometheus metrics endpoint
// for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the prediction service.
// It provides counters, gauges, and histograms for the model suite,
// ensemble combination, feature pipeline, and enrichment clients.
type Metrics struct {
	// Prediction pipeline metrics
	PredictionsTotal   prometheus.Counter     // Total number of ensemble predictions produced
	PredictionFailures *prometheus.CounterVec // Model failures by method
	PredictionLatency  prometheus.Histogram   // End-to-end prediction latency
	YieldEstimates     prometheus.Histogram   // Distribution of ensemble yield estimates
	EnsembleAgreement  prometheus.Histogram   // Distribution of cross-method agreement
	ModelsCombined     prometheus.Histogram   // Number of surviving models per ensemble

	// Monitoring metrics
	PredictionsTracked  *prometheus.CounterVec // Tracked predictions by method
	PredictionsVerified *prometheus.CounterVec // Verified predictions by method and category
	VerificationMAPE    prometheus.Gauge       // Latest overall mean absolute percentage error

	// Feature pipeline metrics
	FeatureErrors      prometheus.Counter // Total feature validation failures (clamped or zeroed)
	FeatureCacheHits   prometheus.Counter // Feature vector cache hits
	FeatureCacheMisses prometheus.Counter // Feature vector cache misses

	// Simulation metrics
	SimulationTrials   prometheus.Counter   // Total Monte Carlo trials executed
	SimulationDuration prometheus.Histogram // Monte Carlo run duration in seconds

	// Enrichment metrics
	EnrichmentRequests *prometheus.CounterVec // Enrichment calls by source and outcome

	// System metrics
	StorageErrors prometheus.Counter // Total persistence failures
	ErrorsTotal   prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of ensemble predictions produced",
		}),
		PredictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of model prediction failures by method",
		}, []string{"method"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		YieldEstimates: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "yield_estimates",
			Help:    "Distribution of ensemble yield estimates in tons per hectare",
			Buckets: prometheus.LinearBuckets(0, 1, 16),
		}),
		EnsembleAgreement: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ensemble_agreement",
			Help:    "Distribution of cross-method agreement scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelsCombined: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "models_combined",
			Help:    "Number of surviving models per ensemble combination",
			Buckets: prometheus.LinearBuckets(1, 1, 6),
		}),
		PredictionsTracked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_tracked_total",
			Help: "Total number of predictions registered for verification by method",
		}, []string{"method"}),
		PredictionsVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_verified_total",
			Help: "Total number of verified predictions by method and error category",
		}, []string{"method", "category"}),
		VerificationMAPE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verification_mape",
			Help: "Latest overall mean absolute percentage error of verified predictions",
		}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_errors_total",
			Help: "Total number of feature validation failures",
		}),
		FeatureCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_cache_hits_total",
			Help: "Total number of feature vector cache hits",
		}),
		FeatureCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_cache_misses_total",
			Help: "Total number of feature vector cache misses",
		}),
		SimulationTrials: factory.NewCounter(prometheus.CounterOpts{
			Name: "simulation_trials_total",
			Help: "Total number of Monte Carlo trials executed",
		}),
		SimulationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulation_duration_seconds",
			Help:    "Monte Carlo run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		EnrichmentRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enrichment_requests_total",
			Help: "Total number of enrichment calls by source and outcome",
		}, []string{"source", "outcome"}),
		StorageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "storage_errors_total",
			Help: "Total number of persistence failures",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// ObserveEnsemble records the outcome metrics of one combined prediction.
func (m *Metrics) ObserveEnsemble(estimate, agreement float64, modelCount int) {
	m.PredictionsTotal.Inc()
	m.YieldEstimates.Observe(estimate)
	m.EnsembleAgreement.Observe(agreement)
	m.ModelsCombined.Observe(float64(modelCount))
}

// GetErrorRate calculates the current error rate based on total predictions
// and errors. Returns the ratio of errors to predictions, or 0 if nothing has
// been recorded. Useful for health checks.
func (m *Metrics) GetErrorRate() float64 {
	var totalOps, totalErrors float64

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch *mf.Name {
		case "predictions_total":
			for _, m := range mf.Metric {
				totalOps = *m.Counter.Value
			}
		case "errors_total":
			for _, m := range mf.Metric {
				totalErrors = *m.Counter.Value
			}
		}
	}

	if totalOps == 0 {
		return 0
	}
	return totalErrors / totalOps
}
