// Package engine orchestrates one prediction: it derives the feature vector,
// fans the independent models out in parallel, combines the survivors into an
// ensemble estimate, applies enrichment adjustments, and registers the result
// with the prediction monitor.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"agrocast/internal/ensemble"
	"agrocast/internal/features"
	"agrocast/internal/metrics"
	"agrocast/internal/models"
	"agrocast/internal/monitor"
)

// Default prior used for the Bayesian model when no yield history exists.
const (
	defaultPriorMean = 4.0
	defaultPriorStd  = 0.8
)

// Enricher provides the optional adjustment context. Satisfied by
// *enrich.Client; nil disables enrichment.
type Enricher interface {
	Context(ctx context.Context, region, crop string) (ensemble.Context, bool)
	Available() bool
}

// Config carries the model tuning knobs the engine needs.
type Config struct {
	SimulationTrials  int
	SimulationSeed    int64
	SimulationWorkers int
	SimulationBudget  time.Duration
	SeasonalPeriod    int
	ClusterK          int
	LikelihoodWeight  float64
}

// Result is one completed prediction with its full provenance.
type Result struct {
	PredictionID     string                 `json:"prediction_id"`
	Ensemble         ensemble.Result        `json:"ensemble"`
	ModelPredictions []models.Prediction    `json:"model_predictions"`
	SourceWeights    ensemble.SourceWeights `json:"source_weights"`
	EnrichmentOnline bool                   `json:"enrichment_online"`
	Features         *features.Vector       `json:"features"`
	Elapsed          time.Duration          `json:"elapsed"`
}

// Engine runs the model suite and combines the outcomes.
type Engine struct {
	cfg        Config
	store      *features.Store
	regression *models.LinearRegression
	bayes      *models.BayesianUpdater
	seasonal   *models.SeasonalDecomposer
	clusterer  *models.KMeans
	combiner   *ensemble.Combiner
	enricher   Enricher
	monitor    *monitor.Monitor
	metrics    *metrics.Metrics
}

// New assembles an engine. The enricher, monitor, and metrics may be nil;
// the corresponding stages become no-ops.
func New(cfg Config, store *features.Store, enricher Enricher, mon *monitor.Monitor, m *metrics.Metrics) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: nil feature store")
	}
	if cfg.SeasonalPeriod < 2 {
		cfg.SeasonalPeriod = 12
	}
	if cfg.ClusterK < 1 {
		cfg.ClusterK = 3
	}

	seasonal, err := models.NewSeasonalDecomposer(cfg.SeasonalPeriod)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	clusterer, err := models.NewKMeans(models.KMeansConfig{K: cfg.ClusterK, Seed: cfg.SimulationSeed})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	bayes := models.NewBayesianUpdater()
	if cfg.LikelihoodWeight > 0 {
		bayes.SetLikelihoodWeight(cfg.LikelihoodWeight)
	}

	return &Engine{
		cfg:        cfg,
		store:      store,
		regression: models.NewLinearRegression(),
		bayes:      bayes,
		seasonal:   seasonal,
		clusterer:  clusterer,
		combiner:   ensemble.New(),
		enricher:   enricher,
		monitor:    mon,
		metrics:    m,
	}, nil
}

// Regression exposes the regression model for offline fitting and validation.
func (e *Engine) Regression() *models.LinearRegression { return e.regression }

// Predict runs the full pipeline for one request. history is the region and
// crop's yield series in season order; an empty history drops the
// time-series model and falls back to the default Bayesian prior. Individual
// model failures are logged and excluded; the ensemble needs at least one
// survivor.
func (e *Engine) Predict(ctx context.Context, in features.RawInputs, history []float64) (*Result, error) {
	started := time.Now()

	vec := e.store.GetFeatures(in)
	regressionInputs := regressionFeatures(vec)

	type outcome struct {
		pred models.Prediction
		err  error
	}
	outcomes := make([]outcome, 4)

	var wg sync.WaitGroup
	run := func(slot int, method string, fn func() (models.Prediction, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pred, err := fn()
			if err != nil {
				log.Warn().Err(err).Str("method", method).Msg("model excluded from ensemble")
				if e.metrics != nil {
					e.metrics.PredictionFailures.WithLabelValues(method).Inc()
				}
				outcomes[slot] = outcome{err: err}
				return
			}
			outcomes[slot] = outcome{pred: pred}
		}()
	}

	run(0, models.MethodRegression, func() (models.Prediction, error) {
		return e.regression.PredictionFor(regressionInputs), nil
	})
	run(1, models.MethodBayesian, func() (models.Prediction, error) {
		priorMean, priorStd := priorFromHistory(history)
		return e.bayes.PredictionFor(priorMean, priorStd, bayesScores(vec)), nil
	})
	run(2, models.MethodMonteCarlo, func() (models.Prediction, error) {
		return e.simulate(ctx, in, vec)
	})
	run(3, models.MethodTimeSeries, func() (models.Prediction, error) {
		if len(history) < e.cfg.SeasonalPeriod {
			return models.Prediction{}, fmt.Errorf("time series: %d observations, need %d", len(history), e.cfg.SeasonalPeriod)
		}
		dec, err := e.seasonal.Decompose(history)
		if err != nil {
			return models.Prediction{}, err
		}
		return dec.PredictionFor(), nil
	})
	wg.Wait()

	survivors := make([]models.Prediction, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err == nil {
			survivors = append(survivors, o.pred)
		}
	}
	if len(survivors) == 0 {
		if e.metrics != nil {
			e.metrics.ErrorsTotal.Inc()
		}
		return nil, fmt.Errorf("engine: all models failed")
	}

	// Verified long-run accuracy shifts the method weights away from the
	// methods that have been missing ground truth the hardest.
	combiner := e.combiner
	if e.monitor != nil {
		if mape := e.monitor.MethodMAPE(); len(mape) > 0 {
			combiner = ensemble.NewWithWeights(ensemble.AccuracyAdjustedWeights(e.combiner.Weights(), mape))
		}
	}
	combined, err := combiner.Combine(survivors)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	// Enrichment adjustments and source weighting degrade to neutral when
	// the enricher is absent or offline.
	online := false
	if e.enricher != nil {
		var ec ensemble.Context
		ec, online = e.enricher.Context(ctx, in.Region, in.Crop)
		combined = ensemble.Apply(combined, ec)
	}
	sourceWeights := ensemble.DynamicWeights(ensemble.DefaultSourceWeights(), online, historyQuality(history))

	result := &Result{
		Ensemble:         combined,
		ModelPredictions: survivors,
		SourceWeights:    sourceWeights,
		EnrichmentOnline: online,
		Features:         vec,
		Elapsed:          time.Since(started),
	}

	if e.monitor != nil {
		result.PredictionID = e.monitor.TrackPrediction(
			"ensemble", in.Region, in.Crop,
			combined.YieldEstimate, combined.Confidence,
			map[string]string{"soil_type": in.SoilType},
		)
		// Per-method entries share the ensemble's lineage so one ground-truth
		// report feeds every contributing method's ledger.
		for _, p := range survivors {
			e.monitor.TrackPrediction(
				p.Method, in.Region, in.Crop,
				p.YieldEstimate, p.Confidence,
				map[string]string{monitor.MetadataParentID: result.PredictionID},
			)
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveEnsemble(combined.YieldEstimate, combined.MethodAgreement, len(survivors))
		e.metrics.PredictionLatency.Observe(result.Elapsed.Seconds())
	}

	log.Info().
		Str("region", in.Region).
		Str("crop", in.Crop).
		Float64("yield", combined.YieldEstimate).
		Float64("confidence", combined.Confidence).
		Int("models", len(survivors)).
		Msg("prediction complete")

	return result, nil
}

// simulate runs the Monte Carlo model: inputs are perturbed around their
// observed values and each trial is scored with the regression formula.
func (e *Engine) simulate(ctx context.Context, in features.RawInputs, vec *features.Vector) (models.Prediction, error) {
	avgTemp := (in.TempMin + in.TempMax) / 2

	cfg := models.SimulationConfig{
		Trials:      e.cfg.SimulationTrials,
		Seed:        e.cfg.SimulationSeed,
		Workers:     e.cfg.SimulationWorkers,
		MaxDuration: e.cfg.SimulationBudget,
		Params: []models.Param{
			{Name: "rainfall", Dist: models.DistNormal, Mean: in.Rainfall, Std: 0.15 * in.Rainfall},
			{Name: "temperature", Dist: models.DistNormal, Mean: avgTemp, Std: 2},
			{Name: "soil_ph", Dist: models.DistTriangular, Min: in.SoilPH - 0.5, Mode: in.SoilPH, Max: in.SoilPH + 0.5},
		},
	}

	timing := vec.Raw[features.KeyTiming]
	waterMatch := vec.Raw[features.KeyClimateMatch]
	sim, err := models.NewSimulator(cfg, func(samples map[string]float64) float64 {
		return e.regression.Predict(map[string]float64{
			"rainfall":    math.Max(0, samples["rainfall"]),
			"temperature": samples["temperature"],
			"soil_ph":     samples["soil_ph"],
			"timing":      timing,
			"water_match": waterMatch,
		})
	})
	if err != nil {
		return models.Prediction{}, err
	}

	runStart := time.Now()
	result, err := sim.Run(ctx)
	if err != nil {
		return models.Prediction{}, err
	}
	if e.metrics != nil {
		e.metrics.SimulationTrials.Add(float64(result.Trials))
		e.metrics.SimulationDuration.Observe(time.Since(runStart).Seconds())
	}
	return result.PredictionFor(), nil
}

// FitClusters fits the region clusterer on feature arrays.
func (e *Engine) FitClusters(points [][]float64) error {
	return e.clusterer.Fit(points)
}

// AssignCluster maps a feature array to its fitted cluster.
func (e *Engine) AssignCluster(point []float64) (int, error) {
	return e.clusterer.Predict(point)
}

// regressionFeatures maps the engineered vector onto the regression
// coefficient names. The water suitability coefficient reads the climate
// match feature.
func regressionFeatures(vec *features.Vector) map[string]float64 {
	return map[string]float64{
		"rainfall":    vec.Raw[features.KeyRainfall],
		"temperature": vec.Raw[features.KeyTemperature],
		"soil_ph":     vec.Raw[features.KeySoilPH],
		"timing":      vec.Raw[features.KeyTiming],
		"water_match": vec.Raw[features.KeyClimateMatch],
	}
}

// bayesScores selects the bounded suitability features as likelihood scores.
func bayesScores(vec *features.Vector) map[string]float64 {
	return map[string]float64{
		"timing":        vec.Raw[features.KeyTiming],
		"ph_match":      vec.Raw[features.KeyPHMatch],
		"climate_match": vec.Raw[features.KeyClimateMatch],
		"water_safety":  1 - vec.Raw[features.KeyDroughtRisk],
	}
}

// priorFromHistory derives the Bayesian prior from the yield history,
// falling back to the crop-agnostic default when the history is too thin.
func priorFromHistory(history []float64) (mean, std float64) {
	if len(history) < 2 {
		return defaultPriorMean, defaultPriorStd
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	mean = sum / float64(len(history))
	var variance float64
	for _, v := range history {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(history))
	std = math.Sqrt(variance)
	if std == 0 {
		std = defaultPriorStd
	}
	return mean, std
}

// historyQuality scores the yield history in [0,1] by depth: a full seasonal
// cycle of observations earns full quality.
func historyQuality(history []float64) float64 {
	quality := float64(len(history)) / 12
	if quality > 1 {
		quality = 1
	}
	return quality
}
