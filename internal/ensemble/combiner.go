// Package ensemble merges the outputs of the independent yield models into a
// single estimate with confidence, variance, and cross-method agreement, and
// applies post-hoc contextual adjustments and dynamic source weighting.
package ensemble

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"agrocast/internal/models"
)

// defaultMethodWeights is the per-method weight table. Methods not listed
// receive unknownMethodWeight before renormalization.
var defaultMethodWeights = map[string]float64{
	models.MethodRegression: 0.30,
	models.MethodBayesian:   0.25,
	models.MethodMonteCarlo: 0.25,
	models.MethodTimeSeries: 0.20,
}

const unknownMethodWeight = 0.1

// Adjustment records one multiplicative post-hoc correction.
type Adjustment struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
}

// Result is the merged ensemble output.
type Result struct {
	YieldEstimate   float64            `json:"yield_estimate"`
	Confidence      float64            `json:"confidence"`
	Variance        float64            `json:"variance"`
	MethodAgreement float64            `json:"method_agreement"`
	Weights         map[string]float64 `json:"weights"`
	Adjustments     []Adjustment       `json:"adjustments,omitempty"`
}

// Combiner merges per-method predictions. A zero-value weight override map
// falls back to the default table.
type Combiner struct {
	weights map[string]float64
}

// New creates a combiner with the default per-method weight table.
func New() *Combiner {
	return &Combiner{weights: defaultMethodWeights}
}

// NewWithWeights creates a combiner with an overridden weight table.
func NewWithWeights(weights map[string]float64) *Combiner {
	if len(weights) == 0 {
		return New()
	}
	return &Combiner{weights: weights}
}

// Weights returns a copy of the combiner's base method weight table.
func (c *Combiner) Weights() map[string]float64 {
	cp := make(map[string]float64, len(c.weights))
	for method, w := range c.weights {
		cp[method] = w
	}
	return cp
}

// AccuracyAdjustedWeights scales the base method weights by long-run
// verification accuracy: a method's weight is divided by 1+MAPE/100, so a
// method running at 100% error carries half its base weight. Methods without
// a recorded MAPE keep their base weight. Combine renormalizes over the
// surviving subset, so the result need not sum to 1.
func AccuracyAdjustedWeights(base map[string]float64, mape map[string]float64) map[string]float64 {
	adjusted := make(map[string]float64, len(base))
	for method, w := range base {
		if m, ok := mape[method]; ok && m > 0 {
			w /= 1 + m/100
		}
		adjusted[method] = w
	}
	return adjusted
}

// Combine merges method predictions into one estimate using the weight
// table, renormalized over the surviving subset so weights always sum to 1.
// A single surviving method is returned unchanged with variance 0 and
// agreement 1.
func (c *Combiner) Combine(predictions []models.Prediction) (Result, error) {
	if len(predictions) == 0 {
		return Result{}, fmt.Errorf("ensemble: no predictions to combine")
	}

	if len(predictions) == 1 {
		p := predictions[0]
		return Result{
			YieldEstimate:   p.YieldEstimate,
			Confidence:      clamp01(p.Confidence),
			Variance:        0,
			MethodAgreement: 1,
			Weights:         map[string]float64{p.Method: 1},
		}, nil
	}

	weights := make(map[string]float64, len(predictions))
	var totalWeight float64
	for _, p := range predictions {
		w, ok := c.weights[p.Method]
		if !ok {
			w = unknownMethodWeight
			log.Warn().Str("method", p.Method).Msg("unknown method, using fallback weight")
		}
		weights[p.Method] = w
		totalWeight += w
	}
	for method := range weights {
		weights[method] /= totalWeight
	}

	var estimate, confidence float64
	for _, p := range predictions {
		w := weights[p.Method]
		estimate += w * p.YieldEstimate
		confidence += w * p.Confidence
	}

	// Ensemble variance: weighted mean squared deviation from the estimate.
	var variance float64
	for _, p := range predictions {
		dev := p.YieldEstimate - estimate
		variance += weights[p.Method] * dev * dev
	}

	// Agreement degrades as the spread grows relative to the estimate;
	// a zero estimate is special-cased to full disagreement rather than a
	// division blowup.
	agreement := 0.0
	if estimate != 0 {
		agreement = clamp01(1 - math.Sqrt(variance)/math.Abs(estimate))
	}

	return Result{
		YieldEstimate:   estimate,
		Confidence:      clamp01(confidence),
		Variance:        variance,
		MethodAgreement: agreement,
		Weights:         weights,
	}, nil
}

// Context carries the optional enrichment features driving post-hoc
// adjustments. A nil pointer means the feature is absent and its adjustment
// is a no-op.
type Context struct {
	// ClimateAnomaly in signed units; each unit moves yield ±10%.
	ClimateAnomaly *float64
	// SoilHealthIndex in [0,1]; multiplier 0.7+0.3×index, capping the
	// downside only.
	SoilHealthIndex *float64
	// MarketPressure in units; each unit dampens yield by 5%.
	MarketPressure *float64
}

// Apply applies the multiplicative post-hoc adjustments to a combined
// result. Absent features leave their adjustment neutral.
func Apply(result Result, ctx Context) Result {
	adjusted := result
	adjusted.Adjustments = append([]Adjustment(nil), result.Adjustments...)

	apply := func(name string, multiplier float64) {
		adjusted.YieldEstimate *= multiplier
		adjusted.Adjustments = append(adjusted.Adjustments, Adjustment{
			Name:       name,
			Multiplier: multiplier,
		})
	}

	if ctx.ClimateAnomaly != nil {
		apply("climate_anomaly", 1+0.1**ctx.ClimateAnomaly)
	}
	if ctx.SoilHealthIndex != nil {
		m := 0.7 + 0.3**ctx.SoilHealthIndex
		if m > 1 {
			m = 1 // soil health caps the downside only
		}
		apply("soil_health", m)
	}
	if ctx.MarketPressure != nil {
		m := 1 - 0.05**ctx.MarketPressure
		if m < 0 {
			m = 0 // extreme pressure floors the estimate, never flips its sign
		}
		apply("market_pressure", m)
	}

	return adjusted
}

// SourceWeights is the coarse source mix rebalanced by DynamicWeights. It is
// a distinct weighting layer from the per-method table.
type SourceWeights struct {
	ML          float64 `json:"ml"`
	Statistical float64 `json:"statistical"`
	Historical  float64 `json:"historical"`
}

// DefaultSourceWeights is the starting source mix.
func DefaultSourceWeights() SourceWeights {
	return SourceWeights{ML: 0.4, Statistical: 0.35, Historical: 0.25}
}

// DynamicWeights rebalances the source mix: without online enrichment the
// ML share shrinks in favor of the statistical share, and high-quality
// historical data boosts the historical share. The result always
// renormalizes to sum to 1.
func DynamicWeights(base SourceWeights, onlineAvailable bool, historicalQuality float64) SourceWeights {
	w := base

	if !onlineAvailable {
		shift := w.ML * 0.5
		w.ML -= shift
		w.Statistical += shift
	}

	if historicalQuality > 0.8 {
		w.Historical *= 1.25
	}

	total := w.ML + w.Statistical + w.Historical
	if total <= 0 {
		return DefaultSourceWeights()
	}
	w.ML /= total
	w.Statistical /= total
	w.Historical /= total
	return w
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	if math.IsNaN(x) {
		return 0
	}
	return x
}
