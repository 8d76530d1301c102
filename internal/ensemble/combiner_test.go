package ensemble

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrocast/internal/models"
)

func TestCombine_SingleMethodUnchanged(t *testing.T) {
	c := New()
	p := models.Prediction{
		Method:        models.MethodBayesian,
		YieldEstimate: 4.2,
		Confidence:    0.7,
	}

	result, err := c.Combine([]models.Prediction{p})
	require.NoError(t, err)

	assert.Equal(t, 4.2, result.YieldEstimate)
	assert.Equal(t, 0.7, result.Confidence)
	assert.Zero(t, result.Variance)
	assert.Equal(t, 1.0, result.MethodAgreement)
	assert.Equal(t, map[string]float64{models.MethodBayesian: 1}, result.Weights)
}

func TestCombine_WeightsSumToOne(t *testing.T) {
	c := New()
	preds := []models.Prediction{
		{Method: models.MethodRegression, YieldEstimate: 4.0, Confidence: 0.8},
		{Method: models.MethodBayesian, YieldEstimate: 4.4, Confidence: 0.7},
		{Method: models.MethodMonteCarlo, YieldEstimate: 3.8, Confidence: 0.6},
		{Method: models.MethodTimeSeries, YieldEstimate: 4.2, Confidence: 0.65},
	}

	result, err := c.Combine(preds)
	require.NoError(t, err)

	var total float64
	for _, w := range result.Weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-12)

	// Default table: regression carries the largest share.
	assert.Greater(t, result.Weights[models.MethodRegression], result.Weights[models.MethodTimeSeries])

	// Estimate lies within the span of its members.
	assert.Greater(t, result.YieldEstimate, 3.8)
	assert.Less(t, result.YieldEstimate, 4.4)
	assert.True(t, result.Confidence >= 0 && result.Confidence <= 1)
	assert.False(t, math.IsNaN(result.MethodAgreement))
}

func TestCombine_SubsetRenormalizes(t *testing.T) {
	// Two survivors out of four: 0.30 and 0.20 renormalize to 0.6/0.4.
	c := New()
	preds := []models.Prediction{
		{Method: models.MethodRegression, YieldEstimate: 4.0, Confidence: 0.8},
		{Method: models.MethodTimeSeries, YieldEstimate: 5.0, Confidence: 0.6},
	}

	result, err := c.Combine(preds)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, result.Weights[models.MethodRegression], 1e-12)
	assert.InDelta(t, 0.4, result.Weights[models.MethodTimeSeries], 1e-12)
	assert.InDelta(t, 4.4, result.YieldEstimate, 1e-12)

	// Variance is the weighted squared deviation: 0.6*0.16 + 0.4*0.36.
	assert.InDelta(t, 0.6*0.16+0.4*0.36, result.Variance, 1e-12)
	assert.InDelta(t, 1-math.Sqrt(result.Variance)/4.4, result.MethodAgreement, 1e-12)
}

func TestCombine_UnknownMethodFallbackWeight(t *testing.T) {
	c := New()
	preds := []models.Prediction{
		{Method: models.MethodRegression, YieldEstimate: 4.0, Confidence: 0.8},
		{Method: "oracle", YieldEstimate: 6.0, Confidence: 0.9},
	}

	result, err := c.Combine(preds)
	require.NoError(t, err)

	// 0.30 vs 0.10 renormalized.
	assert.InDelta(t, 0.75, result.Weights[models.MethodRegression], 1e-12)
	assert.InDelta(t, 0.25, result.Weights["oracle"], 1e-12)
}

func TestCombine_ZeroEstimateAgreementGuard(t *testing.T) {
	c := New()
	preds := []models.Prediction{
		{Method: models.MethodRegression, YieldEstimate: 1.0, Confidence: 0.5},
		{Method: models.MethodBayesian, YieldEstimate: -1.2, Confidence: 0.5},
	}

	result, err := c.Combine(preds)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(result.MethodAgreement))
	assert.False(t, math.IsInf(result.MethodAgreement, 0))
}

func TestCombine_Empty(t *testing.T) {
	_, err := New().Combine(nil)
	assert.Error(t, err)
}

func TestApply_Adjustments(t *testing.T) {
	base := Result{YieldEstimate: 4.0, Confidence: 0.8}

	anomaly := 1.0
	soil := 0.5
	market := 2.0

	adjusted := Apply(base, Context{
		ClimateAnomaly:  &anomaly,
		SoilHealthIndex: &soil,
		MarketPressure:  &market,
	})

	// 4.0 × 1.1 × 0.85 × 0.9
	assert.InDelta(t, 4.0*1.1*0.85*0.9, adjusted.YieldEstimate, 1e-12)
	assert.Len(t, adjusted.Adjustments, 3)
}

func TestApply_SoilHealthCapsDownsideOnly(t *testing.T) {
	base := Result{YieldEstimate: 4.0}
	perfect := 1.0

	adjusted := Apply(base, Context{SoilHealthIndex: &perfect})
	assert.Equal(t, 4.0, adjusted.YieldEstimate, "perfect soil must not boost the estimate")
}

func TestApply_MarketPressureFloorsAtZero(t *testing.T) {
	base := Result{YieldEstimate: 4.0}
	extreme := 30.0

	adjusted := Apply(base, Context{MarketPressure: &extreme})
	assert.Zero(t, adjusted.YieldEstimate, "estimate must never flip negative")
	require.Len(t, adjusted.Adjustments, 1)
	assert.Zero(t, adjusted.Adjustments[0].Multiplier)
}

func TestAccuracyAdjustedWeights(t *testing.T) {
	base := New().Weights()

	adjusted := AccuracyAdjustedWeights(base, map[string]float64{
		models.MethodRegression: 100, // halves its weight
	})
	assert.InDelta(t, base[models.MethodRegression]/2, adjusted[models.MethodRegression], 1e-12)
	assert.Equal(t, base[models.MethodBayesian], adjusted[models.MethodBayesian])

	// Methods outside the base table are ignored.
	adjusted = AccuracyAdjustedWeights(base, map[string]float64{"ensemble": 50})
	assert.Equal(t, base, adjusted)
}

func TestCombine_AccuracyShiftsWeightShare(t *testing.T) {
	preds := []models.Prediction{
		{Method: models.MethodRegression, YieldEstimate: 4.0, Confidence: 0.8},
		{Method: models.MethodBayesian, YieldEstimate: 4.4, Confidence: 0.7},
	}
	baseline, err := New().Combine(preds)
	require.NoError(t, err)

	// Regression verified at 50% long-run error, bayesian at 5%.
	weights := AccuracyAdjustedWeights(New().Weights(), map[string]float64{
		models.MethodRegression: 50,
		models.MethodBayesian:   5,
	})
	reweighted, err := NewWithWeights(weights).Combine(preds)
	require.NoError(t, err)

	assert.Less(t, reweighted.Weights[models.MethodRegression], baseline.Weights[models.MethodRegression])
	assert.Greater(t, reweighted.Weights[models.MethodBayesian], baseline.Weights[models.MethodBayesian])

	var total float64
	for _, w := range reweighted.Weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-12)
}

func TestApply_AbsentFeaturesAreNoOps(t *testing.T) {
	base := Result{YieldEstimate: 4.0}
	adjusted := Apply(base, Context{})
	assert.Equal(t, 4.0, adjusted.YieldEstimate)
	assert.Empty(t, adjusted.Adjustments)
}

func TestDynamicWeights(t *testing.T) {
	base := DefaultSourceWeights()

	t.Run("online unavailable shifts ml to statistical", func(t *testing.T) {
		w := DynamicWeights(base, false, 0.5)
		assert.Less(t, w.ML, base.ML)
		assert.Greater(t, w.Statistical, base.Statistical)
		assert.InDelta(t, 1.0, w.ML+w.Statistical+w.Historical, 1e-12)
	})

	t.Run("high historical quality boosts historical", func(t *testing.T) {
		w := DynamicWeights(base, true, 0.9)
		assert.Greater(t, w.Historical, base.Historical)
		assert.InDelta(t, 1.0, w.ML+w.Statistical+w.Historical, 1e-12)
	})

	t.Run("baseline renormalizes to one", func(t *testing.T) {
		w := DynamicWeights(base, true, 0.5)
		assert.InDelta(t, 1.0, w.ML+w.Statistical+w.Historical, 1e-12)
	})
}
