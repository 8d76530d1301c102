package validate

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct {
	fn func(x []float64) (float64, error)
}

func (s stubPredictor) PredictVector(x []float64) (float64, error) {
	return s.fn(x)
}

func TestValidateModel_PerfectPredictions(t *testing.T) {
	v := New(2)
	actual := []float64{2, 4, 6, 8}

	rec, err := v.ValidateModel("regression", actual, actual)
	require.NoError(t, err)

	assert.Zero(t, rec.Metrics.MSE)
	assert.Zero(t, rec.Metrics.RMSE)
	assert.Zero(t, rec.Metrics.MAE)
	assert.Equal(t, 1.0, rec.Metrics.R2)
	assert.Zero(t, rec.Metrics.MAPE)
	assert.Equal(t, StatusExcellent, rec.Status)
	assert.Equal(t, "regression", rec.ModelName)
	assert.False(t, rec.ValidatedAt.IsZero())
}

func TestValidateModel_KnownMetrics(t *testing.T) {
	v := New(1)
	predicted := []float64{2.1, 3.9, 6.2, 7.8}
	actual := []float64{2, 4, 6, 8}

	rec, err := v.ValidateModel("regression", predicted, actual)
	require.NoError(t, err)

	// residuals: -0.1, 0.1, -0.2, 0.2
	assert.InDelta(t, 0.025, rec.Metrics.MSE, 1e-12)
	assert.InDelta(t, math.Sqrt(0.025), rec.Metrics.RMSE, 1e-12)
	assert.InDelta(t, 0.15, rec.Metrics.MAE, 1e-12)

	// ssTot around mean 5 is 20, so R² = 1 - 0.1/20.
	assert.InDelta(t, 0.995, rec.Metrics.R2, 1e-12)

	wantMAPE := (0.1/2 + 0.1/4 + 0.2/6 + 0.2/8) / 4 * 100
	assert.InDelta(t, wantMAPE, rec.Metrics.MAPE, 1e-9)

	// adjusted R² = 1 - (1-R²)(n-1)/(n-p-1) with n=4, p=1.
	wantAdj := 1 - (1-0.995)*3/2
	assert.InDelta(t, wantAdj, rec.Metrics.AdjustedR2, 1e-12)
}

func TestValidateModel_MAPESkipsZeroActuals(t *testing.T) {
	v := New(1)
	rec, err := v.ValidateModel("regression", []float64{1, 9}, []float64{0, 10})
	require.NoError(t, err)

	// Only the nonzero actual contributes: |9-10|/10 = 10%.
	assert.InDelta(t, 10.0, rec.Metrics.MAPE, 1e-12)
}

func TestValidateModel_LengthMismatch(t *testing.T) {
	v := New(1)
	_, err := v.ValidateModel("regression", []float64{1, 2}, []float64{1})
	assert.Error(t, err)

	_, err = v.ValidateModel("regression", nil, nil)
	assert.Error(t, err)
}

func TestDetermineStatus_DecisionTable(t *testing.T) {
	tests := []struct {
		r2   float64
		mape float64
		want string
	}{
		{0.85, 10, StatusExcellent},
		{0.80, 15, StatusExcellent},
		{0.72, 18, StatusGood},
		{0.85, 18, StatusGood}, // high R² but MAPE past the excellent cut
		{0.60, 25, StatusAcceptable},
		{0.50, 30, StatusAcceptable},
		{0.30, 40, StatusNeedsImprovement},
		{0.90, 50, StatusNeedsImprovement},
		{0.45, 10, StatusNeedsImprovement},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("r2=%.2f_mape=%.0f", tc.r2, tc.mape), func(t *testing.T) {
			got := DetermineStatus(Metrics{R2: tc.r2, MAPE: tc.mape})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCrossValidate_PerfectModel(t *testing.T) {
	v := New(1)
	model := stubPredictor{fn: func(x []float64) (float64, error) {
		return x[0], nil
	}}

	x := make([][]float64, 25)
	y := make([]float64, 25)
	for i := range x {
		x[i] = []float64{float64(i) * 0.7}
		y[i] = float64(i) * 0.7
	}

	cv, err := v.CrossValidate(model, x, y, 5)
	require.NoError(t, err)

	assert.Equal(t, 5, cv.Folds)
	assert.InDelta(t, 1.0, cv.MeanR2, 1e-12)
	assert.InDelta(t, 0.0, cv.StdR2, 1e-12)
}

func TestCrossValidate_ImperfectModelSpread(t *testing.T) {
	v := New(1)
	model := stubPredictor{fn: func(x []float64) (float64, error) {
		return x[0], nil
	}}

	x := make([][]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		x[i] = []float64{float64(i)}
		// Error grows over the series, so later folds score worse.
		y[i] = float64(i) + float64(i)*0.1
	}

	cv, err := v.CrossValidate(model, x, y, 4)
	require.NoError(t, err)

	assert.Less(t, cv.MeanR2, 1.0)
	assert.GreaterOrEqual(t, cv.StdR2, 0.0)
}

func TestCrossValidate_Errors(t *testing.T) {
	v := New(1)
	model := stubPredictor{fn: func(x []float64) (float64, error) { return 0, nil }}

	_, err := v.CrossValidate(model, [][]float64{{1}}, []float64{1}, 1)
	assert.Error(t, err, "k below 2")

	_, err = v.CrossValidate(model, [][]float64{{1}, {2}}, []float64{1, 2}, 5)
	assert.Error(t, err, "fewer samples than folds")

	failing := stubPredictor{fn: func(x []float64) (float64, error) {
		return 0, fmt.Errorf("boom")
	}}
	x := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{1, 2, 3, 4}
	_, err = v.CrossValidate(failing, x, y, 2)
	assert.Error(t, err)
}

func TestAnalyzeResiduals_SummaryStats(t *testing.T) {
	v := New(1)
	predicted := []float64{1, 2, 3, 4}
	actual := []float64{1.5, 1.5, 3.5, 3.5}

	ra := v.AnalyzeResiduals(predicted, actual)

	// residuals: 0.5, -0.5, 0.5, -0.5
	assert.InDelta(t, 0.0, ra.Mean, 1e-12)
	assert.InDelta(t, 0.5, ra.Std, 1e-12)
	assert.Equal(t, -0.5, ra.Min)
	assert.Equal(t, 0.5, ra.Max)
}

func TestAnalyzeResiduals_FlagsOutliers(t *testing.T) {
	v := New(1)
	n := 29
	predicted := make([]float64, n)
	actual := make([]float64, n)
	for i := 0; i < n; i++ {
		predicted[i] = 10
		if i%2 == 0 {
			actual[i] = 10.1
		} else {
			actual[i] = 9.9
		}
	}
	actual[5] = 15 // residual 5, several std out

	ra := v.AnalyzeResiduals(predicted, actual)

	require.Len(t, ra.OutlierIndices, 1)
	assert.Equal(t, 5, ra.OutlierIndices[0])
}

func TestAnalyzeResiduals_Homoscedasticity(t *testing.T) {
	v := New(1)

	t.Run("constant spread is homoscedastic", func(t *testing.T) {
		n := 30
		predicted := make([]float64, n)
		actual := make([]float64, n)
		for i := 0; i < n; i++ {
			predicted[i] = float64(i)
			if i%2 == 0 {
				actual[i] = float64(i) + 0.3
			} else {
				actual[i] = float64(i) - 0.3
			}
		}
		ra := v.AnalyzeResiduals(predicted, actual)
		assert.True(t, ra.Homoscedastic)
	})

	t.Run("spread growing with prediction is heteroscedastic", func(t *testing.T) {
		n := 30
		predicted := make([]float64, n)
		actual := make([]float64, n)
		for i := 0; i < n; i++ {
			predicted[i] = float64(i + 1)
			spread := float64(i+1) * 0.2
			if i%2 == 0 {
				actual[i] = predicted[i] + spread
			} else {
				actual[i] = predicted[i] - spread
			}
		}
		ra := v.AnalyzeResiduals(predicted, actual)
		assert.False(t, ra.Homoscedastic)
		assert.Greater(t, ra.VarianceRatio, 3.0)
	})
}

func TestCompareModels_RanksByR2(t *testing.T) {
	records := []Record{
		{ModelName: "bayesian", Metrics: Metrics{R2: 0.65}},
		{ModelName: "regression", Metrics: Metrics{R2: 0.91}},
		{ModelName: "time_series", Metrics: Metrics{R2: 0.72}},
	}

	ranked := CompareModels(records)

	require.Len(t, ranked, 3)
	assert.Equal(t, "regression", ranked[0].ModelName)
	assert.Equal(t, "time_series", ranked[1].ModelName)
	assert.Equal(t, "bayesian", ranked[2].ModelName)

	// Input order is untouched.
	assert.Equal(t, "bayesian", records[0].ModelName)
}
