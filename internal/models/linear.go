package models

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// defaultCoefficients are the named per-feature yield coefficients used
// before any fit has happened (tonnes/ha per feature unit).
var defaultCoefficients = map[string]float64{
	"rainfall":    0.025,
	"temperature": 0.012,
	"soil_ph":     0.08,
	"timing":      0.15,
	"water_match": 0.12,
}

// defaultIntercept is the base yield in tonnes/ha with all features at zero.
const defaultIntercept = 2.5

// LinearRegression predicts yield either from a named coefficient table
// (statistical kind) or from a positional weight vector estimated by
// ordinary least squares (array-based kind after Fit).
type LinearRegression struct {
	kind         Kind
	coefficients map[string]float64
	intercept    float64

	// theta holds the fitted weights with the intercept at index 0.
	theta    []float64
	rSquared float64
	fitted   bool
}

// NewLinearRegression creates a regression model with the default named
// coefficient table.
func NewLinearRegression() *LinearRegression {
	coefs := make(map[string]float64, len(defaultCoefficients))
	for k, v := range defaultCoefficients {
		coefs[k] = v
	}
	return &LinearRegression{
		kind:         KindStatistical,
		coefficients: coefs,
		intercept:    defaultIntercept,
	}
}

// SetCoefficients replaces the named coefficient table and intercept.
func (m *LinearRegression) SetCoefficients(coefs map[string]float64, intercept float64) {
	m.coefficients = coefs
	m.intercept = intercept
}

// Predict evaluates the named coefficient model: intercept plus the sum of
// coefficient×feature over the features present in the input. Unknown
// features are ignored; absent ones contribute nothing.
func (m *LinearRegression) Predict(features map[string]float64) float64 {
	estimate := m.intercept
	for name, coef := range m.coefficients {
		if v, ok := features[name]; ok {
			estimate += coef * v
		}
	}
	return estimate
}

// Fit estimates positional weights θ=(XᵀX)⁻¹Xᵀy after prepending an
// intercept column, switching the model to the array-based kind. Returns
// ErrSingularMatrix when the normal-equation matrix cannot be inverted.
func (m *LinearRegression) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("fit: %d samples vs %d targets", len(x), len(y))
	}

	// Design matrix with intercept column.
	design := make([][]float64, len(x))
	for i, row := range x {
		design[i] = make([]float64, len(row)+1)
		design[i][0] = 1
		copy(design[i][1:], row)
	}

	xt := transpose(design)
	xtx := matMul(xt, design)

	inv, err := Invert(xtx)
	if err != nil {
		log.Error().Err(err).Int("samples", len(x)).Int("features", len(x[0])).
			Msg("normal equation matrix is singular")
		return fmt.Errorf("fit: %w", err)
	}

	xty := matVec(xt, y)
	m.theta = matVec(inv, xty)
	m.kind = KindArrayBased
	m.fitted = true

	preds := make([]float64, len(x))
	for i := range design {
		preds[i] = dot(design[i], m.theta)
	}
	r2, err := CalculateRSquared(y, preds)
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	m.rSquared = r2

	log.Debug().Float64("r_squared", r2).Int("samples", len(x)).Msg("regression fitted")
	return nil
}

// PredictVector evaluates the fitted positional model on one feature array
// (without the intercept column; it is prepended internally).
func (m *LinearRegression) PredictVector(x []float64) (float64, error) {
	if !m.fitted {
		return 0, ErrNotFitted
	}
	if len(x)+1 != len(m.theta) {
		return 0, fmt.Errorf("predict: expected %d features, got %d", len(m.theta)-1, len(x))
	}
	estimate := m.theta[0]
	for i, v := range x {
		estimate += m.theta[i+1] * v
	}
	return estimate, nil
}

// Kind reports how the model currently carries its parameters.
func (m *LinearRegression) Kind() Kind { return m.kind }

// Theta returns the fitted weights (intercept first), nil before Fit.
func (m *LinearRegression) Theta() []float64 { return m.theta }

// RSquared returns the coefficient of determination from the training
// residuals of the last Fit.
func (m *LinearRegression) RSquared() float64 { return m.rSquared }

// CalculateRSquared computes R² = 1 − SSres/SStot. When the target variance
// is zero, R² is defined as 1 if the residuals are also zero and is an error
// otherwise.
func CalculateRSquared(actual, predicted []float64) (float64, error) {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0, fmt.Errorf("r squared: %d actual vs %d predicted", len(actual), len(predicted))
	}

	var sum float64
	for _, v := range actual {
		sum += v
	}
	mean := sum / float64(len(actual))

	var ssRes, ssTot float64
	for i, v := range actual {
		ssRes += (v - predicted[i]) * (v - predicted[i])
		ssTot += (v - mean) * (v - mean)
	}

	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, fmt.Errorf("r squared: zero target variance with nonzero residuals")
	}
	return 1 - ssRes/ssTot, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// PredictionFor wraps a named-coefficient estimate as a Prediction for the
// ensemble. Confidence tracks the last fit quality when available.
func (m *LinearRegression) PredictionFor(features map[string]float64) Prediction {
	confidence := 0.78
	if m.fitted {
		confidence = math.Max(0.5, math.Min(1, m.rSquared))
	}
	return Prediction{
		Method:        MethodRegression,
		YieldEstimate: m.Predict(features),
		Confidence:    confidence,
		Diagnostics: map[string]float64{
			"r_squared": m.rSquared,
		},
	}
}
