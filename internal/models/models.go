// Package models implements the independent statistical primitives behind
// yield prediction: ordinary least squares regression, discretized Bayesian
// updating, seasonal decomposition, Monte Carlo simulation, and k-means
// clustering. Each primitive is self-contained; the ensemble layer combines
// their outputs.
package models

import "errors"

// Method identifiers reported in predictions and used by the ensemble
// weight table.
const (
	MethodRegression = "regression"
	MethodBayesian   = "bayesian"
	MethodMonteCarlo = "monte_carlo"
	MethodTimeSeries = "time_series"
	MethodClustering = "clustering"
)

// Kind tags how a model carries its parameters, resolved at construction
// rather than inspected per call.
type Kind int

const (
	// KindStatistical models hold named parameters (coefficient maps,
	// priors, periods).
	KindStatistical Kind = iota
	// KindArrayBased models hold positional weight arrays aligned with the
	// fixed feature ordering.
	KindArrayBased
)

var (
	// ErrSingularMatrix reports a degenerate normal-equation matrix; the
	// fit call fails and the caller falls back to another method.
	ErrSingularMatrix = errors.New("singular matrix")

	// ErrNotFitted reports use of a model before a successful fit.
	ErrNotFitted = errors.New("model not fitted")
)

// Prediction is the output of one primitive for one feature vector.
type Prediction struct {
	Method        string             `json:"method"`
	YieldEstimate float64            `json:"yield_estimate"`
	Confidence    float64            `json:"confidence"`
	Uncertainty   float64            `json:"uncertainty"`
	Diagnostics   map[string]float64 `json:"diagnostics,omitempty"`
}
