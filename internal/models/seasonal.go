package models

import (
	"fmt"
	"math"
)

// SeasonalDecomposer splits a series into seasonal, trend, and residual
// components using per-phase averages and a centered moving average. This is
// a naive decomposition, not ARIMA.
type SeasonalDecomposer struct {
	period int
}

// NewSeasonalDecomposer creates a decomposer for the given period (e.g. 12
// for monthly data with yearly seasonality).
func NewSeasonalDecomposer(period int) (*SeasonalDecomposer, error) {
	if period < 2 {
		return nil, fmt.Errorf("seasonal: period must be at least 2, got %d", period)
	}
	return &SeasonalDecomposer{period: period}, nil
}

// Decomposition is the result of one seasonal decomposition.
type Decomposition struct {
	Observed []float64 `json:"observed"`
	Seasonal []float64 `json:"seasonal"`
	Trend    []float64 `json:"trend"`
	Residual []float64 `json:"residual"`
	Period   int       `json:"period"`
}

// Decompose computes per-phase averages (mod period) as the seasonal
// component, a centered moving average of the deseasonalized series as the
// trend (window=min(12, n/4), at least 1), and the leftover as residual.
// Series shorter than one period are handled best-effort: phases average
// whatever samples exist.
func (d *SeasonalDecomposer) Decompose(series []float64) (Decomposition, error) {
	n := len(series)
	if n == 0 {
		return Decomposition{}, fmt.Errorf("seasonal: empty series")
	}

	// Per-phase averages.
	phaseSum := make([]float64, d.period)
	phaseCount := make([]int, d.period)
	for i, v := range series {
		phase := i % d.period
		phaseSum[phase] += v
		phaseCount[phase]++
	}
	phaseAvg := make([]float64, d.period)
	for p := range phaseAvg {
		if phaseCount[p] > 0 {
			phaseAvg[p] = phaseSum[p] / float64(phaseCount[p])
		}
	}

	seasonal := make([]float64, n)
	deseasonalized := make([]float64, n)
	for i, v := range series {
		seasonal[i] = phaseAvg[i%d.period]
		deseasonalized[i] = v - seasonal[i]
	}

	window := n / 4
	if window > 12 {
		window = 12
	}
	if window < 1 {
		window = 1
	}
	trend := centeredMovingAverage(deseasonalized, window)

	residual := make([]float64, n)
	for i := range series {
		residual[i] = series[i] - seasonal[i] - trend[i]
	}

	return Decomposition{
		Observed: append([]float64(nil), series...),
		Seasonal: seasonal,
		Trend:    trend,
		Residual: residual,
		Period:   d.period,
	}, nil
}

// Forecast continues the decomposition: each future step combines the
// matching seasonal phase value with the last trend value held constant.
func (dec Decomposition) Forecast(steps int) []float64 {
	if steps <= 0 || len(dec.Observed) == 0 {
		return nil
	}
	n := len(dec.Observed)
	lastTrend := dec.Trend[n-1]

	out := make([]float64, steps)
	for i := 0; i < steps; i++ {
		phase := (n + i) % dec.Period
		// The seasonal slice repeats per phase; take the first occurrence.
		seasonal := 0.0
		if phase < len(dec.Seasonal) {
			seasonal = dec.Seasonal[phase]
		}
		out[i] = seasonal + lastTrend
	}
	return out
}

// PredictionFor wraps a one-step forecast as a Prediction for the ensemble.
// Confidence decays with the residual spread relative to the estimate.
func (dec Decomposition) PredictionFor() Prediction {
	forecast := dec.Forecast(1)
	estimate := 0.0
	if len(forecast) > 0 {
		estimate = forecast[0]
	}

	_, residualStd := seriesMeanStd(dec.Residual)
	confidence := 0.5
	if estimate != 0 {
		ratio := residualStd / abs(estimate)
		confidence = clamp01(1 - ratio)
	}

	return Prediction{
		Method:        MethodTimeSeries,
		YieldEstimate: estimate,
		Confidence:    confidence,
		Uncertainty:   residualStd,
		Diagnostics: map[string]float64{
			"residual_std": residualStd,
			"last_trend":   dec.Trend[len(dec.Trend)-1],
		},
	}
}

// centeredMovingAverage smooths the series with a window centered on each
// index, shrinking at the boundaries so the trend is defined everywhere.
func centeredMovingAverage(series []float64, window int) []float64 {
	n := len(series)
	half := window / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > n-1 {
			hi = n - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += series[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

func seriesMeanStd(series []float64) (mean, std float64) {
	if len(series) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean = sum / float64(len(series))
	var variance float64
	for _, v := range series {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(series))
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return mean, std
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
