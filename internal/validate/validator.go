// Package validate scores fitted models against held-out labeled data:
// accuracy metrics, k-fold cross-validation, residual diagnostics, and a
// categorical status per model.
package validate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Metrics holds the accuracy metrics computed for one validation pass.
type Metrics struct {
	MSE               float64 `json:"mse"`
	RMSE              float64 `json:"rmse"`
	MAE               float64 `json:"mae"`
	R2                float64 `json:"r2"`
	AdjustedR2        float64 `json:"adjusted_r2"`
	MAPE              float64 `json:"mape"`
	ExplainedVariance float64 `json:"explained_variance"`
}

// ResidualAnalysis summarizes the residual diagnostics of one validation.
type ResidualAnalysis struct {
	Mean           float64 `json:"mean"`
	Std            float64 `json:"std"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Normality      float64 `json:"normality"`
	Homoscedastic  bool    `json:"homoscedastic"`
	VarianceRatio  float64 `json:"variance_ratio"`
	OutlierIndices []int   `json:"outlier_indices,omitempty"`
}

// CrossValidation holds the mean and spread of per-fold R² scores.
type CrossValidation struct {
	Folds  int     `json:"folds"`
	MeanR2 float64 `json:"mean_r2"`
	StdR2  float64 `json:"std_r2"`
}

// Record is one validation outcome for one model.
type Record struct {
	ModelName        string           `json:"model_name"`
	Metrics          Metrics          `json:"metrics"`
	CrossValidation  *CrossValidation `json:"cross_validation,omitempty"`
	ResidualAnalysis ResidualAnalysis `json:"residual_analysis"`
	Status           string           `json:"status"`
	ValidatedAt      time.Time        `json:"validated_at"`
}

// Status categories in decreasing order of quality.
const (
	StatusExcellent        = "excellent"
	StatusGood             = "good"
	StatusAcceptable       = "acceptable"
	StatusNeedsImprovement = "needs_improvement"
)

// Predictor evaluates one positional feature array. Already-fitted models
// satisfy this with their predict method.
type Predictor interface {
	PredictVector(x []float64) (float64, error)
}

// Validator scores models. Regressors is the number of predictors used for
// the adjusted R² correction; it is explicit rather than assumed from the
// data width.
type Validator struct {
	Regressors int
}

// New creates a validator for models with the given regressor count.
func New(regressors int) *Validator {
	if regressors < 1 {
		regressors = 1
	}
	return &Validator{Regressors: regressors}
}

// ValidateModel scores predictions against actuals and produces a full
// record including residual diagnostics and a categorical status.
func (v *Validator) ValidateModel(name string, predicted, actual []float64) (Record, error) {
	if len(predicted) == 0 || len(predicted) != len(actual) {
		return Record{}, fmt.Errorf("validate: %d predictions vs %d actuals", len(predicted), len(actual))
	}

	metrics := v.computeMetrics(predicted, actual)
	residuals := v.AnalyzeResiduals(predicted, actual)
	status := DetermineStatus(metrics)

	log.Info().
		Str("model", name).
		Float64("r2", metrics.R2).
		Float64("mape", metrics.MAPE).
		Str("status", status).
		Msg("model validated")

	return Record{
		ModelName:        name,
		Metrics:          metrics,
		ResidualAnalysis: residuals,
		Status:           status,
		ValidatedAt:      time.Now(),
	}, nil
}

func (v *Validator) computeMetrics(predicted, actual []float64) Metrics {
	n := float64(len(actual))

	var actualSum float64
	for _, a := range actual {
		actualSum += a
	}
	actualMean := actualSum / n

	var sse, sae, ssTot float64
	var mapeSum float64
	mapeCount := 0
	residuals := make([]float64, len(actual))
	for i, a := range actual {
		r := a - predicted[i]
		residuals[i] = r
		sse += r * r
		sae += math.Abs(r)
		ssTot += (a - actualMean) * (a - actualMean)
		// Zero actuals are skipped from the MAPE mean rather than
		// contributing an undefined term.
		if a != 0 {
			mapeSum += math.Abs(r / a)
			mapeCount++
		}
	}

	mse := sse / n
	mae := sae / n

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - sse/ssTot
	} else if sse == 0 {
		r2 = 1
	}

	adjustedR2 := r2
	p := float64(v.Regressors)
	if n-p-1 > 0 {
		adjustedR2 = 1 - (1-r2)*(n-1)/(n-p-1)
	}

	mape := 0.0
	if mapeCount > 0 {
		mape = mapeSum / float64(mapeCount) * 100
	}

	// Explained variance: 1 − Var(residual)/Var(actual).
	residualMean := 0.0
	for _, r := range residuals {
		residualMean += r
	}
	residualMean /= n
	var residualVar float64
	for _, r := range residuals {
		residualVar += (r - residualMean) * (r - residualMean)
	}
	residualVar /= n
	explained := 0.0
	if ssTot > 0 {
		explained = 1 - residualVar/(ssTot/n)
	} else if residualVar == 0 {
		explained = 1
	}

	return Metrics{
		MSE:               mse,
		RMSE:              math.Sqrt(mse),
		MAE:               mae,
		R2:                r2,
		AdjustedR2:        adjustedR2,
		MAPE:              mape,
		ExplainedVariance: explained,
	}
}

// CrossValidate evaluates the same already-fitted model on k contiguous
// non-overlapping folds as validation data and returns the mean and std of
// per-fold R². Unlike textbook k-fold CV there is no per-fold retraining;
// this matches the long-standing behavior downstream consumers calibrate
// against.
func (v *Validator) CrossValidate(model Predictor, x [][]float64, y []float64, k int) (CrossValidation, error) {
	if k < 2 {
		return CrossValidation{}, fmt.Errorf("cross validate: k must be at least 2, got %d", k)
	}
	if len(x) < k || len(x) != len(y) {
		return CrossValidation{}, fmt.Errorf("cross validate: %d samples for %d folds", len(x), k)
	}

	scores := make([]float64, 0, k)
	foldSize := len(x) / k

	for fold := 0; fold < k; fold++ {
		lo := fold * foldSize
		hi := lo + foldSize
		if fold == k-1 {
			hi = len(x) // last fold absorbs the remainder
		}

		preds := make([]float64, 0, hi-lo)
		actuals := make([]float64, 0, hi-lo)
		for i := lo; i < hi; i++ {
			p, err := model.PredictVector(x[i])
			if err != nil {
				return CrossValidation{}, fmt.Errorf("cross validate fold %d: %w", fold, err)
			}
			preds = append(preds, p)
			actuals = append(actuals, y[i])
		}

		score := foldR2(actuals, preds)
		scores = append(scores, score)
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	return CrossValidation{
		Folds:  k,
		MeanR2: mean,
		StdR2:  math.Sqrt(variance),
	}, nil
}

// foldR2 computes R² for one fold, degrading to 0 for degenerate folds.
func foldR2(actual, predicted []float64) float64 {
	var sum float64
	for _, a := range actual {
		sum += a
	}
	mean := sum / float64(len(actual))

	var sse, ssTot float64
	for i, a := range actual {
		sse += (a - predicted[i]) * (a - predicted[i])
		ssTot += (a - mean) * (a - mean)
	}
	if ssTot == 0 {
		if sse == 0 {
			return 1
		}
		return 0
	}
	return 1 - sse/ssTot
}

// AnalyzeResiduals computes residual diagnostics: summary statistics, a
// normality heuristic against the 68/95/99.7 rule, a homoscedasticity
// heuristic over three prediction-ordered groups, and |z|>3 outliers.
func (v *Validator) AnalyzeResiduals(predicted, actual []float64) ResidualAnalysis {
	n := len(actual)
	residuals := make([]float64, n)
	for i := range actual {
		residuals[i] = actual[i] - predicted[i]
	}

	var sum float64
	min, max := residuals[0], residuals[0]
	for _, r := range residuals {
		sum += r
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
	}
	mean := sum / float64(n)

	var variance float64
	for _, r := range residuals {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(n)
	std := math.Sqrt(variance)

	// Normality: compare empirical fractions within 1/2/3 std to the
	// 68/95/99.7 rule; 1 means a perfect match.
	normality := 1.0
	var outliers []int
	if std > 0 {
		within1, within2, within3 := 0, 0, 0
		for i, r := range residuals {
			z := math.Abs(r-mean) / std
			if z <= 1 {
				within1++
			}
			if z <= 2 {
				within2++
			}
			if z <= 3 {
				within3++
			} else {
				outliers = append(outliers, i)
			}
		}
		f1 := float64(within1) / float64(n)
		f2 := float64(within2) / float64(n)
		f3 := float64(within3) / float64(n)
		deviation := (math.Abs(f1-0.68) + math.Abs(f2-0.95) + math.Abs(f3-0.997)) / 3
		normality = math.Max(0, 1-deviation)
	}

	// Homoscedasticity: variance ratio across three prediction-ordered
	// equal groups.
	homoscedastic := true
	varianceRatio := 1.0
	if n >= 6 {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return predicted[order[a]] < predicted[order[b]]
		})

		third := n / 3
		groupVar := func(indices []int) float64 {
			var gSum float64
			for _, i := range indices {
				gSum += residuals[i]
			}
			gMean := gSum / float64(len(indices))
			var gVar float64
			for _, i := range indices {
				gVar += (residuals[i] - gMean) * (residuals[i] - gMean)
			}
			return gVar / float64(len(indices))
		}

		lowVar := groupVar(order[:third])
		highVar := groupVar(order[n-third:])
		if lowVar > 0 {
			varianceRatio = highVar / lowVar
		} else if highVar > 0 {
			varianceRatio = math.Inf(1)
		}
		homoscedastic = varianceRatio < 3 && varianceRatio > 1.0/3
	}

	return ResidualAnalysis{
		Mean:           mean,
		Std:            std,
		Min:            min,
		Max:            max,
		Normality:      normality,
		Homoscedastic:  homoscedastic,
		VarianceRatio:  varianceRatio,
		OutlierIndices: outliers,
	}
}

// DetermineStatus maps metrics to a categorical status via the fixed
// decision table.
func DetermineStatus(m Metrics) string {
	switch {
	case m.R2 >= 0.8 && m.MAPE <= 15:
		return StatusExcellent
	case m.R2 >= 0.7 && m.MAPE <= 20:
		return StatusGood
	case m.R2 >= 0.5 && m.MAPE <= 30:
		return StatusAcceptable
	default:
		return StatusNeedsImprovement
	}
}

// CompareModels ranks validation records by R² descending.
func CompareModels(records []Record) []Record {
	ranked := append([]Record(nil), records...)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Metrics.R2 > ranked[j].Metrics.R2
	})
	return ranked
}
