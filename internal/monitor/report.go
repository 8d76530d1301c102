package monitor

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// recentWindow is the number of latest verified predictions compared against
// the older ones for the trend heuristic.
const recentWindow = 10

// maxHistory caps the retained reports; older reports are dropped first.
const maxHistory = 100

// Trend labels comparing recent verified error against older verified error.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDegrading = "degrading"
)

// MethodPerformance is one row of the per-method report table.
type MethodPerformance struct {
	Method   string  `json:"method"`
	Verified int     `json:"verified"`
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	MAPE     float64 `json:"mape"`
}

// Report is a generated performance summary.
type Report struct {
	GeneratedAt       time.Time           `json:"generated_at"`
	TotalPredictions  int                 `json:"total_predictions"`
	VerifiedCount     int                 `json:"verified_count"`
	VerificationRate  float64             `json:"verification_rate"`
	Methods           []MethodPerformance `json:"methods"`
	ErrorDistribution map[string]int      `json:"error_distribution"`
	Trend             string              `json:"trend"`
	Recommendations   []string            `json:"recommendations,omitempty"`
}

// GeneratePerformanceReport summarizes the monitor state: verification rate,
// per-method accuracy, error-category distribution, an error trend comparing
// the latest verified predictions to the older ones, and recommendations.
// The report is appended to the performance history.
func (m *Monitor) GeneratePerformanceReport() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &Report{
		GeneratedAt:       time.Now(),
		TotalPredictions:  len(m.preds),
		ErrorDistribution: make(map[string]int),
		Trend:             TrendStable,
	}

	// Verified results in tracking order drive the distribution and trend.
	var pctErrors []float64
	for _, id := range m.order {
		res, ok := m.actuals[id]
		if !ok {
			continue
		}
		report.VerifiedCount++
		report.ErrorDistribution[res.Category]++
		pctErrors = append(pctErrors, res.PctError)
	}
	if report.TotalPredictions > 0 {
		report.VerificationRate = float64(report.VerifiedCount) / float64(report.TotalPredictions)
	}

	for _, method := range m.sortedMethods() {
		l := m.ledgers[method]
		report.Methods = append(report.Methods, MethodPerformance{
			Method:   method,
			Verified: l.Count,
			MAE:      l.MAE(),
			RMSE:     l.RMSE(),
			MAPE:     l.MAPE(),
		})
	}

	report.Trend = errorTrend(pctErrors)
	report.Recommendations = m.recommendations(report)

	if m.metrics != nil {
		m.metrics.VerificationMAPESet(m.overallMAPELocked())
	}

	m.history = append(m.history, *report)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	log.Info().
		Int("total", report.TotalPredictions).
		Int("verified", report.VerifiedCount).
		Str("trend", report.Trend).
		Msg("performance report generated")
	return report
}

// overallMAPELocked aggregates the percentage-error sums across all method
// ledgers. Callers hold the monitor lock.
func (m *Monitor) overallMAPELocked() float64 {
	var sumPct float64
	var pctCount int
	for _, l := range m.ledgers {
		sumPct += l.SumPct
		pctCount += l.PctCount
	}
	if pctCount == 0 {
		return 0
	}
	return sumPct / float64(pctCount)
}

// History returns a copy of the accumulated reports.
func (m *Monitor) History() []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Report(nil), m.history...)
}

// errorTrend compares mean percentage error of the last recentWindow
// verified predictions against all earlier ones. Fewer verified predictions
// than the window, or no earlier baseline, reads as stable.
func errorTrend(pctErrors []float64) string {
	if len(pctErrors) <= recentWindow {
		return TrendStable
	}
	split := len(pctErrors) - recentWindow
	older := mean(pctErrors[:split])
	recent := mean(pctErrors[split:])

	if older == 0 {
		if recent == 0 {
			return TrendStable
		}
		return TrendDegrading
	}
	change := (recent - older) / older
	switch {
	case change < -0.1:
		return TrendImproving
	case change > 0.1:
		return TrendDegrading
	default:
		return TrendStable
	}
}

// recommendations derives follow-up actions from the report. Callers hold
// the monitor lock.
func (m *Monitor) recommendations(r *Report) []string {
	var recs []string
	for _, mp := range r.Methods {
		if mp.MAPE > 25 {
			recs = append(recs, "retrain "+mp.Method+": MAPE above 25%")
		}
	}
	if r.TotalPredictions > 0 && r.VerificationRate < 0.3 {
		recs = append(recs, "collect more ground truth: verification rate below 30%")
	}
	if r.Trend == TrendDegrading {
		recs = append(recs, "investigate recent predictions: error trend degrading")
	}
	return recs
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	if math.IsNaN(avg) {
		return 0
	}
	return avg
}
