// Package monitor tracks issued yield predictions, verifies them against
// ground truth as it arrives, and keeps per-method accuracy ledgers that feed
// periodic performance reports.
package monitor

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a prediction id is unknown.
var ErrNotFound = errors.New("monitor: prediction not found")

// Error categories by absolute percentage error.
const (
	CategoryExcellent  = "excellent"
	CategoryGood       = "good"
	CategoryAcceptable = "acceptable"
	CategoryPoor       = "poor"
	CategoryVeryPoor   = "very_poor"
)

// PredictionRecord is one tracked prediction awaiting verification.
type PredictionRecord struct {
	ID             string            `json:"id"`
	Method         string            `json:"method"`
	Region         string            `json:"region"`
	Crop           string            `json:"crop"`
	PredictedYield float64           `json:"predicted_yield"`
	Confidence     float64           `json:"confidence"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	TrackedAt      time.Time         `json:"tracked_at"`
	Verified       bool              `json:"verified"`
}

// ActualResult is the ground-truth outcome recorded against a prediction.
type ActualResult struct {
	PredictionID string    `json:"prediction_id"`
	ActualYield  float64   `json:"actual_yield"`
	AbsError     float64   `json:"abs_error"`
	PctError     float64   `json:"pct_error"`
	Category     string    `json:"category"`
	Flagged      bool      `json:"flagged"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// AccuracyLedger accumulates verification errors for one method. MAE, RMSE,
// and MAPE are maintained as running aggregates.
type AccuracyLedger struct {
	Method   string  `json:"method"`
	Count    int     `json:"count"`
	SumAbs   float64 `json:"sum_abs"`
	SumSq    float64 `json:"sum_sq"`
	SumPct   float64 `json:"sum_pct"`
	PctCount int     `json:"pct_count"`
}

// MAE is the mean absolute error over verified predictions.
func (l *AccuracyLedger) MAE() float64 {
	if l.Count == 0 {
		return 0
	}
	return l.SumAbs / float64(l.Count)
}

// RMSE is the root mean squared error over verified predictions.
func (l *AccuracyLedger) RMSE() float64 {
	if l.Count == 0 {
		return 0
	}
	return math.Sqrt(l.SumSq / float64(l.Count))
}

// MAPE is the mean absolute percentage error over verified predictions with
// nonzero actuals.
func (l *AccuracyLedger) MAPE() float64 {
	if l.PctCount == 0 {
		return 0
	}
	return l.SumPct / float64(l.PctCount)
}

// Snapshot is the full exportable monitor state. ErrorAnalysis groups the
// verified results by error category.
type Snapshot struct {
	Predictions        []PredictionRecord         `json:"predictions"`
	ActualResults      []ActualResult             `json:"actualResults"`
	ModelAccuracy      map[string]*AccuracyLedger `json:"modelAccuracy"`
	ErrorAnalysis      map[string][]ActualResult  `json:"errorAnalysis"`
	PerformanceHistory []Report                   `json:"performanceHistory"`
}

// Store persists monitor snapshots. A nil store disables persistence.
type Store interface {
	SaveSnapshot(s *Snapshot) error
	LoadSnapshot() (*Snapshot, error)
}

// MetricsTracker receives monitor activity counters. Nil disables reporting.
type MetricsTracker interface {
	PredictionTrackedInc(method string)
	PredictionVerifiedInc(method, category string)
	VerificationMAPESet(mape float64)
}

// MetadataParentID links a per-method prediction to the ensemble prediction
// it contributed to. Recording an actual yield against the parent also
// verifies its children, feeding the per-method accuracy ledgers.
const MetadataParentID = "parent_id"

// Monitor is the prediction lifecycle tracker. Safe for concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	preds   map[string]*PredictionRecord
	order   []string
	actuals map[string]*ActualResult
	ledgers map[string]*AccuracyLedger
	history []Report
	store   Store
	metrics MetricsTracker
}

// New creates a monitor. Both store and metrics may be nil.
func New(store Store, metrics MetricsTracker) *Monitor {
	return &Monitor{
		preds:   make(map[string]*PredictionRecord),
		actuals: make(map[string]*ActualResult),
		ledgers: make(map[string]*AccuracyLedger),
		store:   store,
		metrics: metrics,
	}
}

// TrackPrediction registers a new prediction and returns its generated id.
func (m *Monitor) TrackPrediction(method, region, crop string, predictedYield, confidence float64, metadata map[string]string) string {
	rec := &PredictionRecord{
		ID:             uuid.NewString(),
		Method:         method,
		Region:         region,
		Crop:           crop,
		PredictedYield: predictedYield,
		Confidence:     confidence,
		Metadata:       metadata,
		TrackedAt:      time.Now(),
	}

	m.mu.Lock()
	m.preds[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.PredictionTrackedInc(method)
	}
	log.Debug().Str("id", rec.ID).Str("method", method).
		Float64("predicted", predictedYield).Msg("prediction tracked")
	return rec.ID
}

// RecordActualYield verifies a tracked prediction against ground truth,
// computes its errors and category, and updates the method's accuracy
// ledger. Unverified children linked via MetadataParentID are verified with
// the same actual, so one ground-truth report feeds every contributing
// method's ledger. An unknown id returns ErrNotFound with no ledger mutation.
func (m *Monitor) RecordActualYield(id string, actualYield float64) (*ActualResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.preds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	result := m.verifyLocked(rec, actualYield)
	for _, childID := range m.order {
		child := m.preds[childID]
		if !child.Verified && child.Metadata[MetadataParentID] == id {
			m.verifyLocked(child, actualYield)
		}
	}
	return result, nil
}

// verifyLocked records one verification. Callers hold the write lock.
func (m *Monitor) verifyLocked(rec *PredictionRecord, actualYield float64) *ActualResult {
	absErr := math.Abs(rec.PredictedYield - actualYield)
	pctErr := 0.0
	if actualYield != 0 {
		pctErr = absErr / math.Abs(actualYield) * 100
	}
	category, flagged := categorize(pctErr)

	result := &ActualResult{
		PredictionID: rec.ID,
		ActualYield:  actualYield,
		AbsError:     absErr,
		PctError:     pctErr,
		Category:     category,
		Flagged:      flagged,
		RecordedAt:   time.Now(),
	}
	rec.Verified = true
	m.actuals[rec.ID] = result

	ledger, ok := m.ledgers[rec.Method]
	if !ok {
		ledger = &AccuracyLedger{Method: rec.Method}
		m.ledgers[rec.Method] = ledger
	}
	ledger.Count++
	ledger.SumAbs += absErr
	ledger.SumSq += absErr * absErr
	if actualYield != 0 {
		ledger.SumPct += pctErr
		ledger.PctCount++
	}

	if m.metrics != nil {
		m.metrics.PredictionVerifiedInc(rec.Method, category)
	}
	if flagged {
		log.Warn().Str("id", rec.ID).Str("method", rec.Method).
			Float64("pct_error", pctErr).Msg("prediction error above flag threshold")
	}
	return result
}

// categorize maps an absolute percentage error to its band. Errors above 30%
// are additionally flagged for review.
func categorize(pctErr float64) (string, bool) {
	switch {
	case pctErr <= 5:
		return CategoryExcellent, false
	case pctErr <= 10:
		return CategoryGood, false
	case pctErr <= 20:
		return CategoryAcceptable, false
	case pctErr <= 30:
		return CategoryPoor, false
	default:
		return CategoryVeryPoor, true
	}
}

// MethodMAPE returns the running MAPE per method for methods with at least
// one verified nonzero-actual prediction. Feeds accuracy-based re-weighting
// in the ensemble combiner.
func (m *Monitor) MethodMAPE() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mape := make(map[string]float64, len(m.ledgers))
	for method, l := range m.ledgers {
		if l.PctCount > 0 {
			mape[method] = l.MAPE()
		}
	}
	return mape
}

// Ledger returns a copy of one method's accuracy ledger, or nil when the
// method has no verified predictions.
func (m *Monitor) Ledger(method string) *AccuracyLedger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.ledgers[method]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

// Prediction returns a copy of a tracked prediction.
func (m *Monitor) Prediction(id string) (*PredictionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.preds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

// Export produces a snapshot of the full monitor state, predictions in
// tracking order.
func (m *Monitor) Export() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{
		Predictions:   make([]PredictionRecord, 0, len(m.order)),
		ActualResults: make([]ActualResult, 0, len(m.actuals)),
		ModelAccuracy: make(map[string]*AccuracyLedger, len(m.ledgers)),
		ErrorAnalysis: make(map[string][]ActualResult),
	}
	for _, id := range m.order {
		snap.Predictions = append(snap.Predictions, *m.preds[id])
		if res, ok := m.actuals[id]; ok {
			snap.ActualResults = append(snap.ActualResults, *res)
			snap.ErrorAnalysis[res.Category] = append(snap.ErrorAnalysis[res.Category], *res)
		}
	}
	for method, l := range m.ledgers {
		cp := *l
		snap.ModelAccuracy[method] = &cp
	}
	snap.PerformanceHistory = append([]Report(nil), m.history...)
	return snap
}

// Import replaces the monitor state with a snapshot.
func (m *Monitor) Import(snap *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.preds = make(map[string]*PredictionRecord, len(snap.Predictions))
	m.order = make([]string, 0, len(snap.Predictions))
	for i := range snap.Predictions {
		rec := snap.Predictions[i]
		m.preds[rec.ID] = &rec
		m.order = append(m.order, rec.ID)
	}

	m.actuals = make(map[string]*ActualResult, len(snap.ActualResults))
	for i := range snap.ActualResults {
		res := snap.ActualResults[i]
		m.actuals[res.PredictionID] = &res
	}
	// Stored data may carry verified results only in the per-category
	// analysis; fold those in so no record is lost on restore.
	for _, results := range snap.ErrorAnalysis {
		for i := range results {
			res := results[i]
			if _, ok := m.actuals[res.PredictionID]; ok {
				continue
			}
			m.actuals[res.PredictionID] = &res
			if rec, ok := m.preds[res.PredictionID]; ok {
				rec.Verified = true
			}
		}
	}

	m.ledgers = make(map[string]*AccuracyLedger, len(snap.ModelAccuracy))
	for method, l := range snap.ModelAccuracy {
		cp := *l
		m.ledgers[method] = &cp
	}
	m.history = append([]Report(nil), snap.PerformanceHistory...)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// Persist writes the current snapshot through the injected store.
func (m *Monitor) Persist() error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveSnapshot(m.Export())
}

// Restore loads monitor state from the injected store. A nil store or a nil
// snapshot leaves the monitor empty.
func (m *Monitor) Restore() error {
	if m.store == nil {
		return nil
	}
	snap, err := m.store.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("monitor restore: %w", err)
	}
	if snap == nil {
		return nil
	}
	m.Import(snap)
	return nil
}

// sortedMethods returns ledger method names in stable order.
func (m *Monitor) sortedMethods() []string {
	methods := make([]string, 0, len(m.ledgers))
	for method := range m.ledgers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}
