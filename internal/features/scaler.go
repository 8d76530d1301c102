package features

import (
	"math"
	"sync"
)

// runningStats accumulates per-feature statistics incrementally.
type runningStats struct {
	Count    int64   `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// MinMaxScaler is an incrementally-fit min-max scaler. Every observed vector
// widens the per-feature bounds; Scale maps values into [0,1] against the
// bounds seen so far. Scale-invariant consumers may ignore it and use the raw
// vector.
type MinMaxScaler struct {
	mu    sync.RWMutex
	stats map[string]*runningStats
}

// NewMinMaxScaler creates an empty scaler.
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{stats: make(map[string]*runningStats)}
}

// Observe folds one feature map into the running statistics. Concurrent
// feature computation serializes here; this is the single shared mutation
// point of the store.
func (s *MinMaxScaler) Observe(values map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, v := range values {
		st, ok := s.stats[key]
		if !ok {
			st = &runningStats{Min: math.Inf(1), Max: math.Inf(-1)}
			s.stats[key] = st
		}

		if st.Count == 0 {
			st.Mean = v
			st.Variance = 0
		} else {
			n := float64(st.Count)
			newMean := (st.Mean*n + v) / (n + 1)
			st.Variance = (n*st.Variance + (v-newMean)*(v-st.Mean)) / (n + 1)
			st.Mean = newMean
		}
		st.Count++

		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
	}
}

// Scale returns a scaled copy of the feature map. Features with a degenerate
// observed range (max==min, or never observed) scale to 0.
func (s *MinMaxScaler) Scale(values map[string]float64) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scaled := make(map[string]float64, len(values))
	for key, v := range values {
		st, ok := s.stats[key]
		if !ok || st.Max <= st.Min {
			scaled[key] = 0
			continue
		}
		scaled[key] = (v - st.Min) / (st.Max - st.Min)
	}
	return scaled
}

// Stats returns a snapshot of the running statistics for one feature and
// whether it has been observed.
func (s *MinMaxScaler) Stats(key string) (count int64, mean, std, min, max float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, found := s.stats[key]
	if !found {
		return 0, 0, 0, 0, 0, false
	}
	std = 0.0
	if st.Variance > 0 {
		std = math.Sqrt(st.Variance)
	}
	return st.Count, st.Mean, std, st.Min, st.Max, true
}
