package models

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DistKind selects how a simulation parameter is sampled.
type DistKind string

const (
	DistNormal     DistKind = "normal"
	DistUniform    DistKind = "uniform"
	DistTriangular DistKind = "triangular"
)

// Param configures one sampled simulation parameter. Mean/Std apply to
// normal, Min/Max to uniform and triangular, Mode to triangular.
type Param struct {
	Name string   `yaml:"name" json:"name"`
	Dist DistKind `yaml:"dist" json:"dist"`
	Mean float64  `yaml:"mean" json:"mean"`
	Std  float64  `yaml:"std" json:"std"`
	Min  float64  `yaml:"min" json:"min"`
	Max  float64  `yaml:"max" json:"max"`
	Mode float64  `yaml:"mode" json:"mode"`
}

// SimulationConfig configures a Monte Carlo run. Seed 0 selects a
// time-based seed; any other value makes the run deterministic.
type SimulationConfig struct {
	Trials      int           `yaml:"trials" json:"trials"`
	Seed        int64         `yaml:"seed" json:"seed"`
	Workers     int           `yaml:"workers" json:"workers"`
	MaxDuration time.Duration `yaml:"maxDuration" json:"max_duration"`
	Params      []Param       `yaml:"params" json:"params"`
}

// OutcomeFunc evaluates one trial's sampled parameters into an outcome.
type OutcomeFunc func(samples map[string]float64) float64

// SimResult aggregates a completed simulation. Percentiles use the sorted
// outcome at index floor(p×n).
type SimResult struct {
	Trials            int     `json:"trials"`
	Mean              float64 `json:"mean"`
	Std               float64 `json:"std"`
	P5                float64 `json:"p5"`
	P25               float64 `json:"p25"`
	P50               float64 `json:"p50"`
	P75               float64 `json:"p75"`
	P95               float64 `json:"p95"`
	ProbNegative      float64 `json:"prob_negative"`
	ValueAtRisk       float64 `json:"value_at_risk"`
	ExpectedShortfall float64 `json:"expected_shortfall"`
}

// Simulator runs independent Monte Carlo trials of a deterministic outcome
// function over sampled parameters.
type Simulator struct {
	cfg     SimulationConfig
	outcome OutcomeFunc
}

// DefaultTrials is the trial count used when the config leaves it zero.
const DefaultTrials = 10000

// NewSimulator creates a simulator, applying defaults for trial count and
// worker count.
func NewSimulator(cfg SimulationConfig, outcome OutcomeFunc) (*Simulator, error) {
	if outcome == nil {
		return nil, fmt.Errorf("monte carlo: nil outcome function")
	}
	if cfg.Trials <= 0 {
		cfg.Trials = DefaultTrials
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Workers > cfg.Trials {
		cfg.Workers = cfg.Trials
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Simulator{cfg: cfg, outcome: outcome}, nil
}

// Run executes the trials across workers and aggregates the outcomes.
// Trials are embarrassingly parallel: each worker owns a deterministic RNG
// derived from the base seed and writes into its own output segment, so a
// given seed always produces the same outcome multiset. The context and the
// optional MaxDuration budget can cut a run short; partial results are still
// aggregated and Trials reports what actually ran.
func (s *Simulator) Run(ctx context.Context) (SimResult, error) {
	total := s.cfg.Trials
	workers := s.cfg.Workers

	outcomes := make([]float64, total)
	completed := make([]int, workers)
	deadline := time.Time{}
	if s.cfg.MaxDuration > 0 {
		deadline = time.Now().Add(s.cfg.MaxDuration)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * total / workers
		hi := (w + 1) * total / workers

		wg.Add(1)
		go func(worker, lo, hi int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(s.cfg.Seed + int64(worker)))
			samples := make(map[string]float64, len(s.cfg.Params))

			for i := lo; i < hi; i++ {
				// Budget checks are batched to stay off the hot path.
				if (i-lo)%256 == 0 {
					if ctx.Err() != nil {
						return
					}
					if !deadline.IsZero() && time.Now().After(deadline) {
						return
					}
				}
				for _, p := range s.cfg.Params {
					samples[p.Name] = sample(rng, p)
				}
				outcomes[i] = s.outcome(samples)
				completed[worker] = i - lo + 1
			}
		}(w, lo, hi)
	}
	wg.Wait()

	// Compact to the trials that actually ran.
	ran := make([]float64, 0, total)
	for w := 0; w < workers; w++ {
		lo := w * total / workers
		ran = append(ran, outcomes[lo:lo+completed[w]]...)
	}
	if len(ran) == 0 {
		return SimResult{}, fmt.Errorf("monte carlo: no trials completed")
	}
	if len(ran) < total {
		log.Warn().Int("requested", total).Int("completed", len(ran)).
			Msg("simulation budget exhausted, aggregating partial results")
	}

	return aggregate(ran), nil
}

// sample draws one value for a parameter.
func sample(rng *rand.Rand, p Param) float64 {
	switch p.Dist {
	case DistNormal:
		return boxMuller(rng, p.Mean, p.Std)
	case DistUniform:
		return p.Min + rng.Float64()*(p.Max-p.Min)
	case DistTriangular:
		return triangular(rng, p.Min, p.Mode, p.Max)
	default:
		return p.Mean
	}
}

// boxMuller draws one normal sample via the Box-Muller transform.
func boxMuller(rng *rand.Rand, mean, std float64) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + std*z
}

// triangular draws from a triangular distribution via the piecewise
// inverse CDF.
func triangular(rng *rand.Rand, min, mode, max float64) float64 {
	if max <= min {
		return min
	}
	u := rng.Float64()
	cut := (mode - min) / (max - min)
	if u < cut {
		return min + math.Sqrt(u*(max-min)*(mode-min))
	}
	return max - math.Sqrt((1-u)*(max-min)*(max-mode))
}

// aggregate computes the summary statistics over completed outcomes.
func aggregate(outcomes []float64) SimResult {
	n := len(outcomes)

	var sum, sumSq float64
	negatives := 0
	for _, v := range outcomes {
		sum += v
		sumSq += v * v
		if v < 0 {
			negatives++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	std := 0.0
	if variance > 0 {
		std = math.Sqrt(variance)
	}

	sorted := append([]float64(nil), outcomes...)
	sort.Float64s(sorted)

	pct := func(p float64) float64 {
		idx := int(math.Floor(p * float64(n)))
		if idx >= n {
			idx = n - 1
		}
		return sorted[idx]
	}

	// Expected shortfall: mean of the worst 5% of outcomes.
	worst := n / 20
	if worst < 1 {
		worst = 1
	}
	var shortfall float64
	for _, v := range sorted[:worst] {
		shortfall += v
	}
	shortfall /= float64(worst)

	p5 := pct(0.05)
	return SimResult{
		Trials:            n,
		Mean:              mean,
		Std:               std,
		P5:                p5,
		P25:               pct(0.25),
		P50:               pct(0.50),
		P75:               pct(0.75),
		P95:               pct(0.95),
		ProbNegative:      float64(negatives) / float64(n),
		ValueAtRisk:       p5,
		ExpectedShortfall: shortfall,
	}
}

// PredictionFor wraps a simulation result as a Prediction for the ensemble.
// Confidence shrinks with the coefficient of variation of the outcomes.
func (r SimResult) PredictionFor() Prediction {
	confidence := 0.5
	if r.Mean != 0 {
		confidence = clamp01(1 - r.Std/math.Abs(r.Mean))
	}
	return Prediction{
		Method:        MethodMonteCarlo,
		YieldEstimate: r.Mean,
		Confidence:    confidence,
		Uncertainty:   r.Std,
		Diagnostics: map[string]float64{
			"p5":                 r.P5,
			"p95":                r.P95,
			"prob_negative":      r.ProbNegative,
			"value_at_risk":      r.ValueAtRisk,
			"expected_shortfall": r.ExpectedShortfall,
		},
	}
}
