package models

import (
	"fmt"
	"math"
	"sync"
)

// defaultLikelihoodWeight is how strongly observed feature scores shift the
// prior in the point-estimate mode.
const defaultLikelihoodWeight = 0.6

// Distribution is a discretized probability distribution over support values.
type Distribution struct {
	Values []float64 `json:"values"`
	Probs  []float64 `json:"probs"`
}

// Mean returns the expectation of the distribution.
func (d Distribution) Mean() float64 {
	var mean float64
	for i, v := range d.Values {
		mean += v * d.Probs[i]
	}
	return mean
}

// Std returns the standard deviation of the distribution.
func (d Distribution) Std() float64 {
	mean := d.Mean()
	var variance float64
	for i, v := range d.Values {
		variance += d.Probs[i] * (v - mean) * (v - mean)
	}
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// Estimate is a Bayesian point estimate with a 95% credible interval.
type Estimate struct {
	Mean         float64 `json:"mean"`
	Uncertainty  float64 `json:"uncertainty"`
	CredibleLow  float64 `json:"credible_low"`
	CredibleHigh float64 `json:"credible_high"`
}

// BayesianUpdater holds named discretized prior distributions and applies
// likelihood updates to them.
type BayesianUpdater struct {
	mu               sync.RWMutex
	priors           map[string]Distribution
	likelihoodWeight float64
}

// NewBayesianUpdater creates an updater with the default likelihood weight.
func NewBayesianUpdater() *BayesianUpdater {
	return &BayesianUpdater{
		priors:           make(map[string]Distribution),
		likelihoodWeight: defaultLikelihoodWeight,
	}
}

// SetLikelihoodWeight overrides the fixed likelihood weight, clamped to [0,1].
func (b *BayesianUpdater) SetLikelihoodWeight(w float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.likelihoodWeight = math.Min(1, math.Max(0, w))
}

// SetPrior registers a named prior, renormalizing its probabilities.
func (b *BayesianUpdater) SetPrior(name string, d Distribution) error {
	if len(d.Values) == 0 || len(d.Values) != len(d.Probs) {
		return fmt.Errorf("prior %q: %d values vs %d probs", name, len(d.Values), len(d.Probs))
	}
	var total float64
	for _, p := range d.Probs {
		if p < 0 {
			return fmt.Errorf("prior %q: negative probability", name)
		}
		total += p
	}
	if total == 0 {
		return fmt.Errorf("prior %q: zero total probability", name)
	}

	normalized := Distribution{
		Values: append([]float64(nil), d.Values...),
		Probs:  make([]float64, len(d.Probs)),
	}
	for i, p := range d.Probs {
		normalized.Probs[i] = p / total
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.priors[name] = normalized
	return nil
}

// Prior returns a named prior and whether it exists.
func (b *BayesianUpdater) Prior(name string) (Distribution, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.priors[name]
	return d, ok
}

// Posterior computes posterior ∝ likelihood×prior over the named prior's
// support and stores it back as the new prior. The likelihood must align
// with the prior's support.
func (b *BayesianUpdater) Posterior(name string, likelihood []float64) (Distribution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prior, ok := b.priors[name]
	if !ok {
		return Distribution{}, fmt.Errorf("posterior: unknown prior %q", name)
	}
	if len(likelihood) != len(prior.Probs) {
		return Distribution{}, fmt.Errorf("posterior %q: likelihood length %d vs support %d",
			name, len(likelihood), len(prior.Probs))
	}

	posterior := Distribution{
		Values: append([]float64(nil), prior.Values...),
		Probs:  make([]float64, len(prior.Probs)),
	}
	var total float64
	for i, p := range prior.Probs {
		posterior.Probs[i] = likelihood[i] * p
		total += posterior.Probs[i]
	}
	if total == 0 {
		return Distribution{}, fmt.Errorf("posterior %q: likelihood annihilates prior", name)
	}
	for i := range posterior.Probs {
		posterior.Probs[i] /= total
	}

	b.priors[name] = posterior
	return posterior, nil
}

// Estimate is the simplified point-estimate mode: the prior mean is shifted
// by the average feature-score deviation from the neutral 0.5, weighted by
// the fixed likelihood weight. Uncertainty is priorStd×(1−likelihoodWeight)
// and the credible interval is ±1.96×uncertainty.
func (b *BayesianUpdater) Estimate(priorMean, priorStd float64, featureScores map[string]float64) Estimate {
	b.mu.RLock()
	weight := b.likelihoodWeight
	b.mu.RUnlock()

	var deviation float64
	if len(featureScores) > 0 {
		for _, score := range featureScores {
			deviation += score - 0.5
		}
		deviation /= float64(len(featureScores))
	}

	mean := priorMean * (1 + weight*deviation)
	uncertainty := priorStd * (1 - weight)

	return Estimate{
		Mean:         mean,
		Uncertainty:  uncertainty,
		CredibleLow:  mean - 1.96*uncertainty,
		CredibleHigh: mean + 1.96*uncertainty,
	}
}

// PredictionFor wraps a point estimate as a Prediction for the ensemble.
// Confidence shrinks as the credible interval widens relative to the mean.
func (b *BayesianUpdater) PredictionFor(priorMean, priorStd float64, featureScores map[string]float64) Prediction {
	est := b.Estimate(priorMean, priorStd, featureScores)

	confidence := 0.5
	if est.Mean != 0 {
		confidence = math.Max(0, math.Min(1, 1-est.Uncertainty/math.Abs(est.Mean)))
	}

	return Prediction{
		Method:        MethodBayesian,
		YieldEstimate: est.Mean,
		Confidence:    confidence,
		Uncertainty:   est.Uncertainty,
		Diagnostics: map[string]float64{
			"credible_low":  est.CredibleLow,
			"credible_high": est.CredibleHigh,
		},
	}
}
