package models

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// KMeansConfig configures a clusterer. Seed 0 selects a time-based seed.
type KMeansConfig struct {
	K             int     `yaml:"k" json:"k"`
	MaxIterations int     `yaml:"maxIterations" json:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance" json:"tolerance"`
	Seed          int64   `yaml:"seed" json:"seed"`
}

// KMeans clusters observations with Lloyd's algorithm: random centroid
// initialization within each dimension's observed range, then alternating
// assignment and mean recomputation until centroids settle.
type KMeans struct {
	cfg       KMeansConfig
	rng       *rand.Rand
	centroids [][]float64
	fitted    bool
}

// NewKMeans creates a clusterer, applying defaults (100 iterations,
// 1e-6 tolerance).
func NewKMeans(cfg KMeansConfig) (*KMeans, error) {
	if cfg.K < 1 {
		return nil, fmt.Errorf("kmeans: k must be positive, got %d", cfg.K)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-6
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &KMeans{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// SetCentroids seeds the initial centroids explicitly, bypassing random
// initialization on the next Fit. The fit is then deterministic for a given
// dataset.
func (m *KMeans) SetCentroids(centroids [][]float64) {
	m.centroids = make([][]float64, len(centroids))
	for i, c := range centroids {
		m.centroids[i] = append([]float64(nil), c...)
	}
	m.fitted = false
}

// Fit runs Lloyd's algorithm on the points. Iterations stop when the
// maximum centroid displacement drops below the tolerance or the iteration
// cap is reached. Centroids that attract no points keep their position.
func (m *KMeans) Fit(points [][]float64) error {
	if len(points) == 0 {
		return fmt.Errorf("kmeans: no points")
	}
	dims := len(points[0])
	if dims == 0 {
		return fmt.Errorf("kmeans: zero-dimensional points")
	}
	for i, p := range points {
		if len(p) != dims {
			return fmt.Errorf("kmeans: point %d has %d dims, expected %d", i, len(p), dims)
		}
	}

	if len(m.centroids) != m.cfg.K || len(m.centroids[0]) != dims {
		m.centroids = m.initCentroids(points, dims)
	}

	assignments := make([]int, len(points))
	for iter := 0; iter < m.cfg.MaxIterations; iter++ {
		for i, p := range points {
			assignments[i] = m.nearest(p)
		}

		// Recompute means; unassigned centroids stay where they are.
		sums := make([][]float64, m.cfg.K)
		counts := make([]int, m.cfg.K)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}

		maxShift := 0.0
		for c := 0; c < m.cfg.K; c++ {
			if counts[c] == 0 {
				continue
			}
			var shiftSq float64
			for d := 0; d < dims; d++ {
				next := sums[c][d] / float64(counts[c])
				delta := next - m.centroids[c][d]
				shiftSq += delta * delta
				m.centroids[c][d] = next
			}
			if shift := math.Sqrt(shiftSq); shift > maxShift {
				maxShift = shift
			}
		}

		if maxShift < m.cfg.Tolerance {
			log.Debug().Int("iterations", iter+1).Float64("max_shift", maxShift).
				Msg("kmeans converged")
			break
		}
	}

	m.fitted = true
	return nil
}

// Predict assigns a new point to the nearest fitted centroid.
func (m *KMeans) Predict(point []float64) (int, error) {
	if !m.fitted {
		return 0, ErrNotFitted
	}
	if len(point) != len(m.centroids[0]) {
		return 0, fmt.Errorf("kmeans: point has %d dims, expected %d", len(point), len(m.centroids[0]))
	}
	return m.nearest(point), nil
}

// Centroids returns a copy of the fitted centroids.
func (m *KMeans) Centroids() [][]float64 {
	out := make([][]float64, len(m.centroids))
	for i, c := range m.centroids {
		out[i] = append([]float64(nil), c...)
	}
	return out
}

// initCentroids places each centroid uniformly at random inside every
// dimension's observed min/max.
func (m *KMeans) initCentroids(points [][]float64, dims int) [][]float64 {
	mins := make([]float64, dims)
	maxs := make([]float64, dims)
	copy(mins, points[0])
	copy(maxs, points[0])
	for _, p := range points[1:] {
		for d, v := range p {
			if v < mins[d] {
				mins[d] = v
			}
			if v > maxs[d] {
				maxs[d] = v
			}
		}
	}

	centroids := make([][]float64, m.cfg.K)
	for c := range centroids {
		centroids[c] = make([]float64, dims)
		for d := 0; d < dims; d++ {
			centroids[c][d] = mins[d] + m.rng.Float64()*(maxs[d]-mins[d])
		}
	}
	return centroids
}

func (m *KMeans) nearest(point []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range m.centroids {
		var distSq float64
		for d, v := range point {
			delta := v - centroid[d]
			distSq += delta * delta
		}
		if distSq < bestDist {
			bestDist = distSq
			best = c
		}
	}
	return best
}
