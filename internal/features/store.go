package features

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// MetricsTracker is the slice of metrics the feature store needs. A nil
// tracker disables instrumentation.
type MetricsTracker interface {
	FeatureErrorsInc()
	FeatureCacheHitInc()
	FeatureCacheMissInc()
}

// Store produces deterministic feature vectors and memoizes them by the
// composite request key so repeated calls within one request see the
// identical vector across all models.
type Store struct {
	mu      sync.RWMutex
	cache   map[string]*Vector
	scaler  *MinMaxScaler
	crops   map[string]CropProfile
	regions map[string]RegionProfile
	metrics MetricsTracker
}

// NewStore creates a feature store with the default crop and region profiles.
func NewStore(metrics MetricsTracker) *Store {
	return &Store{
		cache:   make(map[string]*Vector),
		scaler:  NewMinMaxScaler(),
		crops:   defaultCropProfiles(),
		regions: defaultRegionProfiles(),
		metrics: metrics,
	}
}

// SetCropProfile registers or overrides a crop profile.
func (s *Store) SetCropProfile(name string, p CropProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Name = name
	s.crops[name] = p
}

// ApplyCropOverrides replaces the water bounds and GDD base temperature of a
// crop profile, starting from the existing profile or the generic fallback
// when the crop is unknown.
func (s *Store) ApplyCropOverrides(name string, waterMinMM, waterMaxMM, baseTemp float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.crops[name]
	if !ok {
		p = fallbackProfile
	}
	p.Name = name
	p.WaterMinMM = waterMinMM
	p.WaterMaxMM = waterMaxMM
	p.BaseTemp = baseTemp
	s.crops[name] = p
}

// SetRegionProfile registers or overrides a region profile.
func (s *Store) SetRegionProfile(name string, p RegionProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Name = name
	s.regions[name] = p
}

// GetFeatures extracts, engineers, validates, and scales the feature vector
// for the given inputs. Results are memoized by RawInputs.CacheKey; callers
// must treat the returned vector as read-only.
func (s *Store) GetFeatures(in RawInputs) *Vector {
	key := in.CacheKey()

	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		if s.metrics != nil {
			s.metrics.FeatureCacheHitInc()
		}
		return v
	}
	s.mu.RUnlock()

	if s.metrics != nil {
		s.metrics.FeatureCacheMissInc()
	}

	crop := s.cropProfile(in.Crop)
	region := s.regionProfile(in.Region)

	raw := engineer(in, crop, region)
	warnings := validateAndClamp(raw, s.metrics)

	s.scaler.Observe(raw)

	v := &Vector{
		Version:  SchemaVersion,
		Raw:      raw,
		Scaled:   s.scaler.Scale(raw),
		Warnings: warnings,
	}

	s.mu.Lock()
	// Another goroutine may have computed the same key in the meantime;
	// keep the first so all callers share one vector.
	if existing, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return existing
	}
	s.cache[key] = v
	s.mu.Unlock()

	log.Debug().
		Str("cache_key", key).
		Int("warnings", len(warnings)).
		Msg("feature vector computed")

	return v
}

// Scaler exposes the store's incremental scaler for scale-sensitive callers.
func (s *Store) Scaler() *MinMaxScaler {
	return s.scaler
}

// CacheSize returns the number of memoized vectors.
func (s *Store) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// ResetCache drops all memoized vectors. Running scaler statistics are kept.
func (s *Store) ResetCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Vector)
}

func (s *Store) cropProfile(name string) CropProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.crops[name]; ok {
		return p
	}
	log.Warn().Str("crop", name).Msg("unknown crop, using generic profile")
	return fallbackProfile
}

func (s *Store) regionProfile(name string) RegionProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.regions[name]; ok {
		return p
	}
	return RegionProfile{Name: name}
}
