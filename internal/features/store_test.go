package features

import (
	"math"
	"sync"
	"testing"
	"time"
)

type MockMetricsTracker struct {
	mu                  sync.Mutex
	FeatureErrorsCalled int
	CacheHitCalled      int
	CacheMissCalled     int
}

func (m *MockMetricsTracker) FeatureErrorsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeatureErrorsCalled++
}

func (m *MockMetricsTracker) FeatureCacheHitInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHitCalled++
}

func (m *MockMetricsTracker) FeatureCacheMissInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMissCalled++
}

func testInputs() RawInputs {
	return RawInputs{
		Region:       "semi_arid",
		Crop:         "maize",
		SoilType:     "loam",
		TempMin:      16,
		TempMax:      28,
		Rainfall:     75,
		SoilPH:       6.5,
		PlantingDate: time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestGetFeatures_SchemaWidth(t *testing.T) {
	store := NewStore(nil)
	v := store.GetFeatures(testInputs())

	if len(v.Raw) != len(DefaultKeys) {
		t.Fatalf("expected %d features, got %d", len(DefaultKeys), len(v.Raw))
	}
	for _, key := range DefaultKeys {
		if _, ok := v.Raw[key]; !ok {
			t.Errorf("missing feature %q", key)
		}
	}
	if v.Version != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, v.Version)
	}
}

func TestGetFeatures_CacheReturnsIdenticalVector(t *testing.T) {
	metrics := &MockMetricsTracker{}
	store := NewStore(metrics)

	first := store.GetFeatures(testInputs())
	second := store.GetFeatures(testInputs())

	if first != second {
		t.Error("expected cache hit to return the identical vector")
	}
	if metrics.CacheHitCalled != 1 || metrics.CacheMissCalled != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", metrics.CacheHitCalled, metrics.CacheMissCalled)
	}
	if store.CacheSize() != 1 {
		t.Errorf("expected cache size 1, got %d", store.CacheSize())
	}
}

func TestGetFeatures_EngineeredValues(t *testing.T) {
	store := NewStore(nil)
	in := testInputs()
	v := store.GetFeatures(in)

	// rainfall² and rainfall³
	if got := v.Raw[KeyRainfallSq]; got != 75.0*75.0 {
		t.Errorf("rainfall_sq: expected %f, got %f", 75.0*75.0, got)
	}
	if got := v.Raw[KeyRainfallCub]; got != 75.0*75.0*75.0 {
		t.Errorf("rainfall_cub: expected %f, got %f", 75.0*75.0*75.0, got)
	}

	// interactions with avg temp 22
	if got := v.Raw[KeyRainTemp]; math.Abs(got-75.0*22.0) > 1e-9 {
		t.Errorf("rain_temp: expected %f, got %f", 75.0*22.0, got)
	}

	// April is inside the maize planting window.
	if got := v.Raw[KeyTiming]; got != 1.0 {
		t.Errorf("timing: expected 1.0 for in-window planting, got %f", got)
	}

	// pH 6.5 is inside the maize tolerable range.
	if got := v.Raw[KeyPHMatch]; got != 1.0 {
		t.Errorf("ph_match: expected 1.0, got %f", got)
	}

	// 75mm monthly is above the 50mm drought band.
	if got := v.Raw[KeyDroughtRisk]; got != 0.2 {
		t.Errorf("drought_risk: expected 0.2, got %f", got)
	}
}

func TestGetFeatures_OutOfRangeClamped(t *testing.T) {
	metrics := &MockMetricsTracker{}
	store := NewStore(metrics)

	in := testInputs()
	in.Rainfall = 9000 // above the 5000mm admissible cap
	v := store.GetFeatures(in)

	if got := v.Raw[KeyRainfall]; got != 5000 {
		t.Errorf("expected rainfall clamped to 5000, got %f", got)
	}
	if len(v.Warnings) == 0 {
		t.Error("expected a recorded warning for the clamped feature")
	}
	if metrics.FeatureErrorsCalled == 0 {
		t.Error("expected feature error to be tracked")
	}
}

func TestApplyCropOverrides(t *testing.T) {
	store := NewStore(nil)

	// Known crop: only the overridden fields change.
	store.ApplyCropOverrides("maize", 550, 900, 12)
	p := store.cropProfile("maize")
	if p.WaterMinMM != 550 || p.WaterMaxMM != 900 || p.BaseTemp != 12 {
		t.Errorf("override not applied: %+v", p)
	}
	if p.PHMin != 5.5 || p.PHMax != 7.5 {
		t.Errorf("unrelated fields must survive the override: %+v", p)
	}

	// Unknown crop: override lands on top of the generic fallback.
	store.ApplyCropOverrides("teff", 300, 550, 8)
	p = store.cropProfile("teff")
	if p.Name != "teff" || p.WaterMinMM != 300 || p.BaseTemp != 8 {
		t.Errorf("fallback-based override not applied: %+v", p)
	}
	if len(p.PlantingMonths) == 0 {
		t.Error("expected planting window inherited from the generic profile")
	}
}

func TestDroughtRiskBands(t *testing.T) {
	testCases := []struct {
		rainfall float64
		expected float64
	}{
		{10, 0.9},
		{29.9, 0.9},
		{30, 0.6},
		{49.9, 0.6},
		{50, 0.2},
		{200, 0.2},
	}
	for _, tc := range testCases {
		if got := droughtRisk(tc.rainfall); got != tc.expected {
			t.Errorf("droughtRisk(%f): expected %f, got %f", tc.rainfall, tc.expected, got)
		}
	}
}

func TestTimingScoreBands(t *testing.T) {
	crop := defaultCropProfiles()["maize"] // window Mar-May

	testCases := []struct {
		month    time.Month
		expected float64
	}{
		{time.April, 1.0},
		{time.June, 0.7},
		{time.July, 0.4},
		{time.November, 0.2},
	}
	for _, tc := range testCases {
		date := time.Date(2025, tc.month, 15, 0, 0, 0, 0, time.UTC)
		if got := timingScore(date, crop); got != tc.expected {
			t.Errorf("timingScore(%s): expected %f, got %f", tc.month, tc.expected, got)
		}
	}
}

func TestToArray_StableOrdering(t *testing.T) {
	store := NewStore(nil)
	v := store.GetFeatures(testInputs())

	first := ToArray(v.Raw, nil)
	second := ToArray(v.Raw, nil)

	if len(first) != len(DefaultKeys) {
		t.Fatalf("expected array length %d, got %d", len(DefaultKeys), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("ordering not stable at index %d", i)
		}
	}

	// Missing keys contribute zero, preserving width.
	partial := ToArray(map[string]float64{KeyRainfall: 75}, nil)
	if len(partial) != len(DefaultKeys) {
		t.Fatalf("expected fixed width %d, got %d", len(DefaultKeys), len(partial))
	}
	if partial[0] != 75 || partial[1] != 0 {
		t.Errorf("unexpected positional values: %v", partial[:2])
	}
}

func TestMinMaxScaler_Incremental(t *testing.T) {
	s := NewMinMaxScaler()

	s.Observe(map[string]float64{"x": 10})
	s.Observe(map[string]float64{"x": 20})
	s.Observe(map[string]float64{"x": 30})

	scaled := s.Scale(map[string]float64{"x": 20})
	if math.Abs(scaled["x"]-0.5) > 1e-10 {
		t.Errorf("expected 0.5, got %f", scaled["x"])
	}

	count, mean, std, min, max, ok := s.Stats("x")
	if !ok {
		t.Fatal("expected stats for observed feature")
	}
	if count != 3 || mean != 20 || min != 10 || max != 30 {
		t.Errorf("unexpected stats: count=%d mean=%f min=%f max=%f", count, mean, min, max)
	}
	expectedStd := math.Sqrt(200.0 / 3.0)
	if math.Abs(std-expectedStd) > 1e-9 {
		t.Errorf("expected std %f, got %f", expectedStd, std)
	}
}

func TestMinMaxScaler_DegenerateRange(t *testing.T) {
	s := NewMinMaxScaler()
	s.Observe(map[string]float64{"x": 5})

	scaled := s.Scale(map[string]float64{"x": 5, "never_seen": 3})
	if scaled["x"] != 0 || scaled["never_seen"] != 0 {
		t.Errorf("expected degenerate features to scale to 0, got %v", scaled)
	}
}

func TestGetFeatures_ConcurrentSameKey(t *testing.T) {
	store := NewStore(nil)
	in := testInputs()

	var wg sync.WaitGroup
	vectors := make([]*Vector, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vectors[i] = store.GetFeatures(in)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(vectors); i++ {
		if vectors[i] != vectors[0] {
			t.Fatal("concurrent callers must share one cached vector")
		}
	}
}
