package features

import (
	"math"

	"github.com/rs/zerolog/log"
)

// featureRange is the admissible interval for one feature.
type featureRange struct {
	min, max float64
}

// admissibleRanges bounds every schema key. Values outside are clamped with a
// recorded warning; missing required features default to 0 with a warning so
// the vector keeps its fixed width.
var admissibleRanges = map[string]featureRange{
	KeyRainfall:     {0, 5000},
	KeyTemperature:  {-50, 60},
	KeySoilPH:       {3, 11},
	KeyGDD:          {0, 60},
	KeySoilMoisture: {0, 100},
	KeyRainfallSq:   {0, 25e6},
	KeyRainfallCub:  {0, 1.25e11},
	KeyRainTemp:     {-250e3, 300e3},
	KeyRainPH:       {0, 55e3},
	KeyTempPH:       {-550, 660},
	KeyWaterRatio:   {0, 20},
	KeyTiming:       {0, 1},
	KeyPHMatch:      {0, 1},
	KeyClimateMatch: {0, 1},
	KeyDroughtRisk:  {0, 1},
	KeyPestRisk:     {0, 1},
}

// requiredKeys must be present and finite in every engineered vector.
var requiredKeys = []string{KeyRainfall, KeyTemperature, KeySoilPH}

// validateAndClamp enforces admissible ranges in place and returns the
// warnings it recorded. Non-finite values are treated as missing.
func validateAndClamp(values map[string]float64, metrics MetricsTracker) []Warning {
	var warnings []Warning

	for _, key := range DefaultKeys {
		v, ok := values[key]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			if required(key) || !ok {
				values[key] = 0
				warnings = append(warnings, Warning{
					Key:     key,
					Value:   0,
					Message: "missing or non-finite feature, defaulted to 0",
				})
				if metrics != nil {
					metrics.FeatureErrorsInc()
				}
				log.Warn().Str("feature", key).Msg("missing feature defaulted to 0")
			}
			continue
		}

		r, hasRange := admissibleRanges[key]
		if !hasRange {
			continue
		}
		if v < r.min || v > r.max {
			clamped := math.Min(r.max, math.Max(r.min, v))
			values[key] = clamped
			warnings = append(warnings, Warning{
				Key:     key,
				Value:   v,
				Message: "out of admissible range, clamped",
			})
			if metrics != nil {
				metrics.FeatureErrorsInc()
			}
			log.Warn().
				Str("feature", key).
				Float64("value", v).
				Float64("clamped", clamped).
				Msg("feature out of range, clamped")
		}
	}

	return warnings
}

func required(key string) bool {
	for _, k := range requiredKeys {
		if k == key {
			return true
		}
	}
	return false
}
