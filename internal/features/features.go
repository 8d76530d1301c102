// Package features extracts, engineers, validates, scales, and caches the
// named feature vectors consumed by every yield model. A vector's key set and
// default ordering are fixed for the process lifetime because positional model
// weights depend on them.
package features

import (
	"fmt"
	"math"
	"time"

	"agrocast/internal/agro"
)

// SchemaVersion identifies the feature schema. Bump when keys are added,
// removed, or reordered.
const SchemaVersion = 1

// Feature keys. DefaultKeys fixes the positional ordering used by ToArray.
const (
	KeyRainfall     = "rainfall"
	KeyTemperature  = "temperature"
	KeySoilPH       = "soil_ph"
	KeyGDD          = "gdd"
	KeySoilMoisture = "soil_moisture"
	KeyRainfallSq   = "rainfall_sq"
	KeyRainfallCub  = "rainfall_cub"
	KeyRainTemp     = "rain_temp"
	KeyRainPH       = "rain_ph"
	KeyTempPH       = "temp_ph"
	KeyWaterRatio   = "water_ratio"
	KeyTiming       = "timing"
	KeyPHMatch      = "ph_match"
	KeyClimateMatch = "climate_match"
	KeyDroughtRisk  = "drought_risk"
	KeyPestRisk     = "pest_risk"
)

// DefaultKeys is the canonical feature ordering. Stable across the process
// lifetime; positional weights in fitted models depend on it.
var DefaultKeys = []string{
	KeyRainfall, KeyTemperature, KeySoilPH, KeyGDD, KeySoilMoisture,
	KeyRainfallSq, KeyRainfallCub,
	KeyRainTemp, KeyRainPH, KeyTempPH,
	KeyWaterRatio, KeyTiming, KeyPHMatch, KeyClimateMatch,
	KeyDroughtRisk, KeyPestRisk,
}

// RawInputs are the per-request agronomic observations a vector is derived
// from. Rainfall is the monthly total in mm.
type RawInputs struct {
	Region       string    `json:"region"`
	Crop         string    `json:"crop"`
	SoilType     string    `json:"soil_type"`
	TempMin      float64   `json:"temperature_min"`
	TempMax      float64   `json:"temperature_max"`
	Rainfall     float64   `json:"rainfall"`
	SoilPH       float64   `json:"soil_ph"`
	PlantingDate time.Time `json:"planting_date"`

	// SoilMoisture is optional; when zero it is derived from the water
	// balance of rainfall against estimated evapotranspiration.
	SoilMoisture float64 `json:"soil_moisture,omitempty"`
}

// CacheKey is the composite memoization key: requests that agree on it see
// the identical vector without recomputation.
func (in RawInputs) CacheKey() string {
	return fmt.Sprintf("%s|%s|%s|%.4f|%s",
		in.Region, in.Crop, in.SoilType, in.Rainfall, in.PlantingDate.Format("2006-01-02"))
}

// Warning records a recovered validation problem (clamped or defaulted value).
type Warning struct {
	Key     string  `json:"key"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

// Vector is one engineered feature vector in raw and min-max-scaled form.
type Vector struct {
	Version  int                `json:"version"`
	Raw      map[string]float64 `json:"raw"`
	Scaled   map[string]float64 `json:"scaled"`
	Warnings []Warning          `json:"warnings,omitempty"`
}

// ToArray flattens a feature map into a positionally-stable numeric array.
// When keys is nil the canonical DefaultKeys ordering is used. Missing keys
// contribute zero so the array width always equals the schema width.
func ToArray(values map[string]float64, keys []string) []float64 {
	if keys == nil {
		keys = DefaultKeys
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = values[k]
	}
	return out
}

// engineer derives the full raw feature map from validated inputs.
func engineer(in RawInputs, crop CropProfile, region RegionProfile) map[string]float64 {
	avgTemp := (in.TempMin + in.TempMax) / 2
	gdd := agro.GrowingDegreeDays(in.TempMin, in.TempMax, crop.BaseTemp)

	moisture := in.SoilMoisture
	if moisture == 0 {
		// Derive from the bucket model with the original ET approximation.
		estimatedET := math.Max(0, avgTemp*0.15)
		moisture = agro.ComputeWaterBalance(in.Rainfall, estimatedET, 100).SoilMoisture
	}

	f := map[string]float64{
		KeyRainfall:     in.Rainfall,
		KeyTemperature:  avgTemp,
		KeySoilPH:       in.SoilPH,
		KeyGDD:          gdd,
		KeySoilMoisture: moisture,

		KeyRainfallSq:  in.Rainfall * in.Rainfall,
		KeyRainfallCub: in.Rainfall * in.Rainfall * in.Rainfall,

		KeyRainTemp: in.Rainfall * avgTemp,
		KeyRainPH:   in.Rainfall * in.SoilPH,
		KeyTempPH:   avgTemp * in.SoilPH,

		KeyWaterRatio:   waterRatio(in.Rainfall, crop),
		KeyTiming:       timingScore(in.PlantingDate, crop),
		KeyPHMatch:      phMatch(in.SoilPH, crop),
		KeyClimateMatch: climateMatch(avgTemp, in.Rainfall, crop),

		KeyDroughtRisk: droughtRisk(in.Rainfall),
		KeyPestRisk:    pestRisk(in.PlantingDate, region),
	}
	return f
}

// waterRatio relates observed rainfall to the midpoint of the crop's
// seasonal water requirement, normalized to a monthly share.
func waterRatio(rainfall float64, crop CropProfile) float64 {
	monthly := crop.WaterMidpoint() / 6 // requirement spread over a six-month season
	if monthly == 0 {
		return 0
	}
	return rainfall / monthly
}

// timingScore rates the planting date against the crop's planting window:
// in-window 1.0, one month off 0.7, two months 0.4, otherwise 0.2.
func timingScore(date time.Time, crop CropProfile) float64 {
	if date.IsZero() || len(crop.PlantingMonths) == 0 {
		return 0.5
	}
	month := int(date.Month())

	best := 12
	for _, m := range crop.PlantingMonths {
		d := monthDistance(month, int(m))
		if d < best {
			best = d
		}
	}

	switch best {
	case 0:
		return 1.0
	case 1:
		return 0.7
	case 2:
		return 0.4
	default:
		return 0.2
	}
}

// monthDistance is the circular distance between two months.
func monthDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 6 {
		d = 12 - d
	}
	return d
}

// phMatch scores soil pH compatibility: 1 inside the tolerable range,
// decaying linearly to 0 at two pH units outside it.
func phMatch(ph float64, crop CropProfile) float64 {
	var dist float64
	switch {
	case ph < crop.PHMin:
		dist = crop.PHMin - ph
	case ph > crop.PHMax:
		dist = ph - crop.PHMax
	default:
		return 1.0
	}
	return math.Max(0, 1-dist/2)
}

// climateMatch blends a temperature band score with a rainfall adequacy
// score, weighted toward temperature.
func climateMatch(avgTemp, rainfall float64, crop CropProfile) float64 {
	tempMid := (crop.OptimalTempMin + crop.OptimalTempMax) / 2
	tempScore := math.Max(0, 1-math.Abs(avgTemp-tempMid)/10)

	monthly := crop.WaterMidpoint() / 6
	rainScore := 0.0
	if monthly > 0 {
		rainScore = math.Max(0, 1-math.Abs(rainfall-monthly)/monthly)
	}

	return 0.6*tempScore + 0.4*rainScore
}

// droughtRisk bands monthly rainfall: <30mm high, <50mm elevated, else low.
func droughtRisk(rainfall float64) float64 {
	switch {
	case rainfall < 30:
		return 0.9
	case rainfall < 50:
		return 0.6
	default:
		return 0.2
	}
}

// pestRisk combines the regional risk-factor count with the fixed monthly
// pest pressure curve, capped at 1.
func pestRisk(date time.Time, region RegionProfile) float64 {
	month := time.January
	if !date.IsZero() {
		month = date.Month()
	}
	risk := float64(len(region.RiskFactors))*riskFactorWeight + seasonalPestCurve[month-1]
	return math.Min(1, risk)
}
