// Package agro provides deterministic agronomic computations used to derive
// model inputs: growing degree days, reference evapotranspiration, soil water
// balance, and climate risk projections.
package agro

import "math"

// GrowingDegreeDays calculates GDD for one day using the standard
// average-temperature formula, floored at zero.
func GrowingDegreeDays(tempMin, tempMax, baseTemp float64) float64 {
	avg := (tempMin + tempMax) / 2
	return math.Max(0, avg-baseTemp)
}

// DailyTemp is one day's minimum and maximum temperature in °C.
type DailyTemp struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AccumulatedGDD sums GrowingDegreeDays over a season of daily readings.
func AccumulatedGDD(days []DailyTemp, baseTemp float64) float64 {
	var total float64
	for _, d := range days {
		total += GrowingDegreeDays(d.Min, d.Max, baseTemp)
	}
	return total
}

// PenmanET estimates reference evapotranspiration (mm/day) with a simplified
// Penman-Monteith equation. Wind speed is measured at 10m and converted to
// the standard 2m height.
func PenmanET(temp, humidity, windSpeed, radiation float64) float64 {
	// Slope of the saturation vapor pressure curve at temp.
	delta := 4098 * (0.6108 * math.Exp(17.27*temp/(temp+237.3))) / math.Pow(temp+237.3, 2)

	const gamma = 0.665 // psychrometric constant

	u2 := windSpeed * 4.87 / math.Log(67.8*10-5.42)

	et0 := (0.408*delta*radiation + gamma*900/(temp+273)*u2*(0.01*humidity)) /
		(delta + gamma*(1+0.34*u2))

	return math.Max(0, et0)
}

// WaterBalance summarizes a simple bucket-model soil water balance.
type WaterBalance struct {
	SoilMoisture float64 `json:"soil_moisture"`
	WaterStress  float64 `json:"water_stress"`
	Deficit      float64 `json:"deficit"`
	Surplus      float64 `json:"surplus"`
}

// ComputeWaterBalance calculates the soil water balance for one period.
// Water stress is the unmet share of evapotranspiration demand, zero when
// there is no demand.
func ComputeWaterBalance(rainfall, evapotranspiration, soilCapacity float64) WaterBalance {
	available := rainfall - evapotranspiration
	moisture := math.Min(soilCapacity, math.Max(0, available))

	stress := 0.0
	if evapotranspiration > 0 {
		stress = math.Max(0, evapotranspiration-rainfall) / evapotranspiration
	}

	return WaterBalance{
		SoilMoisture: moisture,
		WaterStress:  stress,
		Deficit:      math.Max(0, evapotranspiration-rainfall),
		Surplus:      math.Max(0, rainfall-evapotranspiration-soilCapacity),
	}
}

// ClimateStats describes one climate scenario over a historical window.
type ClimateStats struct {
	MeanTemp        float64 `json:"mean_temp"`
	TempStd         float64 `json:"temp_std"`
	MeanRainfall    float64 `json:"mean_rainfall"`
	RainfallStd     float64 `json:"rainfall_std"`
	ExtremeHeatDays int     `json:"extreme_heat_days"`
	DroughtRisk     float64 `json:"drought_risk"`
}

// ClimateRisk compares current climate statistics with a projection under a
// climate change factor.
type ClimateRisk struct {
	Current             ClimateStats `json:"current"`
	Projected           ClimateStats `json:"projected"`
	HeatStressIncrease  float64      `json:"heat_stress_increase"`
	DroughtRiskIncrease float64      `json:"drought_risk_increase"`
	TemperatureIncrease float64      `json:"temperature_increase"`
	RainfallChange      float64      `json:"rainfall_change"`
}

const (
	extremeHeatThreshold = 35.0 // °C
	droughtRainThreshold = 50.0 // mm per observation
)

// AssessClimateRisk projects historical temperature and rainfall series under
// a climate change factor (temperatures scale up by factor, rainfall scales by
// 2−factor) and reports the risk deltas. Empty inputs yield a zero assessment.
func AssessClimateRisk(temps, rainfall []float64, factor float64) ClimateRisk {
	if len(temps) == 0 || len(rainfall) == 0 {
		return ClimateRisk{}
	}

	current := climateStats(temps, rainfall)

	futureTemps := make([]float64, len(temps))
	for i, t := range temps {
		futureTemps[i] = t * factor
	}
	futureRain := make([]float64, len(rainfall))
	for i, r := range rainfall {
		futureRain[i] = r * (2 - factor)
	}
	projected := climateStats(futureTemps, futureRain)

	heatIncrease := float64(projected.ExtremeHeatDays-current.ExtremeHeatDays) /
		math.Max(1, float64(current.ExtremeHeatDays))

	return ClimateRisk{
		Current:             current,
		Projected:           projected,
		HeatStressIncrease:  heatIncrease,
		DroughtRiskIncrease: projected.DroughtRisk - current.DroughtRisk,
		TemperatureIncrease: projected.MeanTemp - current.MeanTemp,
		RainfallChange:      projected.MeanRainfall - current.MeanRainfall,
	}
}

func climateStats(temps, rainfall []float64) ClimateStats {
	meanT, stdT := meanStd(temps)
	meanR, stdR := meanStd(rainfall)

	heatDays := 0
	for _, t := range temps {
		if t > extremeHeatThreshold {
			heatDays++
		}
	}

	droughtObs := 0
	for _, r := range rainfall {
		if r < droughtRainThreshold {
			droughtObs++
		}
	}

	return ClimateStats{
		MeanTemp:        meanT,
		TempStd:         stdT,
		MeanRainfall:    meanR,
		RainfallStd:     stdR,
		ExtremeHeatDays: heatDays,
		DroughtRisk:     float64(droughtObs) / float64(len(rainfall)),
	}
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	n := float64(len(values))
	mean = sum / n
	variance := sumSq/n - mean*mean
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return mean, std
}
