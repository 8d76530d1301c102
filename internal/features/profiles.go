package features

import "time"

// CropProfile describes the agronomic envelope of a crop: seasonal water
// requirement, tolerable soil pH range, optimal temperature band, GDD base
// temperature, and the months of its planting window.
type CropProfile struct {
	Name           string       `yaml:"name"`
	WaterMinMM     float64      `yaml:"waterMinMM"`
	WaterMaxMM     float64      `yaml:"waterMaxMM"`
	PHMin          float64      `yaml:"phMin"`
	PHMax          float64      `yaml:"phMax"`
	OptimalTempMin float64      `yaml:"optimalTempMin"`
	OptimalTempMax float64      `yaml:"optimalTempMax"`
	BaseTemp       float64      `yaml:"baseTemp"`
	PlantingMonths []time.Month `yaml:"plantingMonths"`
}

// RegionProfile carries the regional risk factors that feed the pest/disease
// risk index.
type RegionProfile struct {
	Name        string   `yaml:"name"`
	RiskFactors []string `yaml:"riskFactors"`
}

// seasonalPestCurve is the fixed monthly pest pressure baseline, indexed by
// time.Month-1. Pressure peaks in the warm wet months.
var seasonalPestCurve = [12]float64{
	0.10, 0.10, 0.15, 0.25, 0.35, 0.45,
	0.50, 0.45, 0.35, 0.25, 0.15, 0.10,
}

// riskFactorWeight is the pest-risk contribution of each regional risk factor.
const riskFactorWeight = 0.15

// WaterMidpoint returns the midpoint of the crop's seasonal water requirement.
func (c CropProfile) WaterMidpoint() float64 {
	return (c.WaterMinMM + c.WaterMaxMM) / 2
}

func defaultCropProfiles() map[string]CropProfile {
	profiles := map[string]CropProfile{
		"maize": {
			WaterMinMM: 500, WaterMaxMM: 800,
			PHMin: 5.5, PHMax: 7.5,
			OptimalTempMin: 18, OptimalTempMax: 27,
			BaseTemp:       10,
			PlantingMonths: []time.Month{time.March, time.April, time.May},
		},
		"wheat": {
			WaterMinMM: 450, WaterMaxMM: 650,
			PHMin: 6.0, PHMax: 7.5,
			OptimalTempMin: 12, OptimalTempMax: 25,
			BaseTemp:       4,
			PlantingMonths: []time.Month{time.October, time.November},
		},
		"rice": {
			WaterMinMM: 900, WaterMaxMM: 2500,
			PHMin: 5.0, PHMax: 6.5,
			OptimalTempMin: 20, OptimalTempMax: 35,
			BaseTemp:       12,
			PlantingMonths: []time.Month{time.May, time.June, time.July},
		},
		"soybean": {
			WaterMinMM: 450, WaterMaxMM: 700,
			PHMin: 6.0, PHMax: 7.0,
			OptimalTempMin: 20, OptimalTempMax: 30,
			BaseTemp:       10,
			PlantingMonths: []time.Month{time.April, time.May, time.June},
		},
		"sorghum": {
			WaterMinMM: 400, WaterMaxMM: 600,
			PHMin: 5.5, PHMax: 8.0,
			OptimalTempMin: 21, OptimalTempMax: 35,
			BaseTemp:       10,
			PlantingMonths: []time.Month{time.May, time.June},
		},
	}
	for name, p := range profiles {
		p.Name = name
		profiles[name] = p
	}
	return profiles
}

// fallbackProfile is used for crops without a configured profile so a request
// never aborts on an unknown crop.
var fallbackProfile = CropProfile{
	Name:       "generic",
	WaterMinMM: 450, WaterMaxMM: 750,
	PHMin: 5.5, PHMax: 7.5,
	OptimalTempMin: 15, OptimalTempMax: 30,
	BaseTemp:       10,
	PlantingMonths: []time.Month{time.April, time.May},
}

func defaultRegionProfiles() map[string]RegionProfile {
	return map[string]RegionProfile{
		"semi_arid":   {Name: "semi_arid", RiskFactors: []string{"drought", "locust"}},
		"tropical":    {Name: "tropical", RiskFactors: []string{"fungal_blight", "stem_borer", "armyworm"}},
		"temperate":   {Name: "temperate", RiskFactors: []string{"rust"}},
		"highland":    {Name: "highland", RiskFactors: []string{"frost", "rust"}},
		"river_basin": {Name: "river_basin", RiskFactors: []string{"flooding", "blast"}},
	}
}
