package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"agrocast/internal/storage"
)

func main() {
	var (
		dataPath  = flag.String("data", "data", "Data directory path")
		region    = flag.String("region", "semi_arid", "Region to generate data for")
		crop      = flag.String("crop", "maize", "Crop to generate data for")
		years     = flag.Int("years", 5, "Number of years of monthly observations")
		baseYield = flag.Float64("base-yield", 4.0, "Baseline yield in t/ha")
		seed      = flag.Int64("seed", 0, "RNG seed (0 uses current time)")
	)
	flag.Parse()

	fmt.Printf("Generating sample yield data for %s/%s...\n", *region, *crop)
	fmt.Printf("  Years: %d\n", *years)
	fmt.Printf("  Base Yield: %.2f t/ha\n", *baseYield)
	fmt.Printf("  Data Path: %s\n", *dataPath)

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	count, err := generateYieldData(store, *region, *crop, *baseYield, *years, *seed)
	if err != nil {
		log.Fatalf("Failed to generate data: %v", err)
	}

	fmt.Printf("Generated %d yield observations for %s/%s\n", count, *region, *crop)
}

// generateYieldData writes one synthetic observation per month: weather
// follows a seasonal sinusoid with noise, and yield responds to rainfall,
// temperature, and soil pH around the baseline.
func generateYieldData(store *storage.Store, region, crop string, baseYield float64, years int, seed int64) (int, error) {
	rng := rand.New(rand.NewSource(seed))

	start := time.Date(time.Now().Year()-years, time.January, 1, 0, 0, 0, 0, time.UTC)
	count := 0

	for m := 0; m < years*12; m++ {
		season := start.AddDate(0, m, 0)
		phase := 2 * math.Pi * float64(season.Month()-1) / 12

		// Wet season peaks mid-year; temperature follows with a lag.
		rainfall := 60 + 45*math.Sin(phase) + rng.NormFloat64()*12
		if rainfall < 0 {
			rainfall = 0
		}
		temperature := 22 + 5*math.Sin(phase-math.Pi/6) + rng.NormFloat64()*1.5
		soilPH := 6.3 + rng.NormFloat64()*0.25

		rainEffect := 0.008 * (rainfall - 60)
		tempEffect := -0.04 * math.Abs(temperature-23)
		phEffect := -0.3 * math.Abs(soilPH-6.5)
		yield := baseYield + rainEffect + tempEffect + phEffect + rng.NormFloat64()*0.2
		if yield < 0.1 {
			yield = 0.1
		}

		record := storage.YieldRecord{
			Region:     region,
			Crop:       crop,
			Season:     season,
			YieldTPH:   yield,
			RainfallMM: rainfall,
			AvgTempC:   temperature,
			SoilPH:     soilPH,
		}
		if err := store.StoreYield(record); err != nil {
			return count, fmt.Errorf("failed to store yield record: %w", err)
		}
		count++
	}

	return count, nil
}
