package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"agrocast/internal/models"
	"agrocast/internal/storage"
	"agrocast/internal/validate"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		dataPath   = flag.String("data", "data", "Path to data directory or CSV file")
		region     = flag.String("region", "", "Region to validate")
		crop       = flag.String("crop", "", "Crop to validate")
		folds      = flag.Int("folds", 5, "Cross-validation folds")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		startDate  = flag.String("start", "", "Start date (YYYY-MM-DD)")
		endDate    = flag.String("end", "", "End date (YYYY-MM-DD)")
		dataFormat = flag.String("format", "auto", "Data format: auto, csv, json, boltdb")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *region == "" || *crop == "" {
		log.Fatal().Msg("both -region and -crop are required")
	}

	// Parse dates
	startTime, endTime, err := parseRange(*startDate, *endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid date range")
	}

	fmt.Println("=== Validation Configuration ===")
	fmt.Printf("Data Path: %s\n", *dataPath)
	fmt.Printf("Region: %s  Crop: %s\n", *region, *crop)
	fmt.Printf("Folds: %d\n", *folds)
	fmt.Printf("Range: %s .. %s\n", startTime.Format("2006-01-02"), endTime.Format("2006-01-02"))
	fmt.Println("================================")

	records, err := loadRecords(*dataFormat, *dataPath, *region, *crop, startTime, endTime)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load yield records")
	}
	if len(records) < *folds {
		log.Fatal().Int("records", len(records)).Int("folds", *folds).Msg("not enough records for cross-validation")
	}

	x, y := designMatrix(records)

	// Fit the regression on the full set, then validate it.
	regression := models.NewLinearRegression()
	if err := regression.Fit(x, y); err != nil {
		log.Fatal().Err(err).Msg("regression fit failed")
	}

	predicted := make([]float64, len(x))
	for i := range x {
		p, err := regression.PredictVector(x[i])
		if err != nil {
			log.Fatal().Err(err).Msg("prediction failed")
		}
		predicted[i] = p
	}

	validator := validate.New(len(x[0]))
	record, err := validator.ValidateModel(models.MethodRegression, predicted, y)
	if err != nil {
		log.Fatal().Err(err).Msg("validation failed")
	}

	cv, err := validator.CrossValidate(regression, x, y, *folds)
	if err != nil {
		log.Warn().Err(err).Msg("cross-validation skipped")
	} else {
		record.CrossValidation = &cv
	}

	printRecord(record)
	printComparison(validator, record, y)
}

// printComparison ranks the fitted regression against a mean-yield baseline.
func printComparison(validator *validate.Validator, fitted validate.Record, y []float64) {
	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(len(y))
	baseline := make([]float64, len(y))
	for i := range baseline {
		baseline[i] = mean
	}

	baselineRecord, err := validator.ValidateModel("mean_baseline", baseline, y)
	if err != nil {
		log.Warn().Err(err).Msg("baseline validation skipped")
		return
	}

	fmt.Println("=== Model Comparison (by R²) ===")
	for i, r := range validate.CompareModels([]validate.Record{fitted, baselineRecord}) {
		fmt.Printf("%d. %-16s R² %.4f  RMSE %.4f  [%s]\n", i+1, r.ModelName, r.Metrics.R2, r.Metrics.RMSE, r.Status)
	}
}

// parseRange parses the optional date flags, defaulting to the last five
// years up to now.
func parseRange(start, end string) (time.Time, time.Time, error) {
	startTime := time.Now().AddDate(-5, 0, 0)
	endTime := time.Now()

	var err error
	if start != "" {
		startTime, err = time.Parse("2006-01-02", start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start date: %w", err)
		}
	}
	if end != "" {
		endTime, err = time.Parse("2006-01-02", end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end date: %w", err)
		}
	}
	return startTime, endTime, nil
}

// loadRecords loads yield observations from BoltDB or CSV, auto-detecting by
// path when asked.
func loadRecords(format, path, region, crop string, start, end time.Time) ([]storage.YieldRecord, error) {
	switch format {
	case "csv":
		return loadFromCSV(path, region, crop)
	case "json":
		return loadFromJSON(path, region, crop)
	case "boltdb":
		return loadFromBoltDB(path, region, crop, start, end)
	case "auto":
		switch {
		case strings.HasSuffix(path, ".csv"):
			return loadFromCSV(path, region, crop)
		case strings.HasSuffix(path, ".json"):
			return loadFromJSON(path, region, crop)
		default:
			return loadFromBoltDB(path, region, crop, start, end)
		}
	default:
		return nil, fmt.Errorf("unknown data format: %s", format)
	}
}

// loadFromJSON reads an array of yield records, keeping only the requested
// region and crop.
func loadFromJSON(path, region, crop string) ([]storage.YieldRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	var all []storage.YieldRecord
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	var records []storage.YieldRecord
	for _, r := range all {
		if r.Region == region && r.Crop == crop {
			records = append(records, r)
		}
	}
	return records, nil
}

func loadFromBoltDB(path, region, crop string, start, end time.Time) ([]storage.YieldRecord, error) {
	store, err := storage.New(path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()
	return store.GetYields(region, crop, start, end)
}

// loadFromCSV reads records from a CSV with columns
// season,region,crop,yield_tph,rainfall_mm,avg_temp_c,soil_ph. Rows for other
// regions or crops are skipped.
func loadFromCSV(path, region, crop string) ([]storage.YieldRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	var records []storage.YieldRecord
	for i, row := range rows {
		if i == 0 && strings.EqualFold(row[0], "season") {
			continue // header
		}
		if len(row) < 7 {
			log.Warn().Int("row", i).Msg("skipping short row")
			continue
		}
		if row[1] != region || row[2] != crop {
			continue
		}
		season, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			log.Warn().Int("row", i).Err(err).Msg("skipping row with bad season")
			continue
		}
		values := make([]float64, 4)
		ok := true
		for j := 0; j < 4; j++ {
			values[j], err = strconv.ParseFloat(strings.TrimSpace(row[3+j]), 64)
			if err != nil {
				log.Warn().Int("row", i).Err(err).Msg("skipping row with bad value")
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		records = append(records, storage.YieldRecord{
			Region:     region,
			Crop:       crop,
			Season:     season,
			YieldTPH:   values[0],
			RainfallMM: values[1],
			AvgTempC:   values[2],
			SoilPH:     values[3],
		})
	}
	return records, nil
}

// designMatrix maps yield records onto the regression inputs and targets.
func designMatrix(records []storage.YieldRecord) ([][]float64, []float64) {
	x := make([][]float64, len(records))
	y := make([]float64, len(records))
	for i, r := range records {
		x[i] = []float64{r.RainfallMM, r.AvgTempC, r.SoilPH}
		y[i] = r.YieldTPH
	}
	return x, y
}

func printRecord(r validate.Record) {
	fmt.Println("=== Validation Results ===")
	fmt.Printf("Model:   %s\n", r.ModelName)
	fmt.Printf("Status:  %s\n", r.Status)
	fmt.Printf("R²:      %.4f (adjusted %.4f)\n", r.Metrics.R2, r.Metrics.AdjustedR2)
	fmt.Printf("RMSE:    %.4f\n", r.Metrics.RMSE)
	fmt.Printf("MAE:     %.4f\n", r.Metrics.MAE)
	fmt.Printf("MAPE:    %.2f%%\n", r.Metrics.MAPE)
	if r.CrossValidation != nil {
		fmt.Printf("CV R²:   %.4f ± %.4f over %d folds\n",
			r.CrossValidation.MeanR2, r.CrossValidation.StdR2, r.CrossValidation.Folds)
	}
	fmt.Printf("Residuals: mean %.4f, std %.4f, %d outliers\n",
		r.ResidualAnalysis.Mean, r.ResidualAnalysis.Std, len(r.ResidualAnalysis.OutlierIndices))
	if !r.ResidualAnalysis.Homoscedastic {
		fmt.Println("Warning: residual variance is not constant across the prediction range")
	}
	fmt.Println("==========================")
}
