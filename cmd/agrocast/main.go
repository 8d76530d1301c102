package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"agrocast/internal/agro"
	"agrocast/internal/cfg"
	"agrocast/internal/enrich"
	"agrocast/internal/engine"
	"agrocast/internal/features"
	"agrocast/internal/metrics"
	"agrocast/internal/monitor"
	"agrocast/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	inputPath := flag.String("input", "", "JSON file of prediction requests; run once and exit")
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	applyLogLevel(c.LogLevel)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	mon := initializeMonitor(store, mw)
	featureStore := initializeFeatureStore(c, mw)
	enricher := enrich.New(c.WeatherURL, c.MarketURL, c.EnrichTimeout, mw)

	eng, err := engine.New(engine.Config{
		SimulationTrials:  c.SimulationTrials,
		SimulationSeed:    c.SimulationSeed,
		SimulationWorkers: c.SimulationWorkers,
		SimulationBudget:  c.SimulationBudget,
		SeasonalPeriod:    c.SeasonalPeriod,
		ClusterK:          c.ClusterK,
		LikelihoodWeight:  c.LikelihoodWeight,
	}, featureStore, enricher, mon, m)
	if err != nil {
		log.Fatal().Err(err).Msg("engine initialization failed")
	}

	// Persist monitor state on exit
	defer func() {
		if err := mon.Persist(); err != nil {
			log.Error().Err(err).Msg("failed to persist monitor state")
			m.StorageErrors.Inc()
		}
	}()

	// One-shot mode: run the requests from the input file and exit.
	if *inputPath != "" {
		runBatch(ctx, *inputPath, eng, store)
		return
	}

	// Start background goroutines
	var wg sync.WaitGroup
	startServer(ctx, c, eng, mon, store)
	startReportLoop(ctx, &wg, mon, store)

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, &wg)
}

// runBatch executes every request in the JSON input file and writes results
// to stdout. Individual failures are logged and skipped.
func runBatch(ctx context.Context, path string, eng *engine.Engine, store *storage.Store) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to read input file")
	}
	var reqs []predictRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		log.Fatal().Err(err).Msg("failed to parse input file")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for i, req := range reqs {
		result, err := eng.Predict(ctx, req.rawInputs(), loadHistory(req, store))
		if err != nil {
			log.Error().Err(err).Int("request", i).Msg("prediction failed")
			continue
		}
		if err := enc.Encode(result); err != nil {
			log.Error().Err(err).Int("request", i).Msg("failed to encode result")
		}
	}
}

// loadHistory returns the request's inline yield history, falling back to the
// stored series when persistence is configured.
func loadHistory(req predictRequest, store *storage.Store) []float64 {
	if len(req.History) > 0 || store == nil {
		return req.History
	}
	history, err := store.YieldSeries(req.Region, req.Crop, time.Time{}, time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("yield history unavailable")
		return nil
	}
	return history
}

func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(parsed)
}

// initializeStorage initializes storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath != "" {
		store, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
			return nil
		}
		return store
	}
	return nil
}

// initializeMonitor creates the prediction monitor, restoring persisted
// state when available.
func initializeMonitor(store *storage.Store, mw *metrics.Wrapper) *monitor.Monitor {
	var mon *monitor.Monitor
	if store != nil {
		mon = monitor.New(store, mw)
		if err := mon.Restore(); err != nil {
			log.Warn().Err(err).Msg("monitor restore failed, starting empty")
		}
	} else {
		mon = monitor.New(nil, mw)
	}
	return mon
}

// initializeFeatureStore creates the feature store with configured crop
// overrides applied on top of the built-in profiles.
func initializeFeatureStore(c cfg.Settings, mw *metrics.Wrapper) *features.Store {
	store := features.NewStore(mw)
	for crop, override := range c.CropConfigs {
		store.ApplyCropOverrides(crop, override.WaterMinMM, override.WaterMaxMM, override.BaseTemp)
		log.Info().Str("crop", crop).Msg("crop profile override applied")
	}
	return store
}

// predictRequest is the POST /predict payload.
type predictRequest struct {
	Region       string    `json:"region"`
	Crop         string    `json:"crop"`
	SoilType     string    `json:"soil_type"`
	TempMin      float64   `json:"temperature_min"`
	TempMax      float64   `json:"temperature_max"`
	Rainfall     float64   `json:"rainfall"`
	SoilPH       float64   `json:"soil_ph"`
	PlantingDate time.Time `json:"planting_date"`
	History      []float64 `json:"history,omitempty"`
}

func (r predictRequest) rawInputs() features.RawInputs {
	return features.RawInputs{
		Region:       r.Region,
		Crop:         r.Crop,
		SoilType:     r.SoilType,
		TempMin:      r.TempMin,
		TempMax:      r.TempMax,
		Rainfall:     r.Rainfall,
		SoilPH:       r.SoilPH,
		PlantingDate: r.PlantingDate,
	}
}

// actualRequest is the POST /actual payload.
type actualRequest struct {
	PredictionID string  `json:"prediction_id"`
	ActualYield  float64 `json:"actual_yield"`
}

// climateRiskRequest is the POST /climate-risk payload. Factor defaults to a
// 10% warming scenario.
type climateRiskRequest struct {
	Temperatures []float64 `json:"temperatures"`
	Rainfall     []float64 `json:"rainfall"`
	Factor       float64   `json:"factor"`
}

// startServer starts the HTTP server: prediction API plus health and
// Prometheus metrics endpoints.
func startServer(ctx context.Context, c cfg.Settings, eng *engine.Engine, mon *monitor.Monitor, store *storage.Store) {
	go func() {
		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var req predictRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			result, err := eng.Predict(r.Context(), req.rawInputs(), loadHistory(req, store))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, result)
		})

		mux.HandleFunc("/actual", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var req actualRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			result, err := mon.RecordActualYield(req.PredictionID, req.ActualYield)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			writeJSON(w, result)
		})

		mux.HandleFunc("/climate-risk", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var req climateRiskRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			if req.Factor == 0 {
				req.Factor = 1.1
			}
			writeJSON(w, agro.AssessClimateRisk(req.Temperatures, req.Rainfall, req.Factor))
		})

		mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, mon.GeneratePerformanceReport())
		})

		mux.HandleFunc("/export", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, mon.Export())
		})

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown server")
			}
		}()

		log.Info().Int("port", c.MetricsPort).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()
}

// startReportLoop periodically generates and persists performance reports.
func startReportLoop(ctx context.Context, wg *sync.WaitGroup, mon *monitor.Monitor, store *storage.Store) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := mon.GeneratePerformanceReport()
				if store != nil {
					if err := store.StoreReport(*report); err != nil {
						log.Error().Err(err).Msg("failed to store report")
					}
				}
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel() // Cancel context to stop all goroutines

	// Wait for all goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
