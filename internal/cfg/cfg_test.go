package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// knownEnvVars lists every variable the loader reads, so tests start clean.
var knownEnvVars = []string{
	"CONFIG_FILE", "DATA_PATH", "METRICS_PORT", "LOG_LEVEL", "CROPS",
	"WEATHER_URL", "MARKET_URL", "ENRICH_TIMEOUT",
	"SIMULATION_TRIALS", "SIMULATION_SEED", "SIMULATION_WORKERS", "SIMULATION_BUDGET",
	"SEASONAL_PERIOD", "CLUSTER_K", "LIKELIHOOD_WEIGHT",
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, key := range knownEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults with no environment",
			envVars: map[string]string{},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if len(settings.Crops) != 1 || settings.Crops[0] != "maize" {
					t.Errorf("expected default crops [maize], got %v", settings.Crops)
				}
				if settings.MetricsPort != 8080 {
					t.Errorf("expected default MetricsPort 8080, got %d", settings.MetricsPort)
				}
				if settings.SimulationTrials != 10000 {
					t.Errorf("expected default SimulationTrials 10000, got %d", settings.SimulationTrials)
				}
				if settings.SeasonalPeriod != 12 {
					t.Errorf("expected default SeasonalPeriod 12, got %d", settings.SeasonalPeriod)
				}
				if settings.ClusterK != 3 {
					t.Errorf("expected default ClusterK 3, got %d", settings.ClusterK)
				}
				if settings.LikelihoodWeight != 0.6 {
					t.Errorf("expected default LikelihoodWeight 0.6, got %f", settings.LikelihoodWeight)
				}
				if settings.EnrichTimeout != 5*time.Second {
					t.Errorf("expected default EnrichTimeout 5s, got %v", settings.EnrichTimeout)
				}
				if settings.WeatherURL != "" {
					t.Errorf("expected empty WeatherURL, got %s", settings.WeatherURL)
				}
			},
		},
		{
			name: "custom crops and settings",
			envVars: map[string]string{
				"CROPS":             "maize,wheat,rice",
				"METRICS_PORT":      "9090",
				"SIMULATION_TRIALS": "5000",
				"SIMULATION_SEED":   "42",
				"SEASONAL_PERIOD":   "4",
				"CLUSTER_K":         "5",
				"WEATHER_URL":       "http://localhost:7070/weather",
				"ENRICH_TIMEOUT":    "2s",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				expectedCrops := []string{"maize", "wheat", "rice"}
				if len(settings.Crops) != len(expectedCrops) {
					t.Fatalf("expected %d crops, got %d", len(expectedCrops), len(settings.Crops))
				}
				for i, crop := range expectedCrops {
					if settings.Crops[i] != crop {
						t.Errorf("expected crop %s at index %d, got %v", crop, i, settings.Crops)
					}
				}
				if settings.MetricsPort != 9090 {
					t.Errorf("expected MetricsPort 9090, got %d", settings.MetricsPort)
				}
				if settings.SimulationTrials != 5000 {
					t.Errorf("expected SimulationTrials 5000, got %d", settings.SimulationTrials)
				}
				if settings.SimulationSeed != 42 {
					t.Errorf("expected SimulationSeed 42, got %d", settings.SimulationSeed)
				}
				if settings.SeasonalPeriod != 4 {
					t.Errorf("expected SeasonalPeriod 4, got %d", settings.SeasonalPeriod)
				}
				if settings.WeatherURL != "http://localhost:7070/weather" {
					t.Errorf("unexpected WeatherURL %s", settings.WeatherURL)
				}
				if settings.EnrichTimeout != 2*time.Second {
					t.Errorf("expected EnrichTimeout 2s, got %v", settings.EnrichTimeout)
				}
			},
		},
		{
			name: "invalid trials rejected",
			envVars: map[string]string{
				"SIMULATION_TRIALS": "-5",
			},
			wantErr: true,
		},
		{
			name: "invalid metrics port rejected",
			envVars: map[string]string{
				"METRICS_PORT": "80",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
enrichment:
  weatherURL: "http://weather.local/v1"
  marketURL: "http://market.local/v1"
  timeout: "10s"

simulation:
  trials: 20000
  seed: 7
  workers: 4
  budget: "1m"

models:
  seasonalPeriod: 4
  clusterK: 5
  likelihoodWeight: 0.5

cropConfig:
  maize:
    waterMinMM: 450
    waterMaxMM: 850
    baseTemp: 10

system:
  dataPath: "/custom/data"
  metricsPort: 9090
  logLevel: "debug"
  crops:
    - "maize"
    - "wheat"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.WeatherURL != "http://weather.local/v1" {
					t.Errorf("unexpected WeatherURL %s", settings.WeatherURL)
				}
				if settings.EnrichTimeout != 10*time.Second {
					t.Errorf("expected EnrichTimeout 10s, got %v", settings.EnrichTimeout)
				}
				if settings.SimulationTrials != 20000 {
					t.Errorf("expected SimulationTrials 20000, got %d", settings.SimulationTrials)
				}
				if settings.SimulationSeed != 7 {
					t.Errorf("expected SimulationSeed 7, got %d", settings.SimulationSeed)
				}
				if settings.SimulationBudget != time.Minute {
					t.Errorf("expected SimulationBudget 1m, got %v", settings.SimulationBudget)
				}
				if settings.SeasonalPeriod != 4 {
					t.Errorf("expected SeasonalPeriod 4, got %d", settings.SeasonalPeriod)
				}
				if settings.LikelihoodWeight != 0.5 {
					t.Errorf("expected LikelihoodWeight 0.5, got %f", settings.LikelihoodWeight)
				}
				if settings.MetricsPort != 9090 {
					t.Errorf("expected MetricsPort 9090, got %d", settings.MetricsPort)
				}
				if settings.LogLevel != "debug" {
					t.Errorf("expected LogLevel debug, got %s", settings.LogLevel)
				}
				if settings.DataPath != "/custom/data" {
					t.Errorf("expected DataPath /custom/data, got %s", settings.DataPath)
				}
				if len(settings.Crops) != 2 {
					t.Errorf("expected 2 crops, got %v", settings.Crops)
				}
				config, ok := settings.GetCropConfig("maize")
				if !ok {
					t.Fatal("expected maize crop config")
				}
				if config.WaterMinMM != 450 || config.WaterMaxMM != 850 {
					t.Errorf("unexpected maize water bounds: %+v", config)
				}
			},
		},
		{
			name: "YAML with env overrides",
			yamlContent: `
simulation:
  trials: 20000
system:
  metricsPort: 9090
`,
			envOverrides: map[string]string{
				"SIMULATION_TRIALS": "1000",
				"LOG_LEVEL":         "warn",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.SimulationTrials != 1000 {
					t.Errorf("env should override YAML: expected 1000 trials, got %d", settings.SimulationTrials)
				}
				if settings.LogLevel != "warn" {
					t.Errorf("expected LogLevel warn, got %s", settings.LogLevel)
				}
				if settings.MetricsPort != 9090 {
					t.Errorf("YAML value should hold: expected 9090, got %d", settings.MetricsPort)
				}
			},
		},
		{
			name: "malformed durations fall back to defaults",
			yamlContent: `
enrichment:
  timeout: "not-a-duration"
simulation:
  budget: "also-bad"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.EnrichTimeout != 5*time.Second {
					t.Errorf("expected fallback EnrichTimeout 5s, got %v", settings.EnrichTimeout)
				}
				if settings.SimulationBudget != 30*time.Second {
					t.Errorf("expected fallback SimulationBudget 30s, got %v", settings.SimulationBudget)
				}
			},
		},
		{
			name:        "invalid YAML",
			yamlContent: "system: [not a map",
			wantErr:     true,
		},
		{
			name: "invalid crop override rejected",
			yamlContent: `
cropConfig:
  maize:
    waterMinMM: 900
    waterMaxMM: 400
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o600); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}

			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			settings, err := loadFromYAML(configPath)

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML_MissingFile(t *testing.T) {
	clearTestEnv(t)
	_, err := loadFromYAML("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_UsesConfigFileEnv(t *testing.T) {
	clearTestEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "system:\n  metricsPort: 9191\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", configPath)

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.MetricsPort != 9191 {
		t.Errorf("expected MetricsPort 9191 from YAML, got %d", settings.MetricsPort)
	}
}

func TestGetCropConfig_Fallback(t *testing.T) {
	settings := Settings{CropConfigs: map[string]CropConfig{
		"maize": {WaterMinMM: 450, WaterMaxMM: 850, BaseTemp: 10},
	}}

	if _, ok := settings.GetCropConfig("wheat"); ok {
		t.Error("expected no override for wheat")
	}
	config, ok := settings.GetCropConfig("maize")
	if !ok {
		t.Fatal("expected maize override")
	}
	if config.BaseTemp != 10 {
		t.Errorf("expected BaseTemp 10, got %f", config.BaseTemp)
	}
}
