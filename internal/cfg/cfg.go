package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath          string
	MetricsPort       int
	LogLevel          string
	Crops             []string
	WeatherURL        string
	MarketURL         string
	EnrichTimeout     time.Duration
	SimulationTrials  int
	SimulationSeed    int64
	SimulationWorkers int
	SimulationBudget  time.Duration
	SeasonalPeriod    int
	ClusterK          int
	LikelihoodWeight  float64
	CropConfigs       map[string]CropConfig
}

// CropConfig overrides the built-in water and temperature bounds for one
// crop.
type CropConfig struct {
	WaterMinMM float64 `yaml:"waterMinMM"`
	WaterMaxMM float64 `yaml:"waterMaxMM"`
	BaseTemp   float64 `yaml:"baseTemp"`
}

type ConfigFile struct {
	Enrichment struct {
		WeatherURL string `yaml:"weatherURL"`
		MarketURL  string `yaml:"marketURL"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"enrichment"`

	Simulation struct {
		Trials  int    `yaml:"trials"`
		Seed    int64  `yaml:"seed"`
		Workers int    `yaml:"workers"`
		Budget  string `yaml:"budget"`
	} `yaml:"simulation"`

	Models struct {
		SeasonalPeriod   int     `yaml:"seasonalPeriod"`
		ClusterK         int     `yaml:"clusterK"`
		LikelihoodWeight float64 `yaml:"likelihoodWeight"`
	} `yaml:"models"`

	CropConfig map[string]CropConfig `yaml:"cropConfig"`

	System struct {
		DataPath    string   `yaml:"dataPath"`
		MetricsPort int      `yaml:"metricsPort"`
		LogLevel    string   `yaml:"logLevel"`
		Crops       []string `yaml:"crops"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// A .env file supplies environment variables when present; absence is
	// not an error.
	_ = godotenv.Load()

	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Parse durations
	enrichTimeout, err := time.ParseDuration(config.Enrichment.Timeout)
	if err != nil {
		enrichTimeout = 5 * time.Second
	}

	budget, err := time.ParseDuration(config.Simulation.Budget)
	if err != nil {
		budget = 30 * time.Second
	}

	settings := Settings{
		DataPath:          getEnvOrDefault("DATA_PATH", config.System.DataPath),
		MetricsPort:       getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 8080),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", defaultString(config.System.LogLevel, "info")),
		Crops:             getCropsFromEnvOrConfig(config.System.Crops),
		WeatherURL:        getEnvOrDefault("WEATHER_URL", config.Enrichment.WeatherURL),
		MarketURL:         getEnvOrDefault("MARKET_URL", config.Enrichment.MarketURL),
		EnrichTimeout:     enrichTimeout,
		SimulationTrials:  getIntFromEnvOrConfig("SIMULATION_TRIALS", config.Simulation.Trials, 10000),
		SimulationSeed:    getInt64FromEnvOrConfig("SIMULATION_SEED", config.Simulation.Seed),
		SimulationWorkers: getIntFromEnvOrConfig("SIMULATION_WORKERS", config.Simulation.Workers, 0),
		SimulationBudget:  budget,
		SeasonalPeriod:    getIntFromEnvOrConfig("SEASONAL_PERIOD", config.Models.SeasonalPeriod, 12),
		ClusterK:          getIntFromEnvOrConfig("CLUSTER_K", config.Models.ClusterK, 3),
		LikelihoodWeight:  getFloatFromEnvOrConfig("LIKELIHOOD_WEIGHT", config.Models.LikelihoodWeight, 0.6),
		CropConfigs:       config.CropConfig,
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:          os.Getenv("DATA_PATH"), // optional
		MetricsPort:       getIntOrDefault("METRICS_PORT", 8080),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		Crops:             splitOrDefault(os.Getenv("CROPS"), []string{"maize"}),
		WeatherURL:        os.Getenv("WEATHER_URL"), // optional, empty disables enrichment
		MarketURL:         os.Getenv("MARKET_URL"),  // optional
		EnrichTimeout:     getDurationOrDefault("ENRICH_TIMEOUT", 5*time.Second),
		SimulationTrials:  getIntOrDefault("SIMULATION_TRIALS", 10000),
		SimulationSeed:    getInt64OrDefault("SIMULATION_SEED", 0),
		SimulationWorkers: getIntOrDefault("SIMULATION_WORKERS", 0),
		SimulationBudget:  getDurationOrDefault("SIMULATION_BUDGET", 30*time.Second),
		SeasonalPeriod:    getIntOrDefault("SEASONAL_PERIOD", 12),
		ClusterK:          getIntOrDefault("CLUSTER_K", 3),
		LikelihoodWeight:  getFloatOrDefault("LIKELIHOOD_WEIGHT", 0.6),
		CropConfigs:       make(map[string]CropConfig),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// GetCropConfig returns the override for a specific crop, or false when the
// crop uses the built-in profile.
func (s *Settings) GetCropConfig(crop string) (CropConfig, bool) {
	config, exists := s.CropConfigs[crop]
	return config, exists
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getCropsFromEnvOrConfig(configCrops []string) []string {
	if env := os.Getenv("CROPS"); env != "" {
		return strings.Split(env, ",")
	}
	if len(configCrops) > 0 {
		return configCrops
	}
	return []string{"maize"}
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate crops
	if len(settings.Crops) == 0 {
		return fmt.Errorf("at least one crop must be specified")
	}

	// Validate time durations
	if settings.EnrichTimeout < time.Second || settings.EnrichTimeout > time.Minute {
		return fmt.Errorf("enrichment timeout must be between 1s and 1m, got %v", settings.EnrichTimeout)
	}
	if settings.SimulationBudget < time.Second || settings.SimulationBudget > 10*time.Minute {
		return fmt.Errorf("simulation budget must be between 1s and 10m, got %v", settings.SimulationBudget)
	}

	// Validate integer values
	if settings.SimulationTrials <= 0 || settings.SimulationTrials > 10_000_000 {
		return fmt.Errorf("simulation trials must be between 1 and 10000000, got %d", settings.SimulationTrials)
	}
	if settings.SimulationWorkers < 0 || settings.SimulationWorkers > 1024 {
		return fmt.Errorf("simulation workers must be between 0 and 1024, got %d", settings.SimulationWorkers)
	}
	if settings.SeasonalPeriod < 2 || settings.SeasonalPeriod > 52 {
		return fmt.Errorf("seasonal period must be between 2 and 52, got %d", settings.SeasonalPeriod)
	}
	if settings.ClusterK < 1 || settings.ClusterK > 20 {
		return fmt.Errorf("cluster k must be between 1 and 20, got %d", settings.ClusterK)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}

	// Validate float values
	if settings.LikelihoodWeight < 0 || settings.LikelihoodWeight > 1 {
		return fmt.Errorf("likelihood weight must be between 0 and 1, got %f", settings.LikelihoodWeight)
	}

	// Validate crop-specific configs
	for crop, config := range settings.CropConfigs {
		if config.WaterMinMM < 0 || config.WaterMaxMM <= config.WaterMinMM {
			return fmt.Errorf("crop %s: water bounds must satisfy 0 <= min < max, got [%f, %f]", crop, config.WaterMinMM, config.WaterMaxMM)
		}
		if config.BaseTemp < 0 || config.BaseTemp > 20 {
			return fmt.Errorf("crop %s: base temperature must be between 0 and 20, got %f", crop, config.BaseTemp)
		}
	}

	return nil
}
