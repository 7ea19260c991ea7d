package config

import (
	"os"
	"strconv"

	"electsim/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	AI    AIConfig
	Store StoreConfig
	Sim   SimConfig
	Paths PathConfig
}

// AIConfig holds generative decision service settings
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	TimeoutMS   int
	Concurrency int
	MaxRetries  int
}

// StoreConfig holds experiment storage settings
type StoreConfig struct {
	Backend     string // "fs" or "postgres"
	Dir         string
	DatabaseURL string
}

// SimConfig holds default simulation parameters
type SimConfig struct {
	Seed                int64
	PersonasPerDistrict int
	BatchSize           int
	Workers             int
	CalibrationStrength float64
	TurnoutBoost        float64
	SwingNoiseOffset    float64
	GeneratorType       string
	MajorityThreshold   int
}

// PathConfig holds file system paths for reference data
type PathConfig struct {
	PersonaConfig string
	DataDir       string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		AI: AIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnvOrDefault("SIM_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvIntOrDefault("SIM_MAX_TOKENS", 2000),
			Temperature: getEnvFloatOrDefault("SIM_TEMPERATURE", 0.7),
			TimeoutMS:   getEnvIntOrDefault("SIM_LLM_TIMEOUT_MS", 120000),
			Concurrency: getEnvIntOrDefault("SIM_LLM_CONCURRENCY", 4),
			MaxRetries:  getEnvIntOrDefault("SIM_LLM_RETRIES", 3),
		},
		Store: StoreConfig{
			Backend:     getEnvOrDefault("STORE_BACKEND", "fs"),
			Dir:         getEnvOrDefault("RESULTS_DIR", "results/experiments"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Sim: SimConfig{
			Seed:                int64(getEnvIntOrDefault("SIM_SEED", 42)),
			PersonasPerDistrict: getEnvIntOrDefault("SIM_PERSONAS_PER_DISTRICT", 100),
			BatchSize:           getEnvIntOrDefault("SIM_BATCH_SIZE", 15),
			Workers:             getEnvIntOrDefault("SIM_WORKERS", 8),
			CalibrationStrength: getEnvFloatOrDefault("SIM_CALIBRATION_STRENGTH", 0.3),
			TurnoutBoost:        getEnvFloatOrDefault("SIM_TURNOUT_BOOST", 0),
			SwingNoiseOffset:    getEnvFloatOrDefault("SIM_SWING_NOISE_OFFSET", 0),
			GeneratorType:       getEnvOrDefault("SIM_GENERATOR", "archetype"),
			MajorityThreshold:   getEnvIntOrDefault("SIM_MAJORITY_THRESHOLD", 233),
		},
		Paths: PathConfig{
			PersonaConfig: getEnvOrDefault("PERSONA_CONFIG", "persona_data/persona_config.yaml"),
			DataDir:       getEnvOrDefault("DATA_DIR", "data"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Sim.PersonasPerDistrict <= 0 {
		return errors.ConfigInvalid("SIM_PERSONAS_PER_DISTRICT must be positive")
	}
	if cfg.Sim.Seed < 0 {
		return errors.ConfigInvalid("SIM_SEED must be non-negative")
	}
	if cfg.Sim.Workers < 1 {
		return errors.ConfigInvalid("SIM_WORKERS must be at least 1")
	}
	if cfg.Sim.BatchSize < 1 {
		return errors.ConfigInvalid("SIM_BATCH_SIZE must be at least 1")
	}
	if cfg.Sim.CalibrationStrength < 0 || cfg.Sim.CalibrationStrength > 1 {
		return errors.ConfigInvalid("SIM_CALIBRATION_STRENGTH must be in [0,1]")
	}
	switch cfg.Sim.GeneratorType {
	case "archetype", "demographic":
	default:
		return errors.ConfigInvalid("SIM_GENERATOR must be archetype or demographic")
	}
	switch cfg.Store.Backend {
	case "fs":
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required for the postgres store")
		}
	default:
		return errors.ConfigInvalid("STORE_BACKEND must be fs or postgres")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
