package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"agriprice/internal"
	"agriprice/internal/errors"

	"github.com/robfig/cron/v3"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Data      DataConfig
	Synthesis SynthesisConfig
	Training  TrainingConfig
	LogLevel  internal.LogLevel
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port           string
	AdminPort      string
	GinMode        string
	AllowedOrigins []string
}

// DatabaseConfig holds database connection settings. Persistence is
// optional: an empty URL disables snapshot and run storage.
type DatabaseConfig struct {
	URL string
}

// Enabled reports whether a database was configured
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// RedisConfig holds prediction cache settings. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether a cache was configured
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// DataConfig selects where observations come from
type DataConfig struct {
	DatasetFile    string // CSV or XLSX; empty means synthesize
	SnapshotToDB   bool
	LoadFromDBOnly bool
}

// SynthesisConfig holds the overridable generator knobs
type SynthesisConfig struct {
	StartYear             int
	EndYear               int
	SamplesPerCombination int
	SamplingRate          float64
	Seed                  int64
}

// TrainingConfig controls the training lifecycle
type TrainingConfig struct {
	WarmupDelay     time.Duration
	RetrainSchedule string // standard 5-field cron spec; empty disables
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:    *loadServerConfig(),
		Database:  DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Redis:     *loadRedisConfig(),
		Data:      *loadDataConfig(),
		Synthesis: *loadSynthesisConfig(),
		Training:  *loadTrainingConfig(),
		LogLevel:  internal.ParseLogLevel(os.Getenv("LOG_LEVEL")),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	origins := getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	return &ServerConfig{
		Port:           getEnvOrDefault("PORT", "8080"),
		AdminPort:      getEnvOrDefault("ADMIN_PORT", "8081"),
		GinMode:        getEnvOrDefault("GIN_MODE", "release"),
		AllowedOrigins: splitList(origins),
	}
}

func loadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", ""),
		Password: getEnvOrDefault("REDIS_PASSWORD", ""),
		DB:       getEnvIntOrDefault("REDIS_DB", 0),
		TTL:      getEnvDurationOrDefault("CACHE_TTL", 10*time.Minute),
	}
}

func loadDataConfig() *DataConfig {
	return &DataConfig{
		DatasetFile:    getEnvOrDefault("DATASET_FILE", ""),
		SnapshotToDB:   getEnvBoolOrDefault("SNAPSHOT_TO_DB", true),
		LoadFromDBOnly: getEnvBoolOrDefault("LOAD_FROM_DB", false),
	}
}

func loadSynthesisConfig() *SynthesisConfig {
	return &SynthesisConfig{
		StartYear:             getEnvIntOrDefault("SYNTH_START_YEAR", 2005),
		EndYear:               getEnvIntOrDefault("SYNTH_END_YEAR", 2025),
		SamplesPerCombination: getEnvIntOrDefault("SYNTH_SAMPLES", 2),
		SamplingRate:          getEnvFloatOrDefault("SYNTH_SAMPLING_RATE", 1.0),
		Seed:                  int64(getEnvIntOrDefault("SYNTH_SEED", 0)),
	}
}

func loadTrainingConfig() *TrainingConfig {
	return &TrainingConfig{
		WarmupDelay:     getEnvDurationOrDefault("TRAINING_DELAY", 1500*time.Millisecond),
		RetrainSchedule: getEnvOrDefault("RETRAIN_SCHEDULE", ""),
	}
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	if config.Server.AdminPort == config.Server.Port {
		return errors.ConfigInvalid("ADMIN_PORT must differ from PORT")
	}
	if config.Synthesis.EndYear < config.Synthesis.StartYear {
		return errors.ConfigInvalid("SYNTH_END_YEAR must not precede SYNTH_START_YEAR")
	}
	if config.Synthesis.SamplesPerCombination < 1 {
		return errors.ConfigInvalid("SYNTH_SAMPLES must be at least 1")
	}
	if config.Synthesis.SamplingRate <= 0 || config.Synthesis.SamplingRate > 1 {
		return errors.ConfigInvalid("SYNTH_SAMPLING_RATE must be in (0, 1]")
	}
	if config.Training.WarmupDelay < 0 {
		return errors.ConfigInvalid("TRAINING_DELAY must not be negative")
	}
	if config.Training.RetrainSchedule != "" {
		if _, err := cron.ParseStandard(config.Training.RetrainSchedule); err != nil {
			return errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "RETRAIN_SCHEDULE %q is invalid", config.Training.RetrainSchedule))
		}
	}
	if config.Data.LoadFromDBOnly && !config.Database.Enabled() {
		return errors.ConfigInvalid("LOAD_FROM_DB requires DATABASE_URL")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
