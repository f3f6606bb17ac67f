// Package config provides environment-aware configuration for the dataflow
// engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment represents the deployment environment
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all engine configuration
type Config struct {
	// Environment
	Env Environment

	// Dataflow
	Partitions      int
	ChannelCapacity int

	// Persistence
	DataDir string

	// Logging
	LogLevel  string
	LogFormat string

	// Features
	MetricsEnabled bool
}

// Load loads configuration based on the K9DB_ENV environment variable
func Load() (*Config, error) {
	envStr := os.Getenv("K9DB_ENV")
	if envStr == "" {
		envStr = string(Development)
	}

	env := Environment(envStr)
	switch env {
	case Development, Testing, Production:
	default:
		return nil, fmt.Errorf("invalid K9DB_ENV: %s (must be development, testing, or production)", envStr)
	}

	// Load environment-specific .env file
	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		// Config file is optional; only warn on non-"file not found" errors
		// (e.g. parse errors) to avoid noisy logs during tests and CI runs.
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{
		Env: env,
	}
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no environment is provided,
// e.g. by tests and embedding applications that configure programmatically.
func Default() *Config {
	return &Config{
		Env:             Development,
		Partitions:      3,
		ChannelCapacity: 10000,
		DataDir:         ".",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	c.Partitions = getIntEnv("K9DB_PARTITIONS", 3)
	c.ChannelCapacity = getIntEnv("K9DB_CHANNEL_CAPACITY", 10000)
	c.DataDir = getEnv("K9DB_DATA_DIR", ".")
	c.LogLevel = getEnv("K9DB_LOG_LEVEL", "info")
	c.LogFormat = getEnv("K9DB_LOG_FORMAT", "text")
	c.MetricsEnabled = getBoolEnv("K9DB_METRICS_ENABLED", c.Env == Production)
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Env == Development
}

// IsTesting returns true if running in testing environment
func (c *Config) IsTesting() bool {
	return c.Env == Testing
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Env == Production
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Partitions < 1 {
		return fmt.Errorf("invalid partition count: %d (must be at least 1)", c.Partitions)
	}
	if c.ChannelCapacity < 0 {
		return fmt.Errorf("invalid channel capacity: %d (0 disables the bound)", c.ChannelCapacity)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory must not be empty")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
