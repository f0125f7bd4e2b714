// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database (optional, uses in-memory stores if not set)
	DatabaseURL string

	// Detection oracle (graph analytics service). Empty means the built-in
	// static oracle is used, which is only useful for demos and tests.
	OracleURL     string
	OracleTimeout time.Duration

	// Scoring / compliance
	ComplianceRiskThreshold int     // combined risk at or above this tags the alert
	HighValueAmount         float64 // mule signal: single transfer at or above this

	// Dispute workflow
	HoldWindowDays int           // statutory maximum hold window
	SweepInterval  time.Duration // auto-enforcement sweep cadence
	SystemActor    string        // attributed author of sweep transitions

	// Observability
	OTLPEndpoint string
}

// Defaults.
const (
	DefaultPort                    = "8080"
	DefaultEnv                     = "development"
	DefaultLogLevel                = "info"
	DefaultLogFormat               = "text"
	DefaultOracleTimeout           = 10 * time.Second
	DefaultComplianceRiskThreshold = 60
	DefaultHighValueAmount         = 10000
	DefaultHoldWindowDays          = 30
	DefaultSweepInterval           = time.Minute
	DefaultSystemActor             = "afasa_auto_enforcer"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", DefaultPort),
		Env:                     getEnv("ENV", DefaultEnv),
		LogLevel:                getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:               getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		OracleURL:               os.Getenv("ORACLE_URL"),
		OracleTimeout:           getEnvDuration("ORACLE_TIMEOUT", DefaultOracleTimeout),
		ComplianceRiskThreshold: getEnvInt("COMPLIANCE_RISK_THRESHOLD", DefaultComplianceRiskThreshold),
		HighValueAmount:         getEnvFloat("HIGH_VALUE_AMOUNT", DefaultHighValueAmount),
		HoldWindowDays:          getEnvInt("HOLD_WINDOW_DAYS", DefaultHoldWindowDays),
		SweepInterval:           getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		SystemActor:             getEnv("SYSTEM_ACTOR", DefaultSystemActor),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.ComplianceRiskThreshold < 0 || c.ComplianceRiskThreshold > 100 {
		return fmt.Errorf("COMPLIANCE_RISK_THRESHOLD must be within [0,100], got %d", c.ComplianceRiskThreshold)
	}
	if c.HoldWindowDays <= 0 {
		return fmt.Errorf("HOLD_WINDOW_DAYS must be positive, got %d", c.HoldWindowDays)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
