// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database (optional, uses in-memory stores if not set)
	DatabaseURL string

	// Pi platform (external payment authority)
	PiAPIURL string
	PiAPIKey string

	// Ledger (blockchain data source)
	HorizonURL     string
	LedgerTimeout  time.Duration
	LedgerCacheTTL time.Duration

	// Reputation
	ReferralAwardPoints int
	RecordCacheTTL      time.Duration
	ReconcileInterval   time.Duration

	// Security
	AdminSecret  string
	RateLimitRPM int

	// Observability
	OTLPEndpoint string
}

// Defaults for the Pi testnet environment.
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultPiAPIURL      = "https://api.minepi.com/v2"
	DefaultHorizonURL    = "https://api.testnet.minepi.com"
	DefaultReferralAward = 100
	DefaultRateLimitRPM  = 120
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		PiAPIURL:            getEnv("PI_API_URL", DefaultPiAPIURL),
		PiAPIKey:            os.Getenv("PI_API_KEY"), // Required, no default
		HorizonURL:          getEnv("HORIZON_URL", DefaultHorizonURL),
		LedgerTimeout:       getEnvDuration("LEDGER_TIMEOUT", 10*time.Second),
		LedgerCacheTTL:      getEnvDuration("LEDGER_CACHE_TTL", 60*time.Second),
		ReferralAwardPoints: int(getEnvInt64("REFERRAL_AWARD_POINTS", DefaultReferralAward)),
		RecordCacheTTL:      getEnvDuration("RECORD_CACHE_TTL", 5*time.Minute),
		ReconcileInterval:   getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.PiAPIKey == "" {
		return fmt.Errorf("PI_API_KEY is required")
	}
	if c.PiAPIURL == "" {
		return fmt.Errorf("PI_API_URL is required")
	}
	if c.HorizonURL == "" {
		return fmt.Errorf("HORIZON_URL is required")
	}
	if c.ReferralAwardPoints < 0 {
		return fmt.Errorf("REFERRAL_AWARD_POINTS must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
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
