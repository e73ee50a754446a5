package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the server
type Config struct {
	// Server settings
	Port        int
	CORSOrigins []string

	// Database
	DatabaseDSN    string
	DatabaseDriver string // "postgres" or "sqlite", auto-detected from DSN

	// Apify
	ApifyToken          string
	ApifyRequestTimeout time.Duration
	ApifyVariantDelay   time.Duration // wait between star filter variants of the same ASIN
	ApifyBatchDelay     time.Duration // wait between successive product scrape batches

	// Worker
	WorkerInterval    time.Duration
	WorkerEnabled     bool
	StuckJobThreshold time.Duration
	ScrapeBatchSize   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// Server
	cfg.Port = getEnvInt("PORT", 8080)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"})

	// Database
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", "sqlite3://./shelfwatch.db")
	cfg.DatabaseDriver = detectDriver(cfg.DatabaseDSN)

	// Apify
	cfg.ApifyToken = getEnv("APIFY_TOKEN", "")
	cfg.ApifyRequestTimeout = getEnvDuration("APIFY_REQUEST_TIMEOUT", 10*time.Minute)
	cfg.ApifyVariantDelay = getEnvDuration("APIFY_VARIANT_DELAY", 2*time.Second)
	cfg.ApifyBatchDelay = getEnvDuration("APIFY_BATCH_DELAY", 2*time.Second)

	// Worker
	cfg.WorkerInterval = getEnvDuration("WORKER_INTERVAL", 10*time.Second)
	cfg.WorkerEnabled = getEnvBool("WORKER_ENABLED", true)
	cfg.StuckJobThreshold = getEnvDuration("STUCK_JOB_THRESHOLD", 30*time.Minute)
	cfg.ScrapeBatchSize = getEnvInt("SCRAPE_BATCH_SIZE", 50)

	if cfg.ScrapeBatchSize < 1 {
		return nil, fmt.Errorf("SCRAPE_BATCH_SIZE must be at least 1, got %d", cfg.ScrapeBatchSize)
	}

	return cfg, nil
}

// detectDriver determines the database driver from DSN
func detectDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.HasPrefix(dsn, "sqlite3://") || strings.HasPrefix(dsn, "sqlite://") {
		return "sqlite"
	}
	// Default to sqlite for file paths
	if strings.HasSuffix(dsn, ".db") || strings.HasSuffix(dsn, ".sqlite") {
		return "sqlite"
	}
	return "postgres"
}

// CleanDSN removes the driver prefix from DSN for database/sql
func (c *Config) CleanDSN() string {
	dsn := c.DatabaseDSN
	dsn = strings.TrimPrefix(dsn, "postgres://")
	dsn = strings.TrimPrefix(dsn, "postgresql://")
	dsn = strings.TrimPrefix(dsn, "sqlite3://")
	dsn = strings.TrimPrefix(dsn, "sqlite://")

	// For postgres, add the prefix back
	if c.DatabaseDriver == "postgres" {
		return "postgres://" + dsn
	}
	return dsn
}

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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
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
