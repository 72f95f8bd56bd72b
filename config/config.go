package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradedash/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Engine API
	EngineBaseURL string
	APIKey        string
	UserID        string

	// Connection Settings
	RequestTimeout time.Duration
	MaxRetries     int

	// Reconcile Loop
	RefreshInterval time.Duration
	PageSize        int

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Engine API
	cfg.EngineBaseURL = getEnv("ENGINE_BASE_URL", "")
	cfg.APIKey = getEnv("ENGINE_API_KEY", "")
	cfg.UserID = getEnv("ENGINE_USER_ID", "")

	if cfg.EngineBaseURL == "" {
		errs = append(errs, "ENGINE_BASE_URL must be set")
	}
	if cfg.APIKey == "" {
		errs = append(errs, "ENGINE_API_KEY must be set")
	}
	if cfg.UserID == "" {
		errs = append(errs, "ENGINE_USER_ID must be set")
	}

	// Connection Settings
	requestTimeoutSeconds, err := getEnvAsIntRequired("REQUEST_TIMEOUT_SECONDS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUEST_TIMEOUT_SECONDS: %v", err))
	} else if requestTimeoutSeconds <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT_SECONDS must be positive")
	}
	cfg.RequestTimeout = time.Duration(requestTimeoutSeconds) * time.Second

	cfg.MaxRetries, err = getEnvAsIntRequired("MAX_RETRIES", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RETRIES: %v", err))
	} else if cfg.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES cannot be negative")
	}

	// Reconcile Loop
	refreshIntervalSeconds := getEnvAsInt("REFRESH_INTERVAL_SECONDS", 60)
	if refreshIntervalSeconds <= 0 {
		errs = append(errs, "REFRESH_INTERVAL_SECONDS must be positive")
	}
	cfg.RefreshInterval = time.Duration(refreshIntervalSeconds) * time.Second

	cfg.PageSize = getEnvAsInt("PAGE_SIZE", 20)
	if cfg.PageSize <= 0 {
		errs = append(errs, "PAGE_SIZE must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/tradedash.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
