// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// the server, worker pool, NLU providers, and platform delivery.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Messenger Platform Configuration
	PageAccessToken string // Page access token for outbound delivery
	AppSecret       string // App secret for webhook signature validation
	VerifyToken     string // Token echoed back during webhook verification

	// NLU Configuration
	DialogflowToken   string // Dialogflow client access token (primary NLU)
	DialogflowBaseURL string // Override for the Dialogflow API base URL (tests)
	OpenAIAPIKey      string // OpenAI-compatible classifier key (fallback NLU)
	OpenAIBaseURL     string // Override for OpenAI-compatible endpoint
	OpenAIModel       string // Model for the OpenAI-compatible classifier
	GeminiAPIKey      string // Gemini classifier key (fallback NLU)
	GeminiModel       string // Model for the Gemini classifier

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Error Reporting
	SentryToken       string // Better Stack Errors token (empty = disabled)
	SentryHost        string // Better Stack Errors ingesting host
	SentryEnvironment string

	// Log Shipping
	BetterstackToken    string // Better Stack Logs token (empty = stdout only)
	BetterstackEndpoint string

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir string // Data directory for the SQLite database

	// Worker Configuration (embedded)
	Worker WorkerConfig

	// Dead-letter Configuration (embedded)
	DeadLetter DeadLetterConfig
}

// WorkerConfig holds dispatch-worker and delivery configuration.
type WorkerConfig struct {
	// Concurrency is the maximum number of worker invocations running at once.
	Concurrency int

	// MaxRetries is the number of times the scheduler re-invokes a failed
	// worker run. The drain loop makes re-invocation safe.
	MaxRetries int

	// NLUTimeout bounds a single NLU provider call.
	NLUTimeout time.Duration

	// NLUMaxAttempts is the total number of attempts per NLU query,
	// including the first.
	NLUMaxAttempts int

	// DeliveryTimeout bounds a single outbound platform delivery call.
	DeliveryTimeout time.Duration

	// DeliveryRateRPS is the global outbound delivery rate limit.
	DeliveryRateRPS float64
}

// DeadLetterConfig holds dropped-event archive configuration.
type DeadLetterConfig struct {
	// UploadEnabled turns on periodic archive upload to object storage.
	UploadEnabled bool

	// Endpoint, AccessKeyID, SecretKey, Bucket configure the R2/S3 target.
	Endpoint    string
	AccessKeyID string
	SecretKey   string
	Bucket      string

	// UploadInterval is how often pending archives are shipped.
	UploadInterval time.Duration
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		PageAccessToken: getEnv("PAGE_ACCESS_TOKEN", ""),
		AppSecret:       getEnv("APP_SECRET", ""),
		VerifyToken:     getEnv("VERIFY_TOKEN", ""),

		DialogflowToken:   getEnv("DIALOGFLOW_CLIENT_ACCESS_TOKEN", ""),
		DialogflowBaseURL: getEnv("DIALOGFLOW_BASE_URL", "https://api.dialogflow.com/v1"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:       getEnv("OPENAI_INTENT_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_INTENT_MODEL", "gemini-2.5-flash-lite"),

		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		SentryToken:       getEnv("SENTRY_TOKEN", ""),
		SentryHost:        getEnv("SENTRY_HOST", "errors.betterstack.com"),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "production"),

		BetterstackToken:    getEnv("BETTERSTACK_TOKEN", ""),
		BetterstackEndpoint: getEnv("BETTERSTACK_ENDPOINT", ""),

		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", GracefulShutdown),

		DataDir: getEnv("DATA_DIR", getDefaultDataDir()),

		Worker: WorkerConfig{
			Concurrency:     getIntEnv("WORKER_CONCURRENCY", 16),
			MaxRetries:      getIntEnv("WORKER_MAX_RETRIES", 1),
			NLUTimeout:      getDurationEnv("NLU_TIMEOUT", NLUQuery),
			NLUMaxAttempts:  getIntEnv("NLU_MAX_ATTEMPTS", 3),
			DeliveryTimeout: getDurationEnv("DELIVERY_TIMEOUT", PlatformDelivery),
			DeliveryRateRPS: getFloatEnv("DELIVERY_RATE_RPS", 100.0),
		},

		DeadLetter: DeadLetterConfig{
			UploadEnabled:  getBoolEnv("DEADLETTER_UPLOAD_ENABLED", false),
			Endpoint:       getEnv("DEADLETTER_ENDPOINT", ""),
			AccessKeyID:    getEnv("DEADLETTER_ACCESS_KEY_ID", ""),
			SecretKey:      getEnv("DEADLETTER_SECRET_KEY", ""),
			Bucket:         getEnv("DEADLETTER_BUCKET", ""),
			UploadInterval: getDurationEnv("DEADLETTER_UPLOAD_INTERVAL", 6*time.Hour),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.PageAccessToken == "" {
		errs = append(errs, errors.New("PAGE_ACCESS_TOKEN is required"))
	}
	if c.AppSecret == "" {
		errs = append(errs, errors.New("APP_SECRET is required"))
	}
	if c.VerifyToken == "" {
		errs = append(errs, errors.New("VERIFY_TOKEN is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if err := c.Worker.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("worker config: %w", err))
	}
	if c.DeadLetter.UploadEnabled {
		if c.DeadLetter.Endpoint == "" || c.DeadLetter.AccessKeyID == "" ||
			c.DeadLetter.SecretKey == "" || c.DeadLetter.Bucket == "" {
			errs = append(errs, errors.New("dead-letter upload enabled but endpoint/credentials/bucket incomplete"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks worker configuration bounds.
func (w *WorkerConfig) Validate() error {
	var errs []error

	if w.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", w.Concurrency))
	}
	if w.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("WORKER_MAX_RETRIES cannot be negative, got %d", w.MaxRetries))
	}
	if w.NLUMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("NLU_MAX_ATTEMPTS must be positive, got %d", w.NLUMaxAttempts))
	}
	if w.NLUTimeout <= 0 {
		errs = append(errs, fmt.Errorf("NLU_TIMEOUT must be positive, got %v", w.NLUTimeout))
	}
	if w.DeliveryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("DELIVERY_TIMEOUT must be positive, got %v", w.DeliveryTimeout))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasNLUProvider returns true if at least one NLU provider is configured.
func (c *Config) HasNLUProvider() bool {
	return c.DialogflowToken != "" || c.OpenAIAPIKey != "" || c.GeminiAPIKey != ""
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "hermod.db")
}

// DeadLetterDir returns the directory for dead-letter archives.
func (c *Config) DeadLetterDir() string {
	return filepath.Join(c.DataDir, "deadletter")
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
