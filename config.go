package kiroku

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all SDK configuration.
type Config struct {
	// Backend settings.
	RepositoryID string // Repository the commit log is delivered to.
	BaseURL      string // Root URL of the logging backend.
	APIKey       string // Secret used to obtain a JWT token.
	Timeout      time.Duration

	// Behavior settings.
	RaiseExceptions bool // Strict id validation: fail instead of repair.

	// Writer settings.
	FlushInterval time.Duration
	MaxBatchSize  int
	MaxQueueSize  int

	// Write-ahead log settings. Empty WALDir disables the log.
	WALDir      string
	WALSyncMode string // "full", "batch", or "none".

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
}

// LoadConfig reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first, if
// present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		RepositoryID:    envStr("KIROKU_REPOSITORY_ID", ""),
		BaseURL:         envStr("KIROKU_BASE_URL", "http://localhost:8080"),
		APIKey:          envStr("KIROKU_API_KEY", ""),
		Timeout:         envDuration("KIROKU_TIMEOUT", 30*time.Second),
		RaiseExceptions: envBool("KIROKU_RAISE_EXCEPTIONS", false),
		FlushInterval:   envDuration("KIROKU_FLUSH_INTERVAL", defaultFlushInterval),
		MaxBatchSize:    envInt("KIROKU_MAX_BATCH_SIZE", defaultMaxBatchSize),
		MaxQueueSize:    envInt("KIROKU_MAX_QUEUE_SIZE", defaultMaxQueueSize),
		WALDir:          envStr("KIROKU_WAL_DIR", ""),
		WALSyncMode:     envStr("KIROKU_WAL_SYNC_MODE", "batch"),
		OTELEndpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     envStr("OTEL_SERVICE_NAME", "kiroku"),
	}
	return cfg, nil
}

// Validate checks that required configuration is present. Called by New
// after option overrides are applied.
func (c Config) Validate() error {
	if c.RepositoryID == "" {
		return fmt.Errorf("config: KIROKU_REPOSITORY_ID is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("config: KIROKU_BASE_URL is required")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("config: KIROKU_MAX_BATCH_SIZE must be positive")
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("config: KIROKU_MAX_QUEUE_SIZE must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
