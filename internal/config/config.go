package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the harness and the journal server
type Config struct {
	Network   NetworkConfig
	Retry     RetryConfig
	Confirm   ConfirmConfig
	Project   ProjectConfig
	Server    ServerConfig
	Storage   StorageConfig
	Journal   JournalConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
}

// NetworkConfig holds the ledger endpoint and signing credentials
type NetworkConfig struct {
	RPCURL         string
	ChainID        int64 // 0 accepts whatever the node reports
	PrivateKey     string
	KeyFile        string
	RequestTimeout int // seconds, per RPC request
	RequestsPerSec int // 0 disables the outbound limiter
	Burst          int
}

// RetryConfig bounds retries of network errors
type RetryConfig struct {
	MaxAttempts       int
	InitialIntervalMs int
	MaxIntervalMs     int
}

// ConfirmConfig controls the confirmation wait
type ConfirmConfig struct {
	TimeoutSec       int
	PollIntervalMs   int
	Confirmations    int
	FallbackGasLimit uint64
	CodeCheck        bool
}

// ProjectConfig locates the compiled contract artifacts
type ProjectConfig struct {
	Dir     string
	Builder string // "hardhat", "foundry" or "" for auto-detect
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
	APIKey       string
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// JournalConfig points --record at a remote journal server instead of local storage
type JournalConfig struct {
	URL    string
	APIKey string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds inbound rate limiting settings for the server
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// MetricsConfig toggles Prometheus collection
type MetricsConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Network: NetworkConfig{
			RPCURL:         getEnv("RPC_URL", "http://127.0.0.1:8545"),
			ChainID:        int64(getEnvInt("CHAIN_ID", 0)),
			PrivateKey:     getEnv("PRIVATE_KEY", ""),
			KeyFile:        getEnv("PRIVATE_KEY_FILE", ""),
			RequestTimeout: getEnvInt("RPC_REQUEST_TIMEOUT", 15),
			RequestsPerSec: getEnvInt("RPC_RATE_LIMIT", 20),
			Burst:          getEnvInt("RPC_RATE_BURST", 5),
		},
		Retry: RetryConfig{
			MaxAttempts:       getEnvInt("RPC_RETRY_ATTEMPTS", 5),
			InitialIntervalMs: getEnvInt("RPC_RETRY_INITIAL_MS", 250),
			MaxIntervalMs:     getEnvInt("RPC_RETRY_MAX_MS", 5000),
		},
		Confirm: ConfirmConfig{
			TimeoutSec:       getEnvInt("CONFIRM_TIMEOUT", 120),
			PollIntervalMs:   getEnvInt("CONFIRM_POLL_INTERVAL_MS", 1000),
			Confirmations:    getEnvInt("CONFIRMATIONS", 1),
			FallbackGasLimit: uint64(getEnvInt("FALLBACK_GAS_LIMIT", 6_000_000)),
			CodeCheck:        getEnvBool("CODE_CHECK", true),
		},
		Project: ProjectConfig{
			Dir:     getEnv("PROJECT_DIR", "."),
			Builder: getEnv("BUILDER", ""),
		},
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			APIKey:       getEnv("SERVER_API_KEY", ""),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/contraharness.db"),
			},
		},
		Journal: JournalConfig{
			URL:    getEnv("JOURNAL_URL", ""),
			APIKey: getEnv("JOURNAL_API_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the harness cannot run with
func (c *Config) Validate() error {
	if c.Network.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.Network.ChainID < 0 {
		return fmt.Errorf("CHAIN_ID must not be negative")
	}
	if c.Confirm.Confirmations < 1 {
		return fmt.Errorf("CONFIRMATIONS must be at least 1")
	}
	if c.Confirm.TimeoutSec <= 0 {
		return fmt.Errorf("CONFIRM_TIMEOUT must be positive")
	}
	if c.Confirm.PollIntervalMs <= 0 {
		return fmt.Errorf("CONFIRM_POLL_INTERVAL_MS must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RPC_RETRY_ATTEMPTS must be at least 1")
	}
	switch c.Storage.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.Storage.Type)
	}
	return nil
}

// ConfirmTimeout returns the confirmation wait timeout
func (c ConfirmConfig) ConfirmTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// PollInterval returns the receipt polling interval
func (c ConfirmConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Timeout returns the per-request RPC timeout
func (n NetworkConfig) Timeout() time.Duration {
	return time.Duration(n.RequestTimeout) * time.Second
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
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
