package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (optional, ranking snapshot archive)
	Database DatabaseConfig

	// Redis (ranking store)
	Redis RedisConfig

	// Price feed
	Feed FeedConfig

	// Ranking engine
	Ranking RankingConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// DatabaseConfig holds PostgreSQL configuration for the ranking archive.
// The archive is disabled when URL is empty.
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FeedConfig holds the price feed (WebSocket push + REST poll) configuration
type FeedConfig struct {
	WSURL  string
	APIURL string // REST base for batched price polls
	APIKey string

	MaxSubscriptions     int
	PollInterval         time.Duration
	PollTimeout          time.Duration
	PingInterval         time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
}

// RankingConfig holds ranking engine parameters
type RankingConfig struct {
	WinThreshold  float64 // gain over initial price that counts as a win
	ResetTimezone string  // IANA zone for the daily reset instant
	SnapshotLimit int     // rows archived per ranking before reset
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		Feed: FeedConfig{
			WSURL:                getEnv("FEED_WSS_URL", "wss://wss.ave-api.xyz"),
			APIURL:               getEnv("FEED_API_URL", "https://prod.ave-api.com"),
			APIKey:               getEnv("FEED_API_KEY", ""),
			MaxSubscriptions:     getEnvAsInt("FEED_MAX_SUBSCRIPTIONS", 200),
			PollInterval:         getEnvAsDuration("FEED_POLL_INTERVAL", "30s"),
			PollTimeout:          getEnvAsDuration("FEED_POLL_TIMEOUT", "30s"),
			PingInterval:         getEnvAsDuration("FEED_PING_INTERVAL", "30s"),
			ReconnectBaseDelay:   getEnvAsDuration("FEED_RECONNECT_DELAY", "5s"),
			MaxReconnectAttempts: getEnvAsInt("FEED_MAX_RECONNECT_ATTEMPTS", 10),
		},

		Ranking: RankingConfig{
			WinThreshold:  getEnvAsFloat("RANKING_WIN_THRESHOLD", 0.5),
			ResetTimezone: getEnv("RANKING_RESET_TZ", "Asia/Shanghai"),
			SnapshotLimit: getEnvAsInt("RANKING_SNAPSHOT_LIMIT", 100),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Feed.MaxSubscriptions <= 0 {
		return fmt.Errorf("FEED_MAX_SUBSCRIPTIONS must be positive")
	}

	if c.Ranking.WinThreshold <= 0 {
		return fmt.Errorf("RANKING_WIN_THRESHOLD must be positive")
	}

	if _, err := time.LoadLocation(c.Ranking.ResetTimezone); err != nil {
		return fmt.Errorf("RANKING_RESET_TZ is not a valid timezone: %w", err)
	}

	return nil
}

// ArchiveEnabled reports whether the ranking snapshot archive is configured
func (c *Config) ArchiveEnabled() bool {
	return c.Database.URL != ""
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			_ = godotenv.Load(absPath)
			return
		}
	}
}

// getEnv reads an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as int with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat reads an environment variable as float64 with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads an environment variable as time.Duration with a default value
func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		fallback, _ := time.ParseDuration(defaultValue)
		return fallback
	}
	return value
}
