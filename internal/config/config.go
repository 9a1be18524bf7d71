// Package config provides application configuration management using environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	Discogs    DiscogsConfig
	BGG        BGGConfig
	Hardcover  HardcoverConfig
	ITunes     ITunesConfig
	Sync       SyncConfig
	Cache      CacheConfig
	ImageCache ImageCacheConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort string
	GRPCPort string
	Host     string
	Env      string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver       string // "postgres" or "memory"
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// DiscogsConfig holds the music marketplace account settings
type DiscogsConfig struct {
	Username     string
	Token        string
	RequestDelay time.Duration
}

// Enabled reports whether the Discogs source should be synced
func (c DiscogsConfig) Enabled() bool { return c.Username != "" }

// BGGConfig holds the board game account settings. Requests are spaced
// at twice the Discogs delay.
type BGGConfig struct {
	Username     string
	Token        string
	RequestDelay time.Duration
}

// Enabled reports whether the BoardGameGeek source should be synced
func (c BGGConfig) Enabled() bool { return c.Username != "" }

// HardcoverConfig holds the reading tracker settings
type HardcoverConfig struct {
	Token             string
	RequestsPerMinute int
}

// Enabled reports whether the Hardcover source should be synced
func (c HardcoverConfig) Enabled() bool { return c.Token != "" }

// ITunesConfig holds settings for the secondary high-resolution artwork source
type ITunesConfig struct {
	Enabled           bool
	Country           string
	RequestsPerMinute int
	ArtworkSize       int
}

// SyncConfig holds orchestrator settings
type SyncConfig struct {
	Interval   time.Duration
	OnStartup  bool
	BatchSize  int
	BatchPause time.Duration
}

// CacheConfig holds TTL cache settings
type CacheConfig struct {
	DefaultTTL    time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

// ImageCacheConfig holds image acquisition settings
type ImageCacheConfig struct {
	Dir          string
	URLPrefix    string
	MaxDimension int
	Quality      int
	FetchTimeout time.Duration
}

// Load loads configuration from environment variables
// It optionally loads from a .env file if it exists
func Load() (*Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50051"),
		Host:     getEnv("SERVER_HOST", "localhost"),
		Env:      getEnv("ENVIRONMENT", "development"),
	}

	cfg.Database = DatabaseConfig{
		Driver:       getEnv("STORE_DRIVER", "postgres"),
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", "shelfsync"),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", "shelfsync_db"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	discogsDelay := getEnvDuration("DISCOGS_REQUEST_DELAY_MS", 1000, time.Millisecond)
	cfg.Discogs = DiscogsConfig{
		Username:     getEnv("DISCOGS_USERNAME", ""),
		Token:        getEnv("DISCOGS_TOKEN", ""),
		RequestDelay: discogsDelay,
	}
	cfg.BGG = BGGConfig{
		Username:     getEnv("BGG_USERNAME", ""),
		Token:        getEnv("BGG_TOKEN", ""),
		RequestDelay: 2 * discogsDelay,
	}
	cfg.Hardcover = HardcoverConfig{
		Token:             strings.TrimPrefix(getEnv("HARDCOVER_TOKEN", ""), "Bearer "),
		RequestsPerMinute: getEnvInt("HARDCOVER_REQUESTS_PER_MINUTE", 60),
	}
	cfg.ITunes = ITunesConfig{
		Enabled:           getEnvBool("ITUNES_ENABLED", true),
		Country:           getEnv("ITUNES_COUNTRY", "us"),
		RequestsPerMinute: getEnvInt("ITUNES_REQUESTS_PER_MINUTE", 20),
		ArtworkSize:       getEnvInt("ITUNES_ARTWORK_SIZE", 1200),
	}

	cfg.Sync = SyncConfig{
		Interval:   getEnvDuration("SYNC_INTERVAL_MINUTES", 360, time.Minute),
		OnStartup:  getEnvBool("SYNC_ON_STARTUP", true),
		BatchSize:  getEnvInt("SYNC_BATCH_SIZE", 3),
		BatchPause: getEnvDuration("SYNC_BATCH_PAUSE_MS", 1000, time.Millisecond),
	}

	cfg.Cache = CacheConfig{
		DefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL_SECONDS", 300, time.Second),
		MaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", 1000),
		SweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL_SECONDS", 60, time.Second),
	}

	cfg.ImageCache = ImageCacheConfig{
		Dir:          getEnv("IMAGE_CACHE_DIR", "data/images"),
		URLPrefix:    strings.TrimRight(getEnv("IMAGE_URL_PREFIX", "/images"), "/"),
		MaxDimension: getEnvInt("IMAGE_MAX_DIMENSION", 1200),
		Quality:      getEnvInt("IMAGE_QUALITY", 85),
		FetchTimeout: getEnvDuration("IMAGE_FETCH_TIMEOUT_SECONDS", 15, time.Second),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: postgres, memory")
	}

	if c.Discogs.Enabled() && c.Discogs.Token == "" {
		return fmt.Errorf("DISCOGS_TOKEN is required when DISCOGS_USERNAME is set")
	}
	if c.Discogs.RequestDelay <= 0 {
		return fmt.Errorf("DISCOGS_REQUEST_DELAY_MS must be positive")
	}
	if c.Hardcover.RequestsPerMinute <= 0 {
		return fmt.Errorf("HARDCOVER_REQUESTS_PER_MINUTE must be positive")
	}
	if c.ITunes.RequestsPerMinute <= 0 {
		return fmt.Errorf("ITUNES_REQUESTS_PER_MINUTE must be positive")
	}
	if c.ITunes.ArtworkSize < 100 {
		return fmt.Errorf("ITUNES_ARTWORK_SIZE must be at least 100")
	}

	if c.Sync.Interval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL_MINUTES must be positive")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive")
	}
	if c.Sync.BatchPause < 0 {
		return fmt.Errorf("SYNC_BATCH_PAUSE_MS must not be negative")
	}

	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL_SECONDS must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("CACHE_SWEEP_INTERVAL_SECONDS must be positive")
	}

	if c.ImageCache.Dir == "" {
		return fmt.Errorf("IMAGE_CACHE_DIR is required")
	}
	if c.ImageCache.MaxDimension <= 0 {
		return fmt.Errorf("IMAGE_MAX_DIMENSION must be positive")
	}
	if c.ImageCache.Quality < 1 || c.ImageCache.Quality > 100 {
		return fmt.Errorf("IMAGE_QUALITY must be between 1 and 100")
	}
	if c.ImageCache.FetchTimeout <= 0 {
		return fmt.Errorf("IMAGE_FETCH_TIMEOUT_SECONDS must be positive")
	}

	// Validate Logging Config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt parses an integer variable, falling back on missing or malformed values
func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration reads an integer count of unit
func getEnvDuration(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * unit
}
