package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Feed       FeedConfig       `json:"feed"`
	Enrichment EnrichmentConfig `json:"enrichment"`
	Cache      CacheConfig      `json:"cache"`
	NATS       NATSConfig       `json:"nats"`
	Auth       AuthConfig       `json:"auth"`
	Analytics  AnalyticsConfig  `json:"analytics"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string `json:"allowed_origins"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig contains settings for the optional report archive.
type DatabaseConfig struct {
	// Enabled turns on archiving of analytics summaries
	Enabled bool `json:"enabled"`

	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`

	// Password should be loaded from environment
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	MaxOpenConns int `json:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns"`

	// RetentionDays is how long archived reports are kept
	RetentionDays int `json:"retention_days"`
}

// FeedConfig configures the hourly snapshot feed.
type FeedConfig struct {
	BaseURL        string `json:"base_url"`
	UserAgent      string `json:"user_agent"`
	TimeoutSeconds int    `json:"timeout_seconds"`

	// MaxRetries is the number of retries per hour after the first attempt
	MaxRetries int `json:"max_retries"`
}

// Timeout returns the per-request timeout.
func (f FeedConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// EnrichmentConfig configures the surface temperature service.
type EnrichmentConfig struct {
	// Enabled controls whether sample points are annotated at all
	Enabled bool `json:"enabled"`

	BaseURL string `json:"base_url"`

	// BatchSize is the number of concurrent lookups per batch
	BatchSize int `json:"batch_size"`

	// BatchDelayMS is the pause between batches in milliseconds
	BatchDelayMS int `json:"batch_delay_ms"`

	// RequestsPerSecond caps the overall lookup rate
	RequestsPerSecond float64 `json:"requests_per_second"`

	// TimeoutSeconds bounds a whole annotation pass
	TimeoutSeconds int `json:"timeout_seconds"`
}

// BatchDelay returns the pause between batches.
func (e EnrichmentConfig) BatchDelay() time.Duration {
	return time.Duration(e.BatchDelayMS) * time.Millisecond
}

// Timeout returns the bound on an annotation pass.
func (e EnrichmentConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// CacheConfig selects the temperature cache backend.
type CacheConfig struct {
	// Backend is "memory", "redis" or "none"
	Backend string `json:"backend"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	TTLMinutes int `json:"ttl_minutes"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// NATSConfig configures report publishing.
type NATSConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

// AuthConfig configures bearer tokens for the surface-temperature endpoint.
// An empty secret leaves the endpoint open.
type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	TokenTTLHours int    `json:"token_ttl_hours"`
}

// AnalyticsConfig contains analytics tuning values.
type AnalyticsConfig struct {
	// DefaultSampleSize is used when a request does not choose one
	DefaultSampleSize int `json:"default_sample_size"`

	// AllowedSampleSizes lists the sample sizes a request may ask for
	AllowedSampleSizes []int `json:"allowed_sample_sizes"`

	// ThresholdKm is the reference altitude for the threshold comparison
	ThresholdKm float64 `json:"threshold_km"`

	// PageSize is the default trajectory page size
	PageSize int `json:"page_size"`

	// CollectorIntervalMinutes is how often the collector runs a pass
	CollectorIntervalMinutes int `json:"collector_interval_minutes"`

	// KeyedCorrelation groups points by their feed key when one is present
	KeyedCorrelation bool `json:"keyed_correlation"`
}

// CollectorInterval returns the collector period.
func (a AnalyticsConfig) CollectorInterval() time.Duration {
	return time.Duration(a.CollectorIntervalMinutes) * time.Minute
}

// SampleSizeAllowed reports whether n is one of the allowed sample sizes.
func (a AnalyticsConfig) SampleSizeAllowed(n int) bool {
	for _, s := range a.AllowedSampleSizes {
		if s == n {
			return true
		}
	}
	return false
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// A .env file in the working directory is loaded first when present, and
// BALLOONSCOPE_* environment variables override file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "balloonscope",
			Username:      "balloonscope",
			SSLMode:       "disable",
			MaxOpenConns:  10,
			MaxIdleConns:  2,
			RetentionDays: 30,
		},
		Feed: FeedConfig{
			BaseURL:        "https://a.windbornesystems.com/treasure",
			UserAgent:      "balloonscope/1.0",
			TimeoutSeconds: 10,
			MaxRetries:     2,
		},
		Enrichment: EnrichmentConfig{
			Enabled:           true,
			BaseURL:           "https://api.open-meteo.com",
			BatchSize:         5,
			BatchDelayMS:      600, // stays under the free tier rate limit
			RequestsPerSecond: 10,
			TimeoutSeconds:    60,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			RedisAddr:  "localhost:6379",
			TTLMinutes: 30,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Subject: "balloons.insights",
		},
		Auth: AuthConfig{
			TokenTTLHours: 24,
		},
		Analytics: AnalyticsConfig{
			DefaultSampleSize:        50,
			AllowedSampleSizes:       []int{50, 100, 200},
			ThresholdKm:              8.849, // Mount Everest
			PageSize:                 20,
			CollectorIntervalMinutes: 10,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows secrets to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() error {
	if port := os.Getenv("BALLOONSCOPE_PORT"); port != "" {
		c.Server.Port = port
	}
	if v := os.Getenv("BALLOONSCOPE_DB_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BALLOONSCOPE_DB_ENABLED: %w", err)
		}
		c.Database.Enabled = enabled
	}
	if host := os.Getenv("BALLOONSCOPE_DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if dbPassword := os.Getenv("BALLOONSCOPE_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if feedURL := os.Getenv("BALLOONSCOPE_FEED_URL"); feedURL != "" {
		c.Feed.BaseURL = feedURL
	}
	if backend := os.Getenv("BALLOONSCOPE_CACHE_BACKEND"); backend != "" {
		c.Cache.Backend = backend
	}
	if addr := os.Getenv("BALLOONSCOPE_REDIS_ADDR"); addr != "" {
		c.Cache.RedisAddr = addr
	}
	if pw := os.Getenv("BALLOONSCOPE_REDIS_PASSWORD"); pw != "" {
		c.Cache.RedisPassword = pw
	}
	if url := os.Getenv("BALLOONSCOPE_NATS_URL"); url != "" {
		c.NATS.URL = url
		c.NATS.Enabled = true
	}
	if secret := os.Getenv("BALLOONSCOPE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	return nil
}
