// Package common provides shared utilities for fundwatch
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for fundwatch
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Refresh     RefreshConfig `toml:"refresh"`
	Session     SessionConfig `toml:"session"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects the key-value backend holding holdings, percent status,
// sort preference and trend history.
type StorageConfig struct {
	Backend string `toml:"backend"` // "badger" (default) or "memory"
	Path    string `toml:"path"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Eastmoney EastmoneyConfig `toml:"eastmoney"`
}

// EastmoneyConfig holds quote provider configuration.
// Transport "relay" routes every call through a host messaging endpoint instead
// of calling the provider directly.
type EastmoneyConfig struct {
	EstimateBaseURL string `toml:"estimate_base_url"`
	RealBaseURL     string `toml:"real_base_url"`
	SearchBaseURL   string `toml:"search_base_url"`
	RateLimit       int    `toml:"rate_limit"`
	Timeout         string `toml:"timeout"`
	Transport       string `toml:"transport"`
	RelayURL        string `toml:"relay_url"`
}

// GetTimeout parses and returns the timeout duration
func (c *EastmoneyConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 8 * time.Second
	}
	return d
}

// RefreshConfig holds scheduler tuning.
type RefreshConfig struct {
	Interval       string `toml:"interval"`
	MaxRetries     int    `toml:"max_retries"`
	RetryDelay     string `toml:"retry_delay"`
	RecalcDebounce string `toml:"recalc_debounce"`
	TrendMaxPoints int    `toml:"trend_max_points"`
}

// GetInterval returns the periodic refresh interval
func (c *RefreshConfig) GetInterval() time.Duration {
	return parseDurationOr(c.Interval, 60*time.Second)
}

// GetRetryDelay returns the delay between retry attempts
func (c *RefreshConfig) GetRetryDelay() time.Duration {
	return parseDurationOr(c.RetryDelay, time.Second)
}

// GetRecalcDebounce returns the trailing-edge window for edit-driven recalculation
func (c *RefreshConfig) GetRecalcDebounce() time.Duration {
	return parseDurationOr(c.RecalcDebounce, 60*time.Millisecond)
}

// SessionConfig holds the trading window boundaries as HH:MM in UTC+8.
type SessionConfig struct {
	MorningStart string `toml:"morning_start"`
	AfternoonEnd string `toml:"afternoon_end"`
	EveningStart string `toml:"evening_start"`
	EveningEnd   string `toml:"evening_end"`
	MarketOpen   string `toml:"market_open"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4280,
		},
		Storage: StorageConfig{
			Backend: "badger",
			Path:    "data/fundwatch",
		},
		Clients: ClientsConfig{
			Eastmoney: EastmoneyConfig{
				EstimateBaseURL: "https://fundgz.1234567.com.cn/js",
				RealBaseURL:     "https://fundf10.eastmoney.com",
				SearchBaseURL:   "https://fundsuggest.eastmoney.com",
				RateLimit:       10,
				Timeout:         "8s",
				Transport:       "direct",
			},
		},
		Refresh: RefreshConfig{
			Interval:       "60s",
			MaxRetries:     3,
			RetryDelay:     "1s",
			RecalcDebounce: "60ms",
			TrendMaxPoints: 480,
		},
		Session: SessionConfig{
			MorningStart: "09:20",
			AfternoonEnd: "15:10",
			EveningStart: "18:00",
			EveningEnd:   "22:00",
			MarketOpen:   "09:30",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			Outputs:  []string{"console"},
			FilePath: "./logs/fundwatch.log",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is loaded first when present.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FUNDWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FUNDWATCH_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FUNDWATCH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FUNDWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("FUNDWATCH_DATA_PATH"); path != "" {
		config.Storage.Path = filepath.Join(path, "fundwatch")
	}

	if backend := os.Getenv("FUNDWATCH_STORAGE"); backend != "" {
		config.Storage.Backend = strings.ToLower(backend)
	}

	if transport := os.Getenv("FUNDWATCH_TRANSPORT"); transport != "" {
		config.Clients.Eastmoney.Transport = strings.ToLower(transport)
	}

	if relay := os.Getenv("FUNDWATCH_RELAY_URL"); relay != "" {
		config.Clients.Eastmoney.RelayURL = relay
	}

	if interval := os.Getenv("FUNDWATCH_REFRESH_INTERVAL"); interval != "" {
		config.Refresh.Interval = interval
	}
}

// Validate checks values that would otherwise fail later in obscure ways.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"session.morning_start": c.Session.MorningStart,
		"session.afternoon_end": c.Session.AfternoonEnd,
		"session.evening_start": c.Session.EveningStart,
		"session.evening_end":   c.Session.EveningEnd,
		"session.market_open":   c.Session.MarketOpen,
	} {
		if _, err := ParseClock(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	switch c.Storage.Backend {
	case "", "badger", "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s (supported: badger, memory)", c.Storage.Backend)
	}

	switch c.Clients.Eastmoney.Transport {
	case "", "direct":
	case "relay":
		if c.Clients.Eastmoney.RelayURL == "" {
			return fmt.Errorf("clients.eastmoney.relay_url is required for relay transport")
		}
	default:
		return fmt.Errorf("unknown transport: %s (supported: direct, relay)", c.Clients.Eastmoney.Transport)
	}

	if c.Refresh.MaxRetries < 0 {
		return fmt.Errorf("refresh.max_retries must not be negative")
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
