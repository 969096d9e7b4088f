// Package config handles configuration loading and validation for the traffic pilot service.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Stealth StealthConfig `yaml:"stealth"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Events  EventsConfig  `yaml:"events"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// ServerConfig holds HTTP boundary settings
type ServerConfig struct {
	Address            string `yaml:"address"`
	StaticDir          string `yaml:"static_dir"`
	StartRatePerMinute int    `yaml:"start_rate_per_minute"`
	StartBurst         int    `yaml:"start_burst"`
}

// BrowserConfig holds browser factory settings applied to every session
type BrowserConfig struct {
	Headless                 bool   `yaml:"headless"`
	BinPath                  string `yaml:"bin_path"`
	ViewportWidth            int    `yaml:"viewport_width"`
	ViewportHeight           int    `yaml:"viewport_height"`
	NavigationTimeoutSeconds int    `yaml:"navigation_timeout_seconds"`
	RandomizeUserAgent       bool   `yaml:"randomize_user_agent"`
}

// StealthConfig holds cursor movement settings
type StealthConfig struct {
	MouseSpeedMin   float64 `yaml:"mouse_speed_min"`
	MouseSpeedMax   float64 `yaml:"mouse_speed_max"`
	EnableOvershoot bool    `yaml:"enable_overshoot"`
}

// SessionConfig holds orchestration limits
type SessionConfig struct {
	// 0 means unlimited
	MaxConcurrent int `yaml:"max_concurrent"`

	// Hard ceiling on the video watch phase regardless of the requested duration
	WatchCeilingSeconds        int     `yaml:"watch_ceiling_seconds"`
	DefaultWatchMinutes        float64 `yaml:"default_watch_minutes"`
	WatchScrollIntervalSeconds int     `yaml:"watch_scroll_interval_seconds"`
	ResultTimeoutSeconds       int     `yaml:"result_timeout_seconds"`
}

// StorageConfig holds status store settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Finished sessions are forgotten after this long; 0 keeps them until restart
	RetentionMinutes int `yaml:"retention_minutes"`
}

// EventsConfig holds optional event forwarding settings
type EventsConfig struct {
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// Default returns a config populated with defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:            ":3000",
			StaticDir:          "./public",
			StartRatePerMinute: 30,
			StartBurst:         5,
		},
		Browser: BrowserConfig{
			Headless:                 true,
			ViewportWidth:            1920,
			ViewportHeight:           1080,
			NavigationTimeoutSeconds: 30,
		},
		Stealth: StealthConfig{
			MouseSpeedMin:   0.5,
			MouseSpeedMax:   2.0,
			EnableOvershoot: true,
		},
		Session: SessionConfig{
			MaxConcurrent:              0,
			WatchCeilingSeconds:        60,
			DefaultWatchMinutes:        10,
			WatchScrollIntervalSeconds: 10,
			ResultTimeoutSeconds:       10,
		},
		Storage: StorageConfig{
			DatabasePath:     ":memory:",
			RetentionMinutes: 60,
		},
		Events: EventsConfig{
			NATSSubject: "trafficpilot.status",
		},
		LogLevel: "info",
	}
}

// Load reads configuration from YAML file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := Default()

	// Load YAML config if file exists
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.loadEnvOverrides()

	return cfg, nil
}

// loadEnvOverrides applies environment variable overrides to config
func (c *Config) loadEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = ":" + strings.TrimPrefix(v, ":")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	if v := os.Getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}

	if v := os.Getenv("HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("CHROME_BIN"); v != "" {
		c.Browser.BinPath = v
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}

	if v := os.Getenv("NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}

	if v := os.Getenv("MAX_CONCURRENT_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.MaxConcurrent = n
		}
	}

	if v := os.Getenv("WATCH_CEILING_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.WatchCeilingSeconds = n
		}
	}
}

// NavigationTimeout returns the per-navigation bound
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return time.Duration(b.NavigationTimeoutSeconds) * time.Second
}

// WatchCeiling returns the hard upper bound of a watch phase
func (s SessionConfig) WatchCeiling() time.Duration {
	return time.Duration(s.WatchCeilingSeconds) * time.Second
}

// WatchScrollInterval returns the period of the watch-phase scroll
func (s SessionConfig) WatchScrollInterval() time.Duration {
	return time.Duration(s.WatchScrollIntervalSeconds) * time.Second
}

// ResultTimeout returns how long to wait for the result list
func (s SessionConfig) ResultTimeout() time.Duration {
	return time.Duration(s.ResultTimeoutSeconds) * time.Second
}

// DefaultWatch returns the watch duration used when a session requests none
func (s SessionConfig) DefaultWatch() time.Duration {
	return time.Duration(s.DefaultWatchMinutes * float64(time.Minute))
}

// Retention returns how long finished session statuses are kept
func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionMinutes) * time.Minute
}
