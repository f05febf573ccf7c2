package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Backend struct {
		BaseURL           string  `yaml:"base_url"`
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"backend"`
	Dashboard struct {
		TabID            int64  `yaml:"tab_id"`
		Period           string `yaml:"period"`
		Interval         string `yaml:"interval"`
		Timezone         string `yaml:"timezone"` // IANA name, empty = local
		RefreshMinutes   int    `yaml:"refresh_minutes"`
		SearchDebounceMS int    `yaml:"search_debounce_ms"`
	} `yaml:"dashboard"`
	Hub struct {
		Listen string `yaml:"listen"`
	} `yaml:"hub"`
	Server struct {
		Listen     string `yaml:"listen"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"server"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("MONITOR_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("MONITOR_TIMEZONE"); v != "" {
		cfg.Dashboard.Timezone = v
	}
	if v := os.Getenv("MONITOR_TAB_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Dashboard.TabID = id
		}
	}
	if v := os.Getenv("MONITOR_HUB_LISTEN"); v != "" {
		cfg.Hub.Listen = v
	}
	if v := os.Getenv("SERVER_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Server.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Defaults
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://127.0.0.1:8000"
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 15
	}
	if cfg.Dashboard.Period == "" {
		cfg.Dashboard.Period = "1mo"
	}
	if cfg.Dashboard.Interval == "" {
		cfg.Dashboard.Interval = "1d"
	}
	if cfg.Dashboard.RefreshMinutes == 0 {
		cfg.Dashboard.RefreshMinutes = 15
	}
	if cfg.Dashboard.SearchDebounceMS == 0 {
		cfg.Dashboard.SearchDebounceMS = 300
	}
	if cfg.Hub.Listen == "" {
		cfg.Hub.Listen = "127.0.0.1:8090"
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8000"
	}
	if cfg.Server.SQLitePath == "" {
		cfg.Server.SQLitePath = "data/watchlist.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must not be negative")
	}
	if c.Backend.RequestsPerSecond < 0 {
		return fmt.Errorf("backend.requests_per_second must not be negative")
	}
	if c.Dashboard.RefreshMinutes <= 0 {
		return fmt.Errorf("dashboard.refresh_minutes must be positive")
	}
	if c.Dashboard.SearchDebounceMS < 0 {
		return fmt.Errorf("dashboard.search_debounce_ms must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) RefreshCycle() time.Duration {
	return time.Duration(c.Dashboard.RefreshMinutes) * time.Minute
}

func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.Dashboard.SearchDebounceMS) * time.Millisecond
}

// Location resolves dashboard.timezone; empty means the machine's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Dashboard.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Dashboard.Timezone)
	if err != nil {
		return nil, fmt.Errorf("dashboard.timezone: %w", err)
	}
	return loc, nil
}

// TZOffset returns the user's offset from UTC in seconds at now.
func (c *Config) TZOffset(now time.Time) (int64, error) {
	loc, err := c.Location()
	if err != nil {
		return 0, err
	}
	_, offset := now.In(loc).Zone()
	return int64(offset), nil
}
