package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProxyStrategy configures one CORS relay. An empty prefix means a direct
// fetch; wrapped marks relays that return a {"contents": ...} envelope.
type ProxyStrategy struct {
	Name    string `yaml:"name"`
	Prefix  string `yaml:"prefix"`
	Wrapped bool   `yaml:"wrapped"`
}

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Fetch struct {
		TimeoutSeconds int             `yaml:"timeout_seconds"`
		Proxies        []ProxyStrategy `yaml:"proxies"`
	} `yaml:"fetch"`
	Refresh struct {
		FullIntervalSeconds  int `yaml:"full_interval_seconds"`
		IndexIntervalSeconds int `yaml:"index_interval_seconds"`
	} `yaml:"refresh"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
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
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("FETCH_TIMEOUT_SEC"); v != "" {
		var t int
		if _, err := fmt.Sscanf(v, "%d", &t); err == nil {
			cfg.Fetch.TimeoutSeconds = t
		}
	}
	if v := os.Getenv("REFRESH_INTERVAL_SEC"); v != "" {
		var t int
		if _, err := fmt.Sscanf(v, "%d", &t); err == nil {
			cfg.Refresh.FullIntervalSeconds = t
		}
	}
	if v := os.Getenv("INDEX_INTERVAL_SEC"); v != "" {
		var t int
		if _, err := fmt.Sscanf(v, "%d", &t); err == nil {
			cfg.Refresh.IndexIntervalSeconds = t
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/fundwatch.db"
	}
	if cfg.Fetch.TimeoutSeconds == 0 {
		cfg.Fetch.TimeoutSeconds = 8
	}
	if cfg.Refresh.FullIntervalSeconds == 0 {
		cfg.Refresh.FullIntervalSeconds = 120
	}
	if cfg.Refresh.IndexIntervalSeconds == 0 {
		cfg.Refresh.IndexIntervalSeconds = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

// Validate checks that all required fields are sane.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Fetch.TimeoutSeconds < 1 {
		return fmt.Errorf("fetch.timeout_seconds must be positive")
	}
	if c.Refresh.FullIntervalSeconds < 1 || c.Refresh.IndexIntervalSeconds < 1 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	for i, p := range c.Fetch.Proxies {
		if p.Name == "" {
			return fmt.Errorf("fetch.proxies[%d]: name is required", i)
		}
	}
	return nil
}

// FetchTimeout returns the per-attempt proxy timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FullInterval returns the full-refresh period.
func (c *Config) FullInterval() time.Duration {
	return time.Duration(c.Refresh.FullIntervalSeconds) * time.Second
}

// IndexInterval returns the index-refresh period.
func (c *Config) IndexInterval() time.Duration {
	return time.Duration(c.Refresh.IndexIntervalSeconds) * time.Second
}
