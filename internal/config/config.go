// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Staging struct {
		HistoryLimit  int `json:"history_limit"`
		RetentionDays int `json:"retention_days"`
	} `json:"staging"`

	Validation struct {
		CacheSize   int `json:"cache_size"`
		CacheTTLMin int `json:"cache_ttl_minutes"`
	} `json:"validation"`

	Remote struct {
		BaseURL string `json:"base_url"`
		Token   string `json:"token"`
	} `json:"remote"`

	Environment string `json:"environment"` // dev, prod
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

func Default() *Config {
	var cfg Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8490
	cfg.Database.Path = ".dakforge/db"
	cfg.Staging.HistoryLimit = 10
	cfg.Staging.RetentionDays = 30
	cfg.Validation.CacheSize = 64
	cfg.Validation.CacheTTLMin = 5
	cfg.Remote.BaseURL = "https://api.github.com"
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	return &cfg
}

func getConfigPath() string {
	env := os.Getenv("DAKFORGE_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads a JSON config file, falling back to defaults for a missing
// path so the CLI works without any config on disk.
func Load(path string) (*Config, error) {
	if path == "" {
		path = getConfigPath()
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Validation.CacheTTLMin) * time.Minute
}

func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.Staging.RetentionDays) * 24 * time.Hour
}
