// Package config holds the settings for the filtersense server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML structure.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"` // ":9090"; serve refuses to start without one
	} `yaml:"server"`

	Store struct {
		Path string `yaml:"path"` // SQLite file; empty disables the check log
	} `yaml:"store"`

	Rules struct {
		Path  string `yaml:"path"`  // optional rule pack (.yaml/.yml/.toml)
		Watch bool   `yaml:"watch"` // reload the pack when it changes
	} `yaml:"rules"`

	Logging struct {
		Format string `yaml:"format"` // "text"|"json"
		Level  string `yaml:"level"`  // "debug"|"info"|"warn"|"error"
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Server.Addr = ":9090"
	c.Store.Path = DefaultDBPath()
	c.Logging.Format = "text"
	c.Logging.Level = "info"
	return c
}

// Load starts from Default, applies the YAML file at path (if path is
// not empty) and then FILTERSENSE_* environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&c)
	return c, nil
}

func applyEnv(c *Config) {
	if v, ok := os.LookupEnv("FILTERSENSE_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := os.LookupEnv("FILTERSENSE_DB"); ok {
		c.Store.Path = v
	}
	if v := os.Getenv("FILTERSENSE_RULES"); v != "" {
		c.Rules.Path = v
	}
	if v := os.Getenv("FILTERSENSE_WATCH_RULES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Rules.Watch = b
		}
	}
	if v := os.Getenv("FILTERSENSE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("FILTERSENSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// DefaultDBPath is ~/.filtersense/checks.db. The directory is created
// by the store when it is opened.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".filtersense", "checks.db")
}
