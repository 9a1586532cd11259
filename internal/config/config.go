// Package config loads the adbview configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	// Addr is the address of the ADB host server.
	Addr string `yaml:"addr"`

	DialTimeout time.Duration `yaml:"dial_timeout,omitempty"`
	IdleTimeout time.Duration `yaml:"idle_timeout,omitempty"`

	// Compression lists the sync compression methods to accept, in order of
	// preference. If empty, all supported methods are accepted.
	Compression []string `yaml:"compression,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// History enables recording device sightings.
	History bool `yaml:"history"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "localhost:5037",
		DialTimeout: 5 * time.Second,
		LogLevel:    "warn",
		LogFormat:   "text",
		History:     true,
	}
}

// ConfigDir returns the config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "adbview")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "adbview")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads the config file, returning defaults if it doesn't exist. If path
// is empty, [ConfigPath] is used. Environment variables override the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("ANDROID_ADB_SERVER_PORT"); port != "" {
		c.Addr = net.JoinHostPort("localhost", port)
	}
	if addr := os.Getenv("ADBVIEW_ADDR"); addr != "" {
		c.Addr = addr
	}
}

// Save writes the config to path, or [ConfigPath] if empty.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
