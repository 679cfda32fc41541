// Package config loads tracekit tool configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tracekit tool configuration.
type Config struct {
	// Demultiplexer settings
	Demux DemuxConfig `yaml:"demux"`

	// Stack capture settings
	Callstack CallstackConfig `yaml:"callstack"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DemuxConfig configures demultiplexer consumers.
type DemuxConfig struct {
	// TimeoutSeconds bounds how long a consumer waits for its key.
	// Zero waits forever.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the configured wait bound as a duration.
func (c DemuxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CallstackConfig configures stack captures.
type CallstackConfig struct {
	// ExcludePrefixes hides functions whose qualified name starts with
	// one of these prefixes, e.g. "runtime.".
	ExcludePrefixes []string `yaml:"exclude_prefixes"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // console encoder, caller info
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Demux: DemuxConfig{
			TimeoutSeconds: 5,
		},
		Callstack: CallstackConfig{
			ExcludePrefixes: []string{"runtime."},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("TRACEKIT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if dev := os.Getenv("TRACEKIT_LOG_DEV"); dev != "" {
		if v, err := strconv.ParseBool(dev); err == nil {
			c.Logging.Development = v
		}
	}
	if timeout := os.Getenv("TRACEKIT_DEMUX_TIMEOUT"); timeout != "" {
		if v, err := strconv.Atoi(timeout); err == nil && v >= 0 {
			c.Demux.TimeoutSeconds = v
		}
	}
}
