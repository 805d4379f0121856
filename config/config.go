// Package config loads and saves Kestrel's user configuration.
//
// The config lives at $CONFIG/config.yaml (see the paths package). All fields
// are optional; missing fields are filled in with defaults so a partial or
// absent config file is always valid.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-app/kestrel-core/paths"
)

// Default truncation caps. These are presentation-tuning constants: the core
// only guarantees cap-and-report-total consistency, so they are configurable.
const (
	DefaultPreviewLines = 20   // stdout/file content preview line cap
	DefaultStderrChars  = 2000 // stderr character budget
	DefaultValueChars   = 500  // permission input summary value cap
	DefaultMaxFilenames = 15   // Glob/Grep filename listing cap
	DefaultEventBuffer  = 256  // coordinator inbound event channel size
)

// DefaultBridgeURL is where the assistant bridge listens when not
// configured otherwise.
const DefaultBridgeURL = "ws://127.0.0.1:8787/ws"

// Limits holds the size caps applied to tool activity records and
// permission summaries before storage.
type Limits struct {
	PreviewLines int `yaml:"preview_lines,omitempty"`
	StderrChars  int `yaml:"stderr_chars,omitempty"`
	ValueChars   int `yaml:"value_chars,omitempty"`
	MaxFilenames int `yaml:"max_filenames,omitempty"`
}

// Config holds the application configuration
type Config struct {
	Limits      Limits `yaml:"limits,omitempty"`
	EventBuffer int    `yaml:"event_buffer,omitempty"` // Coordinator channel size
	BridgeURL   string `yaml:"bridge_url,omitempty"`   // WebSocket URL of the assistant bridge
	Debug       bool   `yaml:"debug,omitempty"`        // Enable debug logging

	mu       sync.RWMutex
	filePath string
}

// DefaultLimits returns the truncation caps used when no config file overrides them.
func DefaultLimits() Limits {
	return Limits{
		PreviewLines: DefaultPreviewLines,
		StderrChars:  DefaultStderrChars,
		ValueChars:   DefaultValueChars,
		MaxFilenames: DefaultMaxFilenames,
	}
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	return &Config{
		Limits:      DefaultLimits(),
		EventBuffer: DefaultEventBuffer,
		BridgeURL:   DefaultBridgeURL,
	}
}

// Load reads the config from disk, or returns a default config if the file
// does not exist.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config from an explicit path. Missing file is not an
// error; a default config bound to that path is returned instead.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in zero-valued fields. A zero cap would silently store
// nothing, so zeros always mean "unset" here.
func (c *Config) applyDefaults() {
	if c.Limits.PreviewLines <= 0 {
		c.Limits.PreviewLines = DefaultPreviewLines
	}
	if c.Limits.StderrChars <= 0 {
		c.Limits.StderrChars = DefaultStderrChars
	}
	if c.Limits.ValueChars <= 0 {
		c.Limits.ValueChars = DefaultValueChars
	}
	if c.Limits.MaxFilenames <= 0 {
		c.Limits.MaxFilenames = DefaultMaxFilenames
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.BridgeURL == "" {
		c.BridgeURL = DefaultBridgeURL
	}
}

// GetLimits returns a copy of the configured truncation caps.
func (c *Config) GetLimits() Limits {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Limits
}

// Save writes the config to disk, creating the directory if needed.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filePath == "" {
		path, err := paths.ConfigFilePath()
		if err != nil {
			return err
		}
		c.filePath = path
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
