// Package config loads and persists nexarag client configuration.
// Configuration lives in a YAML file (default ~/.nexarag/config.yaml) and can
// be overridden by NEXARAG_-prefixed environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all nexarag client configuration.
type Config struct {
	// Backend endpoints
	Backend BackendConfig `yaml:"backend"`

	// Chat defaults
	Chat ChatConfig `yaml:"chat"`

	// Local transcript archive
	History HistoryConfig `yaml:"history"`

	// Terminal UI
	UI UIConfig `yaml:"ui"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the Nexarag backend connection.
type BackendConfig struct {
	APIBaseURL     string `yaml:"api_base_url"`
	WebSocketURL   string `yaml:"websocket_url"`
	RequestTimeout string `yaml:"request_timeout"`
	ReconnectDelay string `yaml:"reconnect_delay"`
}

// ChatConfig configures chat behavior.
type ChatConfig struct {
	// Model is the preferred model name; empty means "first available".
	Model string `yaml:"model"`
}

// HistoryConfig configures the local sqlite transcript archive.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// UIConfig configures the terminal UI.
type UIConfig struct {
	Theme string `yaml:"theme"` // dark, light
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".nexarag", "config.yaml")
	}
	return filepath.Join(home, ".nexarag", "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			APIBaseURL:     "http://localhost:8000",
			WebSocketURL:   "ws://localhost:8000/ws",
			RequestTimeout: "30s",
			ReconnectDelay: "3s",
		},
		Chat: ChatConfig{
			Model: "",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(filepath.Dir(DefaultPath()), "history.db"),
		},
		UI: UIConfig{
			Theme: "dark",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an error;
// defaults plus environment overrides are returned.
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
	if u := os.Getenv("NEXARAG_API_URL"); u != "" {
		c.Backend.APIBaseURL = u
	}
	if u := os.Getenv("NEXARAG_WS_URL"); u != "" {
		c.Backend.WebSocketURL = u
	}
	if m := os.Getenv("NEXARAG_MODEL"); m != "" {
		c.Chat.Model = m
	}
	if p := os.Getenv("NEXARAG_HISTORY_DB"); p != "" {
		c.History.DatabasePath = p
	}
	if l := os.Getenv("NEXARAG_LOG_LEVEL"); l != "" {
		c.Logging.Level = l
	}
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Backend.APIBaseURL == "" {
		return fmt.Errorf("backend.api_base_url is required")
	}
	if _, err := url.Parse(c.Backend.APIBaseURL); err != nil {
		return fmt.Errorf("invalid backend.api_base_url: %w", err)
	}
	wsURL, err := url.Parse(c.Backend.WebSocketURL)
	if err != nil {
		return fmt.Errorf("invalid backend.websocket_url: %w", err)
	}
	if wsURL.Scheme != "ws" && wsURL.Scheme != "wss" {
		return fmt.Errorf("backend.websocket_url must use ws:// or wss://, got %q", wsURL.Scheme)
	}
	if _, err := time.ParseDuration(c.Backend.RequestTimeout); err != nil {
		return fmt.Errorf("invalid backend.request_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Backend.ReconnectDelay); err != nil {
		return fmt.Errorf("invalid backend.reconnect_delay: %w", err)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	return nil
}

// GetRequestTimeout returns the HTTP request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetReconnectDelay returns the websocket reconnect delay as a duration.
func (c *Config) GetReconnectDelay() time.Duration {
	d, err := time.ParseDuration(c.Backend.ReconnectDelay)
	if err != nil {
		return 3 * time.Second
	}
	return d
}
