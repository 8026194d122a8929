package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend.APIBaseURL != "http://localhost:8000" {
		t.Errorf("expected default api_base_url, got %s", cfg.Backend.APIBaseURL)
	}
	if cfg.Backend.ReconnectDelay != "3s" {
		t.Errorf("expected reconnect_delay=3s, got %s", cfg.Backend.ReconnectDelay)
	}
	if !cfg.History.Enabled {
		t.Error("expected history enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("NEXARAG_API_URL", "")
	t.Setenv("NEXARAG_WS_URL", "")
	t.Setenv("NEXARAG_MODEL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Backend.APIBaseURL = "http://kg.example.org:9000"
	cfg.Chat.Model = "llama3"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Backend.APIBaseURL != "http://kg.example.org:9000" {
		t.Errorf("expected saved api_base_url, got %s", loaded.Backend.APIBaseURL)
	}
	if loaded.Chat.Model != "llama3" {
		t.Errorf("expected Model=llama3, got %s", loaded.Chat.Model)
	}
}

func TestConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("NEXARAG_API_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file should not error: %v", err)
	}
	if cfg.Backend.WebSocketURL != "ws://localhost:8000/ws" {
		t.Errorf("expected default websocket_url, got %s", cfg.Backend.WebSocketURL)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	os.Setenv("NEXARAG_API_URL", "http://env-host:8000")
	defer os.Unsetenv("NEXARAG_API_URL")
	os.Setenv("NEXARAG_MODEL", "mistral")
	defer os.Unsetenv("NEXARAG_MODEL")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Backend.APIBaseURL != "http://env-host:8000" {
		t.Errorf("expected env api url, got %s", cfg.Backend.APIBaseURL)
	}
	if cfg.Chat.Model != "mistral" {
		t.Errorf("expected Model=mistral, got %s", cfg.Chat.Model)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty api url", func(c *Config) { c.Backend.APIBaseURL = "" }, true},
		{"http websocket url", func(c *Config) { c.Backend.WebSocketURL = "http://localhost:8000/ws" }, true},
		{"bad timeout", func(c *Config) { c.Backend.RequestTimeout = "soon" }, true},
		{"bad reconnect delay", func(c *Config) { c.Backend.ReconnectDelay = "later" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"wss allowed", func(c *Config) { c.Backend.WebSocketURL = "wss://kg.example.org/ws" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.RequestTimeout = "garbage"
	cfg.Backend.ReconnectDelay = "garbage"

	if got := cfg.GetRequestTimeout().Seconds(); got != 30 {
		t.Errorf("expected 30s fallback, got %vs", got)
	}
	if got := cfg.GetReconnectDelay().Seconds(); got != 3 {
		t.Errorf("expected 3s fallback, got %vs", got)
	}
}
