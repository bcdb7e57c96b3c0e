// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %q, want 0.0.0.0:8080", cfg.Server.Addr())
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Errorf("NATS.URL = %q, want nats://127.0.0.1:4222", cfg.NATS.URL)
	}
	if !cfg.NATS.EmbeddedServer {
		t.Error("NATS.EmbeddedServer should be true by default")
	}
	if cfg.Ingest.Source != "jetstream" {
		t.Errorf("Ingest.Source = %q, want jetstream", cfg.Ingest.Source)
	}
	if cfg.Ingest.Partitions != 8 {
		t.Errorf("Ingest.Partitions = %d, want 8", cfg.Ingest.Partitions)
	}
	if cfg.Ingest.RetryMaxAttempts != 3 {
		t.Errorf("Ingest.RetryMaxAttempts = %d, want 3", cfg.Ingest.RetryMaxAttempts)
	}
	if cfg.Presence.KeyPrefix != "pulse:presence" {
		t.Errorf("Presence.KeyPrefix = %q, want pulse:presence", cfg.Presence.KeyPrefix)
	}
	if cfg.Presence.FlushInterval != 5*time.Second {
		t.Errorf("Presence.FlushInterval = %v, want 5s", cfg.Presence.FlushInterval)
	}
	if cfg.Search.Engine != "badger" {
		t.Errorf("Search.Engine = %q, want badger", cfg.Search.Engine)
	}
	if cfg.Security.JWTSecret != "" {
		t.Error("Security.JWTSecret should be empty by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NATS_URL", "nats.url"},
		{"REDIS_ADDR", "presence.redis_addr"},
		{"HTTP_PORT", "server.port"},
		{"JWT_SECRET", "security.jwt_secret"},
		{"CORS_ORIGINS", "security.cors_origins"},
		{"KAFKA_BROKERS", "kafka.brokers"},
		{"INGEST_SOURCE", "ingest.source"},
		{"SEARCH_ENGINE", "search.engine"},
		{"WS_PONG_WAIT", "websocket.pong_wait"},
		{"LOG_LEVEL", "logging.level"},
		{"SUPERVISOR_DRAIN_TIMEOUT", "supervisor.drain_timeout"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Run("CONFIG_PATH env var takes precedence", func(t *testing.T) {
		customPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(customPath, []byte("server:\n  port: 9000\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(ConfigPathEnvVar, customPath)

		if got := findConfigFile(); got != customPath {
			t.Errorf("findConfigFile() = %q, want %q", got, customPath)
		}
	})

	t.Run("CONFIG_PATH env var with non-existent file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")
		if got := findConfigFile(); got == "/non/existent/config.yaml" {
			t.Error("findConfigFile() returned a path that does not exist")
		}
	})
}

func TestLoadWithKoanfEnvVars(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PRESENCE_FLUSH_INTERVAL", "2s")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("NATS.URL = %q, want nats://broker:4222", cfg.NATS.URL)
	}
	if cfg.Presence.RedisAddr != "redis:6379" {
		t.Errorf("Presence.RedisAddr = %q, want redis:6379", cfg.Presence.RedisAddr)
	}
	if cfg.Presence.FlushInterval != 2*time.Second {
		t.Errorf("Presence.FlushInterval = %v, want 2s", cfg.Presence.FlushInterval)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Security.CORSOrigins) != len(want) {
		t.Fatalf("Security.CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Security.CORSOrigins[i] != want[i] {
			t.Errorf("Security.CORSOrigins[%d] = %q, want %q", i, cfg.Security.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	configContent := `
server:
  port: 7000
security:
  jwt_secret: "` + testSecret + `"
search:
  engine: duckdb
  enable_duckdb: true
  workers: 2
presence:
  store: memory
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, configPath)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Search.Engine != "duckdb" || cfg.Search.Workers != 2 {
		t.Errorf("Search = %+v, want duckdb with 2 workers", cfg.Search)
	}
	if cfg.Presence.Store != "memory" {
		t.Errorf("Presence.Store = %q, want memory", cfg.Presence.Store)
	}
	// Untouched sections keep their defaults.
	if cfg.Search.QueueSize != 128 {
		t.Errorf("Search.QueueSize = %d, want 128", cfg.Search.QueueSize)
	}
}

func TestLoadWithKoanfEnvOverridesFile(t *testing.T) {
	configContent := `
server:
  port: 7000
security:
  jwt_secret: "` + testSecret + `"
logging:
  level: info
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 (env override)", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want error (env override)", cfg.Logging.Level)
	}
}

func TestLoadWithKoanfValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "missing JWT secret",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:    "valid minimal config",
			env:     map[string]string{"JWT_SECRET": testSecret},
			wantErr: false,
		},
		{
			name:    "unknown ingest source",
			env:     map[string]string{"JWT_SECRET": testSecret, "INGEST_SOURCE": "sqs"},
			wantErr: true,
		},
		{
			name: "kafka source",
			env: map[string]string{
				"JWT_SECRET":    testSecret,
				"INGEST_SOURCE": "kafka",
				"KAFKA_BROKERS": "k1:9092,k2:9092",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadWithKoanf()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadWithKoanf() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
