package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Engine.Depth)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 0, cfg.Engine.MaxConcurrent)
	assert.Empty(t, cfg.Storage.Path)
	assert.Equal(t, "/ws", cfg.Socket.Path)
	assert.Zero(t, cfg.Socket.EventRate)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverlaysFile(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  binary: /opt/engine/bin/analyse
  depth: 5
  timeout: 10s
  max_concurrent: 4
storage:
  path: /var/lib/analysis.db
socket:
  allowed_origins: ["https://example.com"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/engine/bin/analyse", cfg.Engine.Binary)
	assert.Equal(t, 5, cfg.Engine.Depth)
	assert.Equal(t, 10*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrent)
	assert.Equal(t, "/var/lib/analysis.db", cfg.Storage.Path)
	assert.Equal(t, []string{"https://example.com"}, cfg.Socket.AllowedOrigins)

	// Untouched sections keep their defaults
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "/ws", cfg.Socket.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_SecretFromEnv(t *testing.T) {
	secret := strings.Repeat("s", 40)
	t.Setenv(EnvJWTSecret, secret)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, secret, cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero depth", func(c *Config) { c.Engine.Depth = 0 }, "engine.depth"},
		{"no timeout", func(c *Config) { c.Engine.Timeout = 0 }, "engine.timeout"},
		{"no binary", func(c *Config) { c.Engine.Binary = "" }, "engine.binary"},
		{"negative concurrency", func(c *Config) { c.Engine.MaxConcurrent = -1 }, "max_concurrent"},
		{"bad port", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"shared address", func(c *Config) { c.Socket.Port = c.API.Port }, "cannot share"},
		{"relative path", func(c *Config) { c.Socket.Path = "ws" }, "socket.path"},
		{"negative event rate", func(c *Config) { c.Socket.EventRate = -1 }, "event_rate"},
		{"rate without burst", func(c *Config) { c.Socket.EventRate = 5; c.Socket.EventBurst = 0 }, "event_burst"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := LogConfig{Level: "warn"}.NewLogger(&buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	_, err = LogConfig{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)
}
