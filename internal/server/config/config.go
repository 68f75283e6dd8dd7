// Package config loads server settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"chessanalysis/internal/server/engine"

	"gopkg.in/yaml.v3"
)

// EnvJWTSecret names the variable holding the token signing secret
const EnvJWTSecret = "ANALYSIS_JWT_SECRET"

// minSecretLen is the shortest HS256 secret accepted
const minSecretLen = 32

// Config is the complete server configuration
type Config struct {
	API     APIConfig     `yaml:"api"`
	Socket  SocketConfig  `yaml:"socket"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Dev  bool   `yaml:"dev"`
}

type SocketConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Path           string   `yaml:"path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	EventRate      float64  `yaml:"event_rate"` // analyses per second per session, 0 disables
	EventBurst     int      `yaml:"event_burst"`
}

type EngineConfig struct {
	Binary        string        `yaml:"binary"`
	Depth         int           `yaml:"depth"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"` // 0 = one process per request, unbounded
}

type StorageConfig struct {
	Path string `yaml:"path"` // empty disables persistence
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		API: APIConfig{
			Host: "localhost",
			Port: 8080,
		},
		Socket: SocketConfig{
			Host:       "localhost",
			Port:       8081,
			Path:       "/ws",
			EventBurst: 40,
		},
		Engine: EngineConfig{
			Binary:  "analysis-engine",
			Depth:   engine.DefaultDepth,
			Timeout: engine.DefaultTimeout,
		},
		Auth: AuthConfig{
			TokenTTL: 7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load overlays the YAML file at path, if any, and the environment on the
// defaults
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	return cfg, nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	if c.Socket.Port < 1 || c.Socket.Port > 65535 {
		errs = append(errs, fmt.Errorf("socket.port out of range: %d", c.Socket.Port))
	}
	if c.Socket.Port == c.API.Port && c.Socket.Host == c.API.Host {
		errs = append(errs, fmt.Errorf("api and socket cannot share %s:%d", c.API.Host, c.API.Port))
	}
	if !strings.HasPrefix(c.Socket.Path, "/") {
		errs = append(errs, fmt.Errorf("socket.path must start with /: %q", c.Socket.Path))
	}
	if c.Socket.EventRate < 0 {
		errs = append(errs, fmt.Errorf("socket.event_rate cannot be negative: %v", c.Socket.EventRate))
	}
	if c.Socket.EventRate > 0 && c.Socket.EventBurst < 1 {
		errs = append(errs, fmt.Errorf("socket.event_burst must be at least 1 when rate limiting: %d", c.Socket.EventBurst))
	}
	if c.Engine.Binary == "" {
		errs = append(errs, errors.New("engine.binary required"))
	}
	if c.Engine.Depth < 1 {
		errs = append(errs, fmt.Errorf("engine.depth must be at least 1: %d", c.Engine.Depth))
	}
	if c.Engine.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.timeout must be positive: %s", c.Engine.Timeout))
	}
	if c.Engine.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("engine.max_concurrent cannot be negative: %d", c.Engine.MaxConcurrent))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d characters", minSecretLen))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl must be positive: %s", c.Auth.TokenTTL))
	}

	return errors.Join(errs...)
}
