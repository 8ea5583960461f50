// Package config resolves client configuration from a YAML file and
// environment variables. Environment always wins over the file, the file
// wins over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds client configuration
type Config struct {
	// Server
	ServerURL string `yaml:"serverUrl"`

	// Space
	WorkspaceID string `yaml:"workspaceId"`
	SpaceType   string `yaml:"spaceType"`

	// Authentication
	Token      string `yaml:"token"`
	AuthSecret string `yaml:"authSecret"`
	UserID     string `yaml:"userId"`

	// Local state
	StatePath string `yaml:"statePath"`

	ClientVersion string `yaml:"clientVersion"`
	LogLevel      string `yaml:"logLevel"`
}

// Load resolves configuration from environment variables over defaults.
func Load() *Config {
	return applyEnv(defaults())
}

// LoadFile resolves configuration from a YAML file, with environment
// variables overriding the file. A missing file is not an error; the file
// is simply skipped.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return applyEnv(cfg), nil
}

func defaults() *Config {
	return &Config{
		ServerURL:     "ws://localhost:8080/ws",
		SpaceType:     "workspace",
		StatePath:     defaultStatePath(),
		ClientVersion: "0.3.0",
		LogLevel:      "info",
	}
}

func applyEnv(cfg *Config) *Config {
	cfg.ServerURL = getEnv("SYNCKIT_SERVER_URL", cfg.ServerURL)
	cfg.WorkspaceID = getEnv("SYNCKIT_WORKSPACE_ID", cfg.WorkspaceID)
	cfg.SpaceType = getEnv("SYNCKIT_SPACE_TYPE", cfg.SpaceType)
	cfg.Token = getEnv("SYNCKIT_TOKEN", cfg.Token)
	cfg.AuthSecret = getEnv("SYNCKIT_AUTH_SECRET", cfg.AuthSecret)
	cfg.UserID = getEnv("SYNCKIT_USER_ID", cfg.UserID)
	cfg.StatePath = getEnv("SYNCKIT_STATE_PATH", cfg.StatePath)
	cfg.ClientVersion = getEnv("SYNCKIT_CLIENT_VERSION", cfg.ClientVersion)
	cfg.LogLevel = getEnv("SYNCKIT_LOG_LEVEL", cfg.LogLevel)
	return cfg
}

func defaultStatePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "synckit", "synckit.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
