package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ProjectConfig struct {
	Project  string         `yaml:"project"`
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
}

type DatabaseConfig struct {
	// Driver selects the store backend: sqlite, postgres, or remote.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ModelConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	ProducerModel  string `yaml:"producer_model"`
	ChatModel      string `yaml:"chat_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// APIKey resolves the configured environment variable. Keys never live in the
// config file itself.
func (m ModelConfig) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

func (m ModelConfig) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := validateProjectConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return &cfg, nil
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres", "remote":
	case "":
		return fmt.Errorf("database driver is required")
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}

	if cfg.Model.TimeoutSeconds < 0 {
		return fmt.Errorf("model timeout_seconds must not be negative")
	}

	return nil
}
