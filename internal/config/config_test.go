package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadProjectConfig(t *testing.T) {
	t.Run("valid config loads", func(t *testing.T) {
		path := writeTempConfig(t, "project: test-project\nversion: 1\ndatabase:\n  driver: sqlite\n  dsn: sqlite://./lore.db\nmodel:\n  base_url: https://openrouter.ai/api/v1\n  api_key_env: OPENROUTER_API_KEY\n  producer_model: openai/gpt-4o-mini\n  chat_model: openai/gpt-4o\n  timeout_seconds: 45\n")
		cfg, err := LoadProjectConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Project != "test-project" {
			t.Fatalf("expected project name, got %q", cfg.Project)
		}
		if cfg.Database.Driver != "sqlite" {
			t.Fatalf("expected sqlite driver, got %q", cfg.Database.Driver)
		}
		if cfg.Model.Timeout() != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", cfg.Model.Timeout())
		}
	})

	t.Run("missing project name", func(t *testing.T) {
		path := writeTempConfig(t, "version: 1\ndatabase:\n  driver: sqlite\n  dsn: sqlite://./lore.db\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 2\ndatabase:\n  driver: sqlite\n  dsn: sqlite://./lore.db\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("missing driver", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\ndatabase:\n  dsn: sqlite://./lore.db\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unsupported driver", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\ndatabase:\n  driver: neo4j\n  dsn: bolt://localhost:7687\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("missing dsn", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\ndatabase:\n  driver: sqlite\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("negative timeout", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\ndatabase:\n  driver: sqlite\n  dsn: sqlite://./lore.db\nmodel:\n  timeout_seconds: -5\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		if _, err := LoadProjectConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeTempConfig(t, "project: [\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestModelConfigDefaults(t *testing.T) {
	var m ModelConfig
	if m.Timeout() != 30*time.Second {
		t.Fatalf("default timeout = %v", m.Timeout())
	}
	if m.APIKey() != "" {
		t.Fatalf("expected empty key without env name")
	}

	t.Setenv("LOREWEAVE_TEST_KEY", "secret")
	m.APIKeyEnv = "LOREWEAVE_TEST_KEY"
	if m.APIKey() != "secret" {
		t.Fatalf("key = %q", m.APIKey())
	}
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}
