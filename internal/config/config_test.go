package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redactor.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  trusted_proxies: [10.0.0.0/8, 192.168.1.1]
rules:
  path: /etc/log-redactor/rules.json
  debounce: 1s
logging:
  level: debug
  format: console
  file:
    enabled: true
    max_backups: 2
rate_limit:
  requests_per_min: 60
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Rules.Path != "/etc/log-redactor/rules.json" {
		t.Errorf("Unexpected rules path: %s", cfg.Rules.Path)
	}
	if cfg.Rules.Debounce != time.Second {
		t.Errorf("Expected debounce 1s, got %s", cfg.Rules.Debounce)
	}
	if !cfg.Rules.Watch {
		t.Error("Watch should keep its default of true")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.MaxBackups != 2 {
		t.Errorf("Unexpected file logging config: %+v", cfg.Logging.File)
	}
	if cfg.Logging.File.MaxSize != 100 {
		t.Errorf("Expected default max size 100, got %d", cfg.Logging.File.MaxSize)
	}
	if cfg.RateLimit.RequestsPerMin != 60 || cfg.RateLimit.Burst != 50 {
		t.Errorf("Unexpected rate limit config: %+v", cfg.RateLimit)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("Unexpected trusted proxies: %v", cfg.Server.TrustedProxies)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	t.Setenv("REDACTOR_LOGGING_LEVEL", "error")
	t.Setenv("REDACTOR_RULES_PATH", "/tmp/rules.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Expected env override to set level error, got %s", cfg.Logging.Level)
	}
	if cfg.Rules.Path != "/tmp/rules.json" {
		t.Errorf("Expected env override for rules path, got %s", cfg.Rules.Path)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"bad level", "logging:\n  level: loud\n", "invalid log level"},
		{"bad format", "logging:\n  format: xml\n", "invalid log format"},
		{"websocket without credentials", "websocket:\n  enabled: true\n", "websocket requires username and password"},
		{"redis source without redis", "redis:\n  use_as_source: true\n", "redis.use_as_source requires redis.enabled"},
		{"audit without database", "audit:\n  enabled: true\n", "audit requires database_url"},
		{"empty rules path", "rules:\n  path: \"\"\n", "rules.path is required"},
		{"malformed yaml", "server: [\n", "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected %q in error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()
	if err := validateConfig(cfg); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}
