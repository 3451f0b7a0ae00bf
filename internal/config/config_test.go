package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Port != ":3000" {
		t.Errorf("expected default port :3000, got %s", cfg.Server.Port)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected default sqlite driver, got %s", cfg.Store.Driver)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("unexpected port %s", cfg.Server.Port)
	}
}

func TestLoadYAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TIMP_DB", "/var/lib/timp/relay.db")
	path := writeFile(t, `
server:
  port: ":9000"
  allowed_origins:
    - "chrome-extension://abc"
store:
  driver: sqlite
  path: ${TIMP_DB}
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != ":9000" {
		t.Errorf("port = %s", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "chrome-extension://abc" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Store.Path != "/var/lib/timp/relay.db" {
		t.Errorf("store path = %s", cfg.Store.Path)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
	if cfg.Store.Retention != Default().Store.Retention {
		t.Errorf("unset field should keep default, got retention %d", cfg.Store.Retention)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeFile(t, "server: [unterminated")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(lookupFrom(map[string]string{
		"SERVER_PORT":      ":4000",
		"ALLOWED_ORIGINS":  "http://a.test, *",
		"MAX_MESSAGE_SIZE": "2048",
		"STORE_DRIVER":     "memory",
		"STORE_RETENTION":  "not-a-number",
		"LOG_FORMAT":       "json",
	}))

	if cfg.Server.Port != ":4000" {
		t.Errorf("port = %s", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "*" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.MaxMessageSize != 2048 {
		t.Errorf("max message size = %d", cfg.Server.MaxMessageSize)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("driver = %s", cfg.Store.Driver)
	}
	if cfg.Store.Retention != Default().Store.Retention {
		t.Errorf("invalid retention should keep default, got %d", cfg.Store.Retention)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %s", cfg.Log.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }},
		{"negative retention", func(c *Config) { c.Store.Retention = -1 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"empty port", func(c *Config) { c.Server.Port = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Store.Driver = "memory"
	cfg.Store.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory driver without path should be valid: %v", err)
	}
}

func TestLoadAndValidateOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "5000")
	cfg, err := LoadAndValidate("", func(c *Config) { c.Store.Path = "/tmp/override.db" })
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}
	if cfg.Server.Port != ":5000" {
		t.Errorf("expected sanitized port :5000, got %s", cfg.Server.Port)
	}
	if cfg.Store.Path != "/tmp/override.db" {
		t.Errorf("override not applied, path = %s", cfg.Store.Path)
	}
}
