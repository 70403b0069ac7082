package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.ListenAddr != ":8080" {
		t.Errorf("expected ListenAddr :8080, got %s", config.ListenAddr)
	}

	if config.LogLevel != "info" {
		t.Errorf("expected LogLevel info, got %s", config.LogLevel)
	}

	if config.Session.TTL != 24*time.Hour {
		t.Errorf("expected session TTL 24h, got %s", config.Session.TTL)
	}

	if config.Session.SealAlgorithm != SealAES256GCM {
		t.Errorf("expected seal algorithm %s, got %s", SealAES256GCM, config.Session.SealAlgorithm)
	}

	if config.Engine.Timeout != 60*time.Second {
		t.Errorf("expected engine timeout 60s, got %s", config.Engine.Timeout)
	}

	if config.Storage.TempDir != "temp_uploads" {
		t.Errorf("expected temp dir temp_uploads, got %s", config.Storage.TempDir)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	os.Setenv("LISTEN_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("STORE_ADDR", "redis.internal:6380")
	os.Setenv("SESSION_TTL", "1h")
	os.Setenv("SESSION_SEAL_ALGORITHM", SealChaCha20Poly1305)

	defer func() {
		os.Unsetenv("LISTEN_ADDR")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("STORE_ADDR")
		os.Unsetenv("SESSION_TTL")
		os.Unsetenv("SESSION_SEAL_ALGORITHM")
	}()

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.ListenAddr != ":9090" {
		t.Errorf("expected ListenAddr :9090, got %s", config.ListenAddr)
	}

	if config.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %s", config.LogLevel)
	}

	if config.Store.Addr != "redis.internal:6380" {
		t.Errorf("expected store addr redis.internal:6380, got %s", config.Store.Addr)
	}

	if config.Session.TTL != time.Hour {
		t.Errorf("expected session TTL 1h, got %s", config.Session.TTL)
	}

	if config.Session.SealAlgorithm != SealChaCha20Poly1305 {
		t.Errorf("expected seal algorithm %s, got %s", SealChaCha20Poly1305, config.Session.SealAlgorithm)
	}
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	content := `
listen_addr: ":7070"
log_level: warn
store:
  addr: "10.0.0.5:6379"
  db: 2
session:
  ttl: 12h
  seal_algorithm: chacha20-poly1305
engine:
  timeout: 30s
  vision:
    endpoint: "http://vision.internal/analyze"
storage:
  temp_dir: "/var/lib/gateway/tmp"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.ListenAddr != ":7070" {
		t.Errorf("expected ListenAddr :7070, got %s", config.ListenAddr)
	}
	if config.Store.Addr != "10.0.0.5:6379" {
		t.Errorf("expected store addr 10.0.0.5:6379, got %s", config.Store.Addr)
	}
	if config.Store.DB != 2 {
		t.Errorf("expected store db 2, got %d", config.Store.DB)
	}
	if config.Session.TTL != 12*time.Hour {
		t.Errorf("expected session TTL 12h, got %s", config.Session.TTL)
	}
	if config.Engine.Vision.Endpoint != "http://vision.internal/analyze" {
		t.Errorf("unexpected vision endpoint %s", config.Engine.Vision.Endpoint)
	}
	if config.Storage.TempDir != "/var/lib/gateway/tmp" {
		t.Errorf("unexpected temp dir %s", config.Storage.TempDir)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [not: valid"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, true},
		{"empty store addr", func(c *Config) { c.Store.Addr = "" }, true},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }, true},
		{"unknown seal algorithm", func(c *Config) { c.Session.SealAlgorithm = "rot13" }, true},
		{"chacha seal algorithm", func(c *Config) { c.Session.SealAlgorithm = SealChaCha20Poly1305 }, false},
		{"zero engine timeout", func(c *Config) { c.Engine.Timeout = 0 }, true},
		{"tls without cert", func(c *Config) { c.TLS.Enabled = true }, true},
		{"rate limit without limit", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Limit = 0
		}, true},
		{"tracing bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, true},
		{"tracing bad sampling ratio", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SamplingRatio = 1.5
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig("")
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			tt.mutate(config)

			err = config.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
