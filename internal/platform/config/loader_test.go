package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 8090
log:
  level: "debug"
  dir: "/tmp/logs"
  file: "test.log"
cache:
  driver: memory
  max_entries: 50
  short_ttl: 30m
training:
  workers: 4
`

	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false).WithPath(configFile)
	result, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg := result.Config

	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("expected server port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Cache.MaxEntries != 50 {
		t.Errorf("expected max_entries 50, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.ShortTTL.Std() != 30*time.Minute {
		t.Errorf("expected short_ttl 30m, got %v", cfg.Cache.ShortTTL.Std())
	}
	if cfg.Training.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Training.Workers)
	}
	// Untouched sections keep their defaults.
	if cfg.Health.FailureThreshold != 3 {
		t.Errorf("expected default failure threshold 3, got %d", cfg.Health.FailureThreshold)
	}
	if cfg.Training.JobsPerMinute != 5 {
		t.Errorf("expected default 5 jobs/minute, got %d", cfg.Training.JobsPerMinute)
	}
}

func TestLoader_LoadMissingFile(t *testing.T) {
	loader := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "absent.yaml"))
	result, err := loader.Load()
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if result.Path != "" {
		t.Errorf("expected empty path for defaults, got %s", result.Path)
	}
	if result.Config.Cache.Driver != "memory" {
		t.Errorf("expected default cache driver memory, got %s", result.Config.Cache.Driver)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("CHORUS_AUTH_SECRET", "test-secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	loader := NewLoader().WithDotEnv(false).WithPath(filepath.Join(t.TempDir(), "absent.yaml"))
	result, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if result.Config.Auth.Secret != "test-secret" {
		t.Errorf("expected auth secret from env, got %q", result.Config.Auth.Secret)
	}
	if result.Config.Providers["openai"].APIKey != "sk-test" {
		t.Errorf("expected openai key from env, got %q", result.Config.Providers["openai"].APIKey)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader().WithDotEnv(false)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "unknown cache driver",
			mutate:  func(c *Config) { c.Cache.Driver = "memcached" },
			wantErr: true,
		},
		{
			name: "ttl tiers out of order",
			mutate: func(c *Config) {
				c.Cache.ShortTTL = c.Cache.LongTTL + 1
			},
			wantErr: true,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Training.Workers = 0 },
			wantErr: true,
		},
		{
			name: "no providers enabled",
			mutate: func(c *Config) {
				for tag, pc := range c.Providers {
					pc.Enabled = false
					c.Providers[tag] = pc
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := loader.validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
