package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader reads the yaml config file and overlays environment secrets.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader for the default config path. CHORUS_CONFIG
// overrides the path when set.
func NewLoader() *Loader {
	path := os.Getenv("CHORUS_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	return &Loader{
		useDotEnv: true,
		path:      path,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration: defaults, then the yaml file when
// present, then environment overrides for secrets.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			// Missing .env is fine; system environment still applies.
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := Default()

	path := l.path
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		path = ""
	default:
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}

	applyEnvOverrides(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	switch cfg.Cache.Driver {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
	if cfg.Cache.ShortTTL > cfg.Cache.MediumTTL || cfg.Cache.MediumTTL > cfg.Cache.LongTTL {
		return fmt.Errorf("cache ttl tiers must be ordered short <= medium <= long")
	}
	if cfg.Training.Workers <= 0 {
		return fmt.Errorf("training workers must be positive")
	}
	if cfg.Training.QualityThreshold < 0 || cfg.Training.QualityThreshold > 1 {
		return fmt.Errorf("quality threshold must be within [0,1]")
	}
	enabled := 0
	for _, pc := range cfg.Providers {
		if pc.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}
	return nil
}

// applyEnvOverrides keeps secrets out of the yaml file.
func applyEnvOverrides(cfg *Config) {
	if secret := os.Getenv("CHORUS_AUTH_SECRET"); secret != "" {
		cfg.Auth.Secret = secret
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if pc, ok := cfg.Providers["openai"]; ok {
			pc.APIKey = key
			cfg.Providers["openai"] = pc
		}
	}
	if addr := os.Getenv("CHORUS_REDIS_ADDR"); addr != "" {
		cfg.Cache.Redis.Addr = addr
	}
	if pass := os.Getenv("CHORUS_REDIS_PASSWORD"); pass != "" {
		cfg.Cache.Redis.Password = pass
	}
}
