package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values like "30s" or "24h" decode
// directly into config fields.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Log       LogConfig                 `yaml:"log"`
	Auth      AuthConfig                `yaml:"auth"`
	Database  DatabaseConfig            `yaml:"database"`
	Health    HealthConfig              `yaml:"health"`
	Selection SelectionConfig           `yaml:"selection"`
	Cache     CacheConfig               `yaml:"cache"`
	Training  TrainingConfig            `yaml:"training"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	File  string `yaml:"file"`
}

type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Secret  string   `yaml:"secret"`
	TTL     Duration `yaml:"ttl"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HealthConfig holds the circuit breaker knobs shared by every provider.
type HealthConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	Cooldown         Duration `yaml:"cooldown"`
}

// SelectionConfig supplies the default criteria applied when a request sets
// none of its own.
type SelectionConfig struct {
	MaxLatency     Duration `yaml:"max_latency"`
	MaxCostPerChar float64  `yaml:"max_cost_per_char"`
	MinQuality     float64  `yaml:"min_quality"`
}

type CacheConfig struct {
	Driver          string             `yaml:"driver"` // memory, redis or sqlite
	MaxEntries      int                `yaml:"max_entries"`
	ShortTTL        Duration           `yaml:"short_ttl"`
	MediumTTL       Duration           `yaml:"medium_ttl"`
	LongTTL         Duration           `yaml:"long_ttl"`
	CleanupInterval Duration           `yaml:"cleanup_interval"`
	CompressionMin  int                `yaml:"compression_min_bytes"`
	Redis           RedisConfig        `yaml:"redis,omitempty"`
	Warming         WarmingConfig      `yaml:"warming"`
	Optimization    OptimizationConfig `yaml:"optimization"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type WarmingConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Interval      Duration `yaml:"interval"`
	TopK          int      `yaml:"top_k"`
	MinFrequency  int      `yaml:"min_frequency"`
	TableCapacity int      `yaml:"table_capacity"`
}

// OptimizationConfig drives the periodic purge of low-value cache entries.
type OptimizationConfig struct {
	MaxHits   int      `yaml:"max_hits"`
	IdleAfter Duration `yaml:"idle_after"`
}

type TrainingConfig struct {
	Workers          int      `yaml:"workers"`
	JobsPerMinute    int      `yaml:"jobs_per_minute"`
	MaxRetries       int      `yaml:"max_retries"`
	BaseRetryDelay   Duration `yaml:"base_retry_delay"`
	Epochs           int      `yaml:"epochs"`
	QualityThreshold float64  `yaml:"quality_threshold"`
	MinSampleSeconds float64  `yaml:"min_sample_seconds"`
	StorageDir       string   `yaml:"storage_dir"`
}

// ProviderConfig configures one synthesis backend. Keys of the providers map
// are the provider tags (edge, openai, neural); bootstrap registers tags in a
// fixed order and skips disabled entries.
type ProviderConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Voice         string      `yaml:"voice"`
	Format        string      `yaml:"format"`
	SampleRate    int         `yaml:"sample_rate"`
	CostPerChar   float64     `yaml:"cost_per_char"`
	QualityScore  float64     `yaml:"quality_score"`
	MaxConcurrent int         `yaml:"max_concurrent"`
	Timeout       Duration    `yaml:"timeout"`
	Quota         QuotaConfig `yaml:"quota"`

	// Vendor specific.
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

type QuotaConfig struct {
	MaxChars      int64    `yaml:"max_chars"`
	MaxRequests   int64    `yaml:"max_requests"`
	ResetInterval Duration `yaml:"reset_interval"`
}

// Default returns the full configuration with every knob at its documented
// default. Load overlays the yaml file and environment on top of this.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Auth: AuthConfig{
			Enabled: true,
			TTL:     Duration(24 * time.Hour),
		},
		Database: DatabaseConfig{
			Path: "data/chorus.db",
		},
		Health: HealthConfig{
			FailureThreshold: 3,
			Cooldown:         Duration(30 * time.Second),
		},
		Selection: SelectionConfig{
			MaxLatency:     Duration(10 * time.Second),
			MaxCostPerChar: 0.0005,
			MinQuality:     0,
		},
		Cache: CacheConfig{
			Driver:          "memory",
			MaxEntries:      1000,
			ShortTTL:        Duration(1 * time.Hour),
			MediumTTL:       Duration(24 * time.Hour),
			LongTTL:         Duration(7 * 24 * time.Hour),
			CleanupInterval: Duration(10 * time.Minute),
			CompressionMin:  4096,
			Warming: WarmingConfig{
				Enabled:       true,
				Interval:      Duration(15 * time.Minute),
				TopK:          10,
				MinFrequency:  3,
				TableCapacity: 1000,
			},
			Optimization: OptimizationConfig{
				MaxHits:   1,
				IdleAfter: Duration(7 * 24 * time.Hour),
			},
		},
		Training: TrainingConfig{
			Workers:          2,
			JobsPerMinute:    5,
			MaxRetries:       3,
			BaseRetryDelay:   Duration(30 * time.Second),
			Epochs:           10,
			QualityThreshold: 0.7,
			MinSampleSeconds: 3.0,
			StorageDir:       "data/models",
		},
		Providers: map[string]ProviderConfig{
			"edge": {
				Enabled:       true,
				Voice:         "en-US-AriaNeural",
				Format:        "mp3",
				SampleRate:    24000,
				CostPerChar:   0,
				QualityScore:  0.72,
				MaxConcurrent: 8,
				Timeout:       Duration(30 * time.Second),
				Quota: QuotaConfig{
					MaxChars:      1_000_000,
					MaxRequests:   10_000,
					ResetInterval: Duration(24 * time.Hour),
				},
			},
			"openai": {
				Enabled:       true,
				Voice:         "alloy",
				Format:        "mp3",
				SampleRate:    24000,
				CostPerChar:   0.000015,
				QualityScore:  0.9,
				MaxConcurrent: 4,
				Timeout:       Duration(60 * time.Second),
				Model:         "tts-1",
				Quota: QuotaConfig{
					MaxChars:      500_000,
					MaxRequests:   5_000,
					ResetInterval: Duration(24 * time.Hour),
				},
			},
			"neural": {
				Enabled:       true,
				Voice:         "Serena",
				Format:        "wav",
				SampleRate:    24000,
				CostPerChar:   0.000002,
				QualityScore:  0.85,
				MaxConcurrent: 2,
				Timeout:       Duration(120 * time.Second),
				BaseURL:       "http://127.0.0.1:9880",
				Quota: QuotaConfig{
					MaxChars:      2_000_000,
					MaxRequests:   20_000,
					ResetInterval: Duration(24 * time.Hour),
				},
			},
		},
	}
}
