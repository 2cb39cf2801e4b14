// Package cache is the content-addressed result cache of the synthesis
// pipeline. A facade owns key derivation, TTL tiers, compression, hit
// accounting and pre-warming; pluggable stores hold the entries.
package cache

import (
	"context"
	"time"
)

// Store holds cache entries for the facade. Get updates the entry's hit
// count and last-accessed time; Peek does not.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Peek(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)

	// CleanupExpired removes entries past their expiry and reports how many.
	CleanupExpired(ctx context.Context) (int, error)

	// EvictLRU removes the least-recently-accessed fraction of entries in one
	// batch. Stores whose backend already evicts on its own report zero.
	EvictLRU(ctx context.Context, fraction float64) (int, error)

	// Optimize removes entries with at most maxHits hits that have not been
	// accessed for idleAfter, even when unexpired.
	Optimize(ctx context.Context, maxHits int64, idleAfter time.Duration) (int, error)

	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Entry is one cached synthesis result.
type Entry struct {
	Key        string        `json:"key"`
	Audio      []byte        `json:"audio"`
	Compressed bool          `json:"compressed"`
	Format     string        `json:"format"`
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`

	// Provider that rendered the audio and what the render cost. Every hit
	// credits Cost to that provider's savings.
	Provider string  `json:"provider"`
	Cost     float64 `json:"cost"`

	HitCount     int64     `json:"hit_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Driver identifiers supported by the cache. The sqlite store needs the
// shared database handle, so bootstrap wires it through NewWithStore instead
// of the factory.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config describes the cache selection and tuning parameters.
type Config struct {
	Driver          string
	MaxEntries      int
	ShortTTL        time.Duration
	MediumTTL       time.Duration
	LongTTL         time.Duration
	CleanupInterval time.Duration

	// CompressionMin is the payload size floor above which audio is stored
	// gzip-compressed. Zero disables compression.
	CompressionMin int

	Redis        *RedisConfig
	Memory       *MemoryConfig
	Warming      WarmingConfig
	Optimization OptimizationConfig
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	GCInterval time.Duration
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// WarmingConfig controls frequency tracking and pre-warming.
type WarmingConfig struct {
	Enabled       bool
	Interval      time.Duration
	TopK          int
	MinFrequency  int
	TableCapacity int
}

// OptimizationConfig controls the periodic low-value-entry sweep.
type OptimizationConfig struct {
	MaxHits   int64
	IdleAfter time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Driver == "" {
		cfg.Driver = DriverMemory
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.ShortTTL <= 0 {
		cfg.ShortTTL = time.Hour
	}
	if cfg.MediumTTL <= 0 {
		cfg.MediumTTL = 24 * time.Hour
	}
	if cfg.LongTTL <= 0 {
		cfg.LongTTL = 7 * 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.Warming.Interval <= 0 {
		cfg.Warming.Interval = 15 * time.Minute
	}
	if cfg.Warming.TopK <= 0 {
		cfg.Warming.TopK = 10
	}
	if cfg.Warming.MinFrequency <= 0 {
		cfg.Warming.MinFrequency = 2
	}
	if cfg.Warming.TableCapacity <= 0 {
		cfg.Warming.TableCapacity = 1000
	}
	if cfg.Optimization.MaxHits <= 0 {
		cfg.Optimization.MaxHits = 1
	}
	if cfg.Optimization.IdleAfter <= 0 {
		cfg.Optimization.IdleAfter = 7 * 24 * time.Hour
	}
	return cfg
}
