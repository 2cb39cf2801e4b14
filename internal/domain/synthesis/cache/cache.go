package cache

import (
	"context"
	"sync"
	"time"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/platform/logging"
)

// evictFraction is the share of entries removed in one LRU batch.
const evictFraction = 0.10

// WarmFunc renders one request on behalf of the pre-warmer.
type WarmFunc func(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, error)

// Cache is the result-cache facade. Its failures never reach the caller's
// success path: every store error is logged and reported as a miss or
// dropped write.
type Cache struct {
	cfg    Config
	store  Store
	logger *logging.Logger
	freq   *FrequencyTable

	mu      sync.Mutex
	hits    int64
	misses  int64
	savings map[string]float64
	warmer  WarmFunc

	stop     chan struct{}
	stopOnce sync.Once
}

// Stats is the externally visible cache snapshot.
type Stats struct {
	Hits              int64              `json:"hits"`
	Misses            int64              `json:"misses"`
	HitRate           float64            `json:"hit_rate"`
	Entries           int                `json:"entries"`
	SavingsByProvider map[string]float64 `json:"savings_by_provider"`
	TotalSaved        float64            `json:"total_saved"`
	TrackedPhrases    int                `json:"tracked_phrases"`
	Store             map[string]any     `json:"store"`
}

// New builds the cache over the configured store and starts its maintenance
// and warming loops.
func New(cfg Config, logger *logging.Logger) (*Cache, error) {
	cfg = cfg.withDefaults()

	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, store, logger), nil
}

// NewWithStore builds the cache over a caller-supplied store, for backends
// wired outside this package.
func NewWithStore(cfg Config, store Store, logger *logging.Logger) *Cache {
	cfg = cfg.withDefaults()

	c := &Cache{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		freq:    NewFrequencyTable(cfg.Warming.TableCapacity),
		savings: make(map[string]float64),
		stop:    make(chan struct{}),
	}

	go c.maintenanceLoop()
	if cfg.Warming.Enabled {
		go c.warmLoop()
	}
	return c
}

// SetWarmer installs the synthesis callback used by pre-warming. Without one
// the warming loop only tracks frequencies.
func (c *Cache) SetWarmer(fn WarmFunc) {
	c.mu.Lock()
	c.warmer = fn
	c.mu.Unlock()
}

// Get looks the request up and returns a cached result. Hits report zero
// cost and latency and credit the original synthesis cost as a saving to the
// producing provider.
func (c *Cache) Get(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, bool) {
	c.freq.Record(req)

	key := Key(req)
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnTag("Cache", "lookup failed, treating as miss: %v", err)
		c.countMiss()
		return nil, false
	}
	if !ok {
		c.countMiss()
		return nil, false
	}

	audio := entry.Audio
	if entry.Compressed {
		audio, err = decompress(entry.Audio)
		if err != nil {
			c.logger.WarnTag("Cache", "corrupt compressed entry %s, dropping: %v", key[:12], err)
			_ = c.store.Delete(ctx, key)
			c.countMiss()
			return nil, false
		}
	}

	c.mu.Lock()
	c.hits++
	c.savings[entry.Provider] += entry.Cost
	c.mu.Unlock()

	return &providers.SynthesisResult{
		Audio:      audio,
		Format:     entry.Format,
		SampleRate: entry.SampleRate,
		Duration:   entry.Duration,
		Provider:   entry.Provider,
		Cached:     true,
	}, true
}

// Put stores a fresh synthesis result under the request's key with the TTL
// tier derived from the text length.
func (c *Cache) Put(ctx context.Context, req providers.SynthesisRequest, res *providers.SynthesisResult) {
	c.put(ctx, req, res, ClassifyTTL(req.Text))
}

func (c *Cache) put(ctx context.Context, req providers.SynthesisRequest, res *providers.SynthesisResult, tier string) {
	if res == nil || len(res.Audio) == 0 {
		return
	}

	if count, err := c.store.Count(ctx); err == nil && count >= c.cfg.MaxEntries {
		if evicted, err := c.store.EvictLRU(ctx, evictFraction); err == nil && evicted > 0 {
			c.logger.InfoTag("Cache", "capacity %d reached, evicted %d LRU entries", c.cfg.MaxEntries, evicted)
		}
	}

	audio, compressed := maybeCompress(res.Audio, c.cfg.CompressionMin)
	now := time.Now()
	entry := &Entry{
		Key:          Key(req),
		Audio:        audio,
		Compressed:   compressed,
		Format:       res.Format,
		SampleRate:   res.SampleRate,
		Duration:     res.Duration,
		Provider:     res.Provider,
		Cost:         res.Cost,
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(c.cfg.TierTTL(tier)),
	}

	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.WarnTag("Cache", "store write failed, result not cached: %v", err)
	}
}

// Delete removes one entry by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Cleanup removes expired entries now and reports how many went.
func (c *Cache) Cleanup(ctx context.Context) (int, error) {
	return c.store.CleanupExpired(ctx)
}

// Stats reports hit accounting, per-provider savings and store counters.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	hits, misses := c.hits, c.misses
	savings := make(map[string]float64, len(c.savings))
	total := 0.0
	for provider, amount := range c.savings {
		savings[provider] = amount
		total += amount
	}
	c.mu.Unlock()

	stats := Stats{
		Hits:              hits,
		Misses:            misses,
		SavingsByProvider: savings,
		TotalSaved:        total,
		TrackedPhrases:    c.freq.Size(),
	}
	if hits+misses > 0 {
		stats.HitRate = float64(hits) / float64(hits+misses)
	}
	if count, err := c.store.Count(ctx); err == nil {
		stats.Entries = count
	}
	if storeStats, err := c.store.Stats(ctx); err == nil {
		stats.Store = storeStats
	}
	return stats
}

// Close stops the background loops and the store.
func (c *Cache) Close(ctx context.Context) error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	return c.store.Close(ctx)
}

func (c *Cache) countMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// maintenanceLoop periodically drops low-value entries: hit at most once and
// idle past the optimization window.
func (c *Cache) maintenanceLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			removed, err := c.store.Optimize(ctx, c.cfg.Optimization.MaxHits, c.cfg.Optimization.IdleAfter)
			cancel()
			if err != nil {
				c.logger.WarnTag("Cache", "optimization sweep failed: %v", err)
			} else if removed > 0 {
				c.logger.InfoTag("Cache", "optimization sweep removed %d low-value entries", removed)
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) warmLoop() {
	ticker := time.NewTicker(c.cfg.Warming.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			c.WarmOnce(ctx)
			cancel()
		case <-c.stop:
			return
		}
	}
}

// WarmOnce synthesizes the top-K most frequent uncached phrases and inserts
// them with the long TTL tier.
func (c *Cache) WarmOnce(ctx context.Context) int {
	c.mu.Lock()
	warmer := c.warmer
	c.mu.Unlock()
	if warmer == nil {
		return 0
	}

	warmed := 0
	for _, req := range c.freq.TopK(c.cfg.Warming.TopK, c.cfg.Warming.MinFrequency) {
		if ctx.Err() != nil {
			break
		}
		if _, ok, err := c.store.Peek(ctx, Key(req)); err != nil || ok {
			continue
		}
		res, err := warmer(ctx, req)
		if err != nil {
			c.logger.DebugTag("Cache", "pre-warm synthesis failed for %q: %v", NormalizeText(req.Text), err)
			continue
		}
		c.put(ctx, req, res, TierLong)
		warmed++
	}
	if warmed > 0 {
		c.logger.InfoTag("Cache", "pre-warmed %d phrases", warmed)
	}
	return warmed
}
