package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus-server-go/internal/contracts/providers"
)

func newCacheForTest(t *testing.T, mutate func(*Config)) *Cache {
	t.Helper()
	cfg := Config{
		Driver:          DriverMemory,
		Memory:          &MemoryConfig{GCInterval: time.Hour},
		CleanupInterval: time.Hour,
		Warming:         WarmingConfig{Interval: time.Hour},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close(context.Background())
	})
	return c
}

func synthResult(provider string, cost float64, audio []byte) *providers.SynthesisResult {
	return &providers.SynthesisResult{
		Audio:      audio,
		Format:     "mp3",
		SampleRate: 24000,
		Duration:   1200 * time.Millisecond,
		Provider:   provider,
		Cost:       cost,
		Latency:    80 * time.Millisecond,
	}
}

func TestCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	c := newCacheForTest(t, nil)

	req := providers.SynthesisRequest{Text: "Good morning", Provider: "openai"}

	_, ok := c.Get(ctx, req)
	assert.False(t, ok)

	c.Put(ctx, req, synthResult("openai", 0.05, []byte("mp3-bytes")))

	res, ok := c.Get(ctx, req)
	require.True(t, ok)
	assert.True(t, res.Cached)
	assert.Equal(t, []byte("mp3-bytes"), res.Audio)
	assert.Equal(t, "openai", res.Provider)

	// Hits report zero cost and latency.
	assert.Zero(t, res.Cost)
	assert.Zero(t, res.Latency)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 0.05, stats.SavingsByProvider["openai"], 1e-9)
}

func TestCache_SavingsAccumulatePerProvider(t *testing.T) {
	ctx := context.Background()
	c := newCacheForTest(t, nil)

	req := providers.SynthesisRequest{Text: "hello"}
	c.Put(ctx, req, synthResult("neural", 0.02, []byte("wav")))

	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, req)
		require.True(t, ok)
	}

	stats := c.Stats(ctx)
	assert.InDelta(t, 0.06, stats.SavingsByProvider["neural"], 1e-9)
	assert.InDelta(t, 0.06, stats.TotalSaved, 1e-9)
}

func TestCache_CompressionRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCacheForTest(t, func(cfg *Config) {
		cfg.CompressionMin = 64
	})

	audio := bytes.Repeat([]byte("chorus-audio-frame "), 600)
	req := providers.SynthesisRequest{Text: "a very compressible phrase"}
	c.Put(ctx, req, synthResult("edge", 0, audio))

	res, ok := c.Get(ctx, req)
	require.True(t, ok)
	assert.Equal(t, audio, res.Audio)
}

func TestMaybeCompress(t *testing.T) {
	big := bytes.Repeat([]byte("abcd"), 4096)
	out, compressed := maybeCompress(big, 4096)
	require.True(t, compressed)
	assert.Less(t, len(out), len(big))

	restored, err := decompress(out)
	require.NoError(t, err)
	assert.Equal(t, big, restored)

	small := []byte("tiny")
	out, compressed = maybeCompress(small, 4096)
	assert.False(t, compressed)
	assert.Equal(t, small, out)
}

func TestCache_EvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := newCacheForTest(t, func(cfg *Config) {
		cfg.MaxEntries = 10
	})

	for i := 0; i < 15; i++ {
		req := providers.SynthesisRequest{Text: fmt.Sprintf("phrase %d", i)}
		c.Put(ctx, req, synthResult("edge", 0, []byte("x")))
	}

	stats := c.Stats(ctx)
	assert.LessOrEqual(t, stats.Entries, 10)
}

func TestCache_WarmOnce(t *testing.T) {
	ctx := context.Background()
	c := newCacheForTest(t, nil)

	req := providers.SynthesisRequest{Text: "welcome back", Provider: "edge"}
	for i := 0; i < 3; i++ {
		_, _ = c.Get(ctx, req) // misses, counted by the frequency table
	}

	var warmedReqs []string
	c.SetWarmer(func(ctx context.Context, r providers.SynthesisRequest) (*providers.SynthesisResult, error) {
		warmedReqs = append(warmedReqs, r.Text)
		return synthResult("edge", 0.01, []byte("warmed-audio")), nil
	})

	assert.Equal(t, 1, c.WarmOnce(ctx))
	assert.Equal(t, []string{"welcome back"}, warmedReqs)

	res, ok := c.Get(ctx, req)
	require.True(t, ok)
	assert.Equal(t, []byte("warmed-audio"), res.Audio)

	// A second pass finds the phrase cached and does nothing.
	assert.Equal(t, 0, c.WarmOnce(ctx))
}

func TestCache_WarmSkipsInfrequentPhrases(t *testing.T) {
	ctx := context.Background()
	c := newCacheForTest(t, nil)

	_, _ = c.Get(ctx, providers.SynthesisRequest{Text: "seen once"})

	c.SetWarmer(func(ctx context.Context, r providers.SynthesisRequest) (*providers.SynthesisResult, error) {
		t.Fatalf("warmer must not run for phrases below the frequency floor")
		return nil, nil
	})

	assert.Equal(t, 0, c.WarmOnce(ctx))
}

func TestCache_WarmerFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	c := newCacheForTest(t, nil)

	req := providers.SynthesisRequest{Text: "hard phrase"}
	_, _ = c.Get(ctx, req)
	_, _ = c.Get(ctx, req)

	c.SetWarmer(func(ctx context.Context, r providers.SynthesisRequest) (*providers.SynthesisResult, error) {
		return nil, errors.New("all providers down")
	})

	assert.Equal(t, 0, c.WarmOnce(ctx))
}

// brokenStore fails every operation; the facade must degrade to misses and
// dropped writes without surfacing errors.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*Entry, bool, error) {
	return nil, false, errors.New("store down")
}
func (brokenStore) Peek(context.Context, string) (*Entry, bool, error) {
	return nil, false, errors.New("store down")
}
func (brokenStore) Set(context.Context, *Entry) error    { return errors.New("store down") }
func (brokenStore) Delete(context.Context, string) error { return errors.New("store down") }
func (brokenStore) Count(context.Context) (int, error)   { return 0, errors.New("store down") }
func (brokenStore) CleanupExpired(context.Context) (int, error) {
	return 0, errors.New("store down")
}
func (brokenStore) EvictLRU(context.Context, float64) (int, error) {
	return 0, errors.New("store down")
}
func (brokenStore) Optimize(context.Context, int64, time.Duration) (int, error) {
	return 0, errors.New("store down")
}
func (brokenStore) Stats(context.Context) (map[string]any, error) {
	return nil, errors.New("store down")
}
func (brokenStore) Close(context.Context) error { return nil }

func TestCache_StoreFailuresNeverPropagate(t *testing.T) {
	ctx := context.Background()
	c := newCacheForTest(t, nil)
	c.store = brokenStore{}

	req := providers.SynthesisRequest{Text: "anything"}

	res, ok := c.Get(ctx, req)
	assert.False(t, ok)
	assert.Nil(t, res)

	// Put and Stats must not panic or error out.
	c.Put(ctx, req, synthResult("edge", 0.01, []byte("x")))
	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Misses)
}
