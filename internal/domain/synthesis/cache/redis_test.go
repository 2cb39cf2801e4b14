package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newRedisForTest(t *testing.T) Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedis(Config{Redis: &RedisConfig{Addr: mr.Addr()}})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})
	return store
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newRedisForTest(t)

	entry := testEntry("k1", time.Minute)
	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got, ok, err := store.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if string(got.Audio) != string(entry.Audio) {
		t.Fatalf("unexpected audio: %q", got.Audio)
	}
	if got.Provider != "edge" || got.Format != "mp3" {
		t.Fatalf("metadata lost in round trip: %+v", got)
	}

	count, err := store.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("unexpected count: %d err=%v", count, err)
	}

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k1"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestRedisStoreTouchPersists(t *testing.T) {
	ctx := context.Background()
	store := newRedisForTest(t)

	if err := store.Set(ctx, testEntry("k1", time.Minute)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	_, _, _ = store.Get(ctx, "k1")
	got, ok, _ := store.Peek(ctx, "k1")
	if !ok {
		t.Fatalf("expected entry present")
	}
	if got.HitCount != 1 {
		t.Fatalf("expected persisted hit count 1, got %d", got.HitCount)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := newRedisForTest(t)

	if err := store.Set(ctx, testEntry("gone", 30*time.Millisecond)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, "gone"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestRedisStoreRejectsExpiredWrite(t *testing.T) {
	ctx := context.Background()
	store := newRedisForTest(t)

	if err := store.Set(ctx, testEntry("dead", -time.Second)); err == nil {
		t.Fatalf("expected error writing already-expired entry")
	}
}

func TestRedisStoreOptimize(t *testing.T) {
	ctx := context.Background()
	store := newRedisForTest(t)

	stale := testEntry("stale", time.Hour)
	stale.LastAccessed = time.Now().Add(-8 * 24 * time.Hour)
	if err := store.Set(ctx, stale); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	popular := testEntry("popular", time.Hour)
	popular.HitCount = 10
	popular.LastAccessed = time.Now().Add(-8 * 24 * time.Hour)
	if err := store.Set(ctx, popular); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	removed, err := store.Optimize(ctx, 1, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok, _ := store.Peek(ctx, "popular"); !ok {
		t.Fatalf("expected popular entry kept")
	}
}

func TestRedisStoreCleanupDelegated(t *testing.T) {
	ctx := context.Background()
	store := newRedisForTest(t)

	removed, err := store.CleanupExpired(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("expected delegated cleanup to be a no-op, got %d err=%v", removed, err)
	}
	evicted, err := store.EvictLRU(ctx, 0.10)
	if err != nil || evicted != 0 {
		t.Fatalf("expected delegated eviction to be a no-op, got %d err=%v", evicted, err)
	}
}
