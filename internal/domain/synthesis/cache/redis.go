package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed cache store. Expiry is delegated to
// redis TTLs; LRU pressure is left to the server's eviction policy.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "chorus:cache:"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) key(k string) string {
	return s.prefix + k
}

func (s *redisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	entry, ok, err := s.Peek(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}

	entry.HitCount++
	entry.LastAccessed = time.Now()

	// Write the touch back without disturbing the redis TTL. Concurrent hits
	// may lose increments; hit counts are advisory in this path.
	if data, err := sonic.Marshal(entry); err == nil {
		_ = s.client.Set(ctx, s.key(key), data, redis.KeepTTL).Err()
	}
	return entry, true, nil
}

func (s *redisStore) Peek(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entry Entry
	if err := sonic.Unmarshal(raw, &entry); err != nil {
		return nil, false, err
	}
	if entry.Expired(time.Now()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return &entry, true, nil
}

func (s *redisStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Key == "" {
		return fmt.Errorf("cache entry requires a key")
	}
	data, err := sonic.Marshal(entry)
	if err != nil {
		return err
	}

	expiry := time.Until(entry.ExpiresAt)
	if expiry <= 0 {
		return fmt.Errorf("cache entry already expired")
	}
	return s.client.Set(ctx, s.key(entry.Key), data, expiry).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) Count(ctx context.Context) (int, error) {
	total := 0
	err := s.scan(ctx, func(keys []string) error {
		total += len(keys)
		return nil
	})
	return total, err
}

func (s *redisStore) CleanupExpired(context.Context) (int, error) {
	// Redis expires entries via TTL.
	return 0, nil
}

func (s *redisStore) EvictLRU(context.Context, float64) (int, error) {
	// Left to the server's maxmemory policy.
	return 0, nil
}

func (s *redisStore) Optimize(ctx context.Context, maxHits int64, idleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-idleAfter)
	removed := 0

	err := s.scan(ctx, func(keys []string) error {
		for _, fullKey := range keys {
			raw, err := s.client.Get(ctx, fullKey).Bytes()
			if err != nil {
				continue
			}
			var entry Entry
			if err := sonic.Unmarshal(raw, &entry); err != nil {
				continue
			}
			at := entry.LastAccessed
			if at.IsZero() {
				at = entry.CreatedAt
			}
			if entry.HitCount <= maxHits && at.Before(cutoff) {
				if s.client.Del(ctx, fullKey).Err() == nil {
					removed++
				}
			}
		}
		return nil
	})
	return removed, err
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "redis",
		"total": total,
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}

func (s *redisStore) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	pattern := s.prefix + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if err := fn(keys); err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
