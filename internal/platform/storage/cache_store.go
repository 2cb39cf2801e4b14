package storage

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"

	"chorus-server-go/internal/domain/synthesis/cache"
	"chorus-server-go/internal/platform/errors"
)

type cacheStore struct {
	db *gorm.DB
}

// NewCacheStore builds the sqlite-backed cache store. Unlike the in-memory
// store, entries survive a process restart, so a warm cache comes back after
// a deploy.
func NewCacheStore(db *gorm.DB) cache.Store {
	return &cacheStore{
		db: db,
	}
}

func (s *cacheStore) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	now := time.Now()
	var entry *cache.Entry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record CacheEntryRecord
		if err := tx.Where("key = ?", key).First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return errors.Wrap(errors.KindStorage, "cache.get", "failed to load cache entry", err)
		}
		if record.ExpiresAt != nil && now.After(*record.ExpiresAt) {
			if err := tx.Where("key = ?", key).Delete(&CacheEntryRecord{}).Error; err != nil {
				return errors.Wrap(errors.KindStorage, "cache.get", "failed to drop expired entry", err)
			}
			return nil
		}

		updates := map[string]interface{}{
			"hit_count":     gorm.Expr("hit_count + 1"),
			"last_accessed": now,
		}
		if err := tx.Model(&CacheEntryRecord{}).Where("key = ?", key).Updates(updates).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "cache.get", "failed to record hit", err)
		}

		record.HitCount++
		record.LastAccessed = now
		entry = s.fromRecord(&record)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, entry != nil, nil
}

func (s *cacheStore) Peek(ctx context.Context, key string) (*cache.Entry, bool, error) {
	var record CacheEntryRecord
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(errors.KindStorage, "cache.peek", "failed to load cache entry", err)
	}
	if record.ExpiresAt != nil && time.Now().After(*record.ExpiresAt) {
		return nil, false, nil
	}
	return s.fromRecord(&record), true, nil
}

func (s *cacheStore) Set(ctx context.Context, entry *cache.Entry) error {
	if entry == nil || entry.Key == "" {
		return errors.New(errors.KindStorage, "cache.set", "cache entry requires a key")
	}
	if err := s.db.WithContext(ctx).Save(s.toRecord(entry)).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "cache.set", "failed to save cache entry", err)
	}
	return nil
}

func (s *cacheStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&CacheEntryRecord{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "cache.delete", "failed to delete cache entry", err)
	}
	return nil
}

func (s *cacheStore) Count(ctx context.Context) (int, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&CacheEntryRecord{}).Count(&total).Error; err != nil {
		return 0, errors.Wrap(errors.KindStorage, "cache.count", "failed to count cache entries", err)
	}
	return int(total), nil
}

func (s *cacheStore) CleanupExpired(ctx context.Context) (int, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&CacheEntryRecord{})
	if result.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "cache.cleanup", "failed to delete expired entries", result.Error)
	}
	return int(result.RowsAffected), nil
}

// EvictLRU removes the least-recently-accessed fraction of entries in one
// batch, at least one entry when any exist.
func (s *cacheStore) EvictLRU(ctx context.Context, fraction float64) (int, error) {
	if fraction <= 0 {
		return 0, nil
	}

	victims := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&CacheEntryRecord{}).Count(&total).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "cache.evict", "failed to count cache entries", err)
		}
		if total == 0 {
			return nil
		}

		n := int(math.Ceil(float64(total) * fraction))
		if n < 1 {
			n = 1
		}

		var keys []string
		if err := tx.Model(&CacheEntryRecord{}).
			Order("last_accessed ASC, created_at ASC").Limit(n).
			Pluck("key", &keys).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "cache.evict", "failed to pick eviction victims", err)
		}
		if len(keys) == 0 {
			return nil
		}

		if err := tx.Where("key IN ?", keys).Delete(&CacheEntryRecord{}).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "cache.evict", "failed to delete victims", err)
		}
		victims = len(keys)
		return nil
	})
	return victims, err
}

// Optimize removes entries with at most maxHits hits whose last access (or
// creation, for never-read rows) predates the idle cutoff.
func (s *cacheStore) Optimize(ctx context.Context, maxHits int64, idleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-idleAfter)
	result := s.db.WithContext(ctx).
		Where("hit_count <= ? AND last_accessed < ? AND created_at < ?", maxHits, cutoff, cutoff).
		Delete(&CacheEntryRecord{})
	if result.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "cache.optimize", "failed to purge low-value entries", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *cacheStore) Stats(ctx context.Context) (map[string]any, error) {
	var total, expired int64
	var bytes int64

	db := s.db.WithContext(ctx)
	if err := db.Model(&CacheEntryRecord{}).Count(&total).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "cache.stats", "failed to count cache entries", err)
	}
	if err := db.Model(&CacheEntryRecord{}).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Count(&expired).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "cache.stats", "failed to count expired entries", err)
	}
	if err := db.Model(&CacheEntryRecord{}).
		Select("COALESCE(SUM(LENGTH(audio)), 0)").Scan(&bytes).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "cache.stats", "failed to sum audio bytes", err)
	}

	return map[string]any{
		"type":        "sqlite",
		"total":       total,
		"expired":     expired,
		"audio_bytes": bytes,
	}, nil
}

// Close is a no-op: the database handle belongs to the caller.
func (s *cacheStore) Close(ctx context.Context) error {
	return nil
}

func (s *cacheStore) toRecord(entry *cache.Entry) *CacheEntryRecord {
	record := &CacheEntryRecord{
		Key:          entry.Key,
		Audio:        entry.Audio,
		Compressed:   entry.Compressed,
		Format:       entry.Format,
		SampleRate:   entry.SampleRate,
		DurationMs:   entry.Duration.Milliseconds(),
		Provider:     entry.Provider,
		Cost:         entry.Cost,
		HitCount:     entry.HitCount,
		CreatedAt:    entry.CreatedAt,
		LastAccessed: entry.LastAccessed,
	}
	if !entry.ExpiresAt.IsZero() {
		expires := entry.ExpiresAt
		record.ExpiresAt = &expires
	}
	return record
}

func (s *cacheStore) fromRecord(record *CacheEntryRecord) *cache.Entry {
	entry := &cache.Entry{
		Key:          record.Key,
		Audio:        record.Audio,
		Compressed:   record.Compressed,
		Format:       record.Format,
		SampleRate:   record.SampleRate,
		Duration:     time.Duration(record.DurationMs) * time.Millisecond,
		Provider:     record.Provider,
		Cost:         record.Cost,
		HitCount:     record.HitCount,
		CreatedAt:    record.CreatedAt,
		LastAccessed: record.LastAccessed,
	}
	if record.ExpiresAt != nil {
		entry.ExpiresAt = *record.ExpiresAt
	}
	return entry
}
