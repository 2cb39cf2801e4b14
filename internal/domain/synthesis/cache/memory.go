package cache

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	entries  map[string]*Entry
	mutex    sync.RWMutex
	gcFreq   time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory builds the in-memory cache store with a periodic expiry sweep.
func NewMemory(cfg Config) Store {
	gc := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		gc = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		entries: make(map[string]*Entry),
		gcFreq:  gc,
		stop:    make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.gcFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	now := time.Now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(now) {
		delete(s.entries, key)
		return nil, false, nil
	}

	entry.HitCount++
	entry.LastAccessed = now

	copied := *entry
	return &copied, true, nil
}

func (s *memoryStore) Peek(_ context.Context, key string) (*Entry, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, ok := s.entries[key]
	if !ok || entry.Expired(time.Now()) {
		return nil, false, nil
	}
	copied := *entry
	return &copied, true, nil
}

func (s *memoryStore) Set(_ context.Context, entry *Entry) error {
	if entry == nil || entry.Key == "" {
		return fmt.Errorf("cache entry requires a key")
	}
	copied := *entry

	s.mutex.Lock()
	s.entries[copied.Key] = &copied
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	delete(s.entries, key)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Count(_ context.Context) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries), nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) (int, error) {
	now := time.Now()
	removed := 0

	s.mutex.Lock()
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	s.mutex.Unlock()
	return removed, nil
}

// EvictLRU removes the least-recently-accessed fraction of entries in one
// batch, at least one entry when any exist.
func (s *memoryStore) EvictLRU(_ context.Context, fraction float64) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.entries) == 0 || fraction <= 0 {
		return 0, nil
	}

	type aged struct {
		key      string
		accessed time.Time
	}
	ordered := make([]aged, 0, len(s.entries))
	for key, entry := range s.entries {
		at := entry.LastAccessed
		if at.IsZero() {
			at = entry.CreatedAt
		}
		ordered = append(ordered, aged{key: key, accessed: at})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].accessed.Before(ordered[j].accessed)
	})

	victims := int(math.Ceil(float64(len(ordered)) * fraction))
	if victims < 1 {
		victims = 1
	}
	if victims > len(ordered) {
		victims = len(ordered)
	}

	for _, v := range ordered[:victims] {
		delete(s.entries, v.key)
	}
	return victims, nil
}

func (s *memoryStore) Optimize(_ context.Context, maxHits int64, idleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-idleAfter)
	removed := 0

	s.mutex.Lock()
	for key, entry := range s.entries {
		at := entry.LastAccessed
		if at.IsZero() {
			at = entry.CreatedAt
		}
		if entry.HitCount <= maxHits && at.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	s.mutex.Unlock()
	return removed, nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := len(s.entries)
	expired := 0
	var bytes int64
	for _, entry := range s.entries {
		if entry.Expired(now) {
			expired++
		}
		bytes += int64(len(entry.Audio))
	}
	return map[string]any{
		"type":        "memory",
		"total":       total,
		"expired":     expired,
		"audio_bytes": bytes,
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
