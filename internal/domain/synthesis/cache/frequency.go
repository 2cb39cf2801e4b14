package cache

import (
	"sort"
	"sync"
	"time"

	"chorus-server-go/internal/contracts/providers"
)

// phraseStat tracks one normalized phrase and the most recent request that
// asked for it, so the warmer can re-issue it verbatim.
type phraseStat struct {
	count    int
	lastSeen time.Time
	request  providers.SynthesisRequest
}

// FrequencyTable is a bounded most-requested-phrases tracker. When full, the
// lowest-count phrase (oldest on ties) is evicted to admit a new one.
type FrequencyTable struct {
	mu       sync.Mutex
	capacity int
	phrases  map[string]*phraseStat
}

// NewFrequencyTable creates a table bounded to capacity phrases.
func NewFrequencyTable(capacity int) *FrequencyTable {
	if capacity <= 0 {
		capacity = 1000
	}
	return &FrequencyTable{
		capacity: capacity,
		phrases:  make(map[string]*phraseStat),
	}
}

// Record counts one request for its normalized phrase.
func (t *FrequencyTable) Record(req providers.SynthesisRequest) {
	phrase := NormalizeText(req.Text)
	if phrase == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if stat, ok := t.phrases[phrase]; ok {
		stat.count++
		stat.lastSeen = time.Now()
		stat.request = req
		return
	}

	if len(t.phrases) >= t.capacity {
		t.evictColdestLocked()
	}
	t.phrases[phrase] = &phraseStat{
		count:    1,
		lastSeen: time.Now(),
		request:  req,
	}
}

// TopK returns the up-to-k most frequent requests seen at least minCount
// times, most frequent first.
func (t *FrequencyTable) TopK(k, minCount int) []providers.SynthesisRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	type ranked struct {
		stat *phraseStat
	}
	candidates := make([]ranked, 0, len(t.phrases))
	for _, stat := range t.phrases {
		if stat.count >= minCount {
			candidates = append(candidates, ranked{stat: stat})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].stat.count != candidates[j].stat.count {
			return candidates[i].stat.count > candidates[j].stat.count
		}
		return candidates[i].stat.lastSeen.After(candidates[j].stat.lastSeen)
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]providers.SynthesisRequest, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, c.stat.request)
	}
	return out
}

// Size reports the current phrase count.
func (t *FrequencyTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.phrases)
}

func (t *FrequencyTable) evictColdestLocked() {
	var victim string
	var victimStat *phraseStat
	for phrase, stat := range t.phrases {
		if victimStat == nil ||
			stat.count < victimStat.count ||
			(stat.count == victimStat.count && stat.lastSeen.Before(victimStat.lastSeen)) {
			victim = phrase
			victimStat = stat
		}
	}
	if victim != "" {
		delete(t.phrases, victim)
	}
}
