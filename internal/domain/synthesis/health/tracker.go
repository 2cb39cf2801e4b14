// Package health tracks per-provider availability, quota and quality-of-service
// profiles. The selector reads it, the orchestrator feeds it after every
// attempt. Each provider's state is independent; there are no cross-provider
// locks.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
)

// emaAlpha is the smoothing factor for profile metrics.
const emaAlpha = 0.1

// Profile is the exponentially-smoothed quality-of-service record of one
// provider. Mutated only by the tracker after completed attempts; the
// selector reads copies.
type Profile struct {
	AvgLatency    time.Duration `json:"avg_latency"`
	SuccessRate   float64       `json:"success_rate"`
	CostPerChar   float64       `json:"cost_per_char"`
	QualityScore  float64       `json:"quality_score"`
	MaxConcurrent int           `json:"max_concurrent"`
	TotalRequests int64         `json:"total_requests"`
	TotalFailures int64         `json:"total_failures"`
	LastUsed      time.Time     `json:"last_used"`
}

// Quota is the usage ledger of one provider. A zero limit means unlimited.
type Quota struct {
	CharsUsed    int64     `json:"chars_used"`
	RequestsUsed int64     `json:"requests_used"`
	MaxChars     int64     `json:"max_chars"`
	MaxRequests  int64     `json:"max_requests"`
	ResetAt      time.Time `json:"reset_at"`
	Exceeded     bool      `json:"exceeded"`
}

// Headroom reports the remaining capacity as a fraction in [0,1], taking the
// tighter of the character and request limits. Unlimited quotas report 1.
func (q Quota) Headroom() float64 {
	headroom := 1.0
	if q.MaxChars > 0 {
		h := 1 - float64(q.CharsUsed)/float64(q.MaxChars)
		if h < headroom {
			headroom = h
		}
	}
	if q.MaxRequests > 0 {
		h := 1 - float64(q.RequestsUsed)/float64(q.MaxRequests)
		if h < headroom {
			headroom = h
		}
	}
	if headroom < 0 {
		return 0
	}
	return headroom
}

// RegisterOptions seed a provider's profile and quota at registration.
type RegisterOptions struct {
	CostPerChar   float64
	QualityScore  float64
	MaxConcurrent int
	MaxChars      int64
	MaxRequests   int64
	ResetInterval time.Duration
	Probe         ProbeFunc
}

type providerState struct {
	mu            sync.Mutex
	breaker       *Breaker
	profile       Profile
	quota         Quota
	resetInterval time.Duration
	sem           chan struct{}
}

// Tracker owns the health state of all registered providers.
type Tracker struct {
	failureThreshold int
	cooldown         time.Duration
	logger           *logging.Logger

	mu     sync.RWMutex
	states map[string]*providerState
	order  []string
}

// NewTracker creates an empty tracker with the given breaker parameters.
func NewTracker(failureThreshold int, cooldown time.Duration, logger *logging.Logger) *Tracker {
	return &Tracker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		logger:           logger,
		states:           make(map[string]*providerState),
	}
}

// Register adds a provider. Registration order is the tie-break order used by
// the selector.
func (t *Tracker) Register(name string, opts RegisterOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.states[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}

	state := &providerState{
		profile: Profile{
			SuccessRate:   1.0,
			CostPerChar:   opts.CostPerChar,
			QualityScore:  opts.QualityScore,
			MaxConcurrent: opts.MaxConcurrent,
		},
		quota: Quota{
			MaxChars:    opts.MaxChars,
			MaxRequests: opts.MaxRequests,
		},
		resetInterval: opts.ResetInterval,
	}
	if opts.ResetInterval > 0 {
		state.quota.ResetAt = time.Now().Add(opts.ResetInterval)
	}
	if opts.MaxConcurrent > 0 {
		state.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	state.breaker = NewBreaker(t.failureThreshold, t.cooldown, opts.Probe, func(s string) {
		t.logger.InfoTag("Health", "provider %s breaker %s", name, s)
	})

	t.states[name] = state
	t.order = append(t.order, name)
	return nil
}

// Order returns the provider names in registration order.
func (t *Tracker) Order() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Available reports whether the provider's breaker admits traffic.
func (t *Tracker) Available(name string) bool {
	state := t.state(name)
	if state == nil {
		return false
	}
	return state.breaker.Allow()
}

// BreakerState returns closed, open or half-open.
func (t *Tracker) BreakerState(name string) string {
	state := t.state(name)
	if state == nil {
		return ""
	}
	return state.breaker.State()
}

// CheckQuota rejects pre-flight when admitting chars would exceed the
// provider's remaining quota. The ledger is not mutated by a rejection.
func (t *Tracker) CheckQuota(name string, chars int) error {
	state := t.state(name)
	if state == nil {
		return errors.New(errors.KindProviderUnavailable, "health.CheckQuota", "unknown provider: "+name)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.maybeResetLocked()

	q := &state.quota
	if q.MaxChars > 0 && q.CharsUsed+int64(chars) > q.MaxChars {
		q.Exceeded = true
		return errors.New(errors.KindQuotaExceeded, "health.CheckQuota",
			fmt.Sprintf("provider %s would exceed character quota (%d/%d)", name, q.CharsUsed, q.MaxChars))
	}
	if q.MaxRequests > 0 && q.RequestsUsed+1 > q.MaxRequests {
		q.Exceeded = true
		return errors.New(errors.KindQuotaExceeded, "health.CheckQuota",
			fmt.Sprintf("provider %s would exceed request quota (%d/%d)", name, q.RequestsUsed, q.MaxRequests))
	}
	return nil
}

// RecordSuccess folds a completed attempt into the profile, consumes quota
// and closes the breaker. cost is the total charge for the attempt.
func (t *Tracker) RecordSuccess(name string, latency time.Duration, cost float64, chars int) {
	state := t.state(name)
	if state == nil {
		return
	}

	state.mu.Lock()
	p := &state.profile
	p.TotalRequests++
	p.LastUsed = time.Now()
	p.SuccessRate = ema(p.SuccessRate, 1)
	p.AvgLatency = emaLatency(p.AvgLatency, latency)
	if chars > 0 && cost > 0 {
		p.CostPerChar = ema(p.CostPerChar, cost/float64(chars))
	}

	state.maybeResetLocked()
	state.quota.CharsUsed += int64(chars)
	state.quota.RequestsUsed++
	state.mu.Unlock()

	state.breaker.RecordSuccess()
}

// RecordFailure folds a failed attempt into the profile and breaker. Failed
// attempts consume no quota.
func (t *Tracker) RecordFailure(name string, latency time.Duration) {
	state := t.state(name)
	if state == nil {
		return
	}

	state.mu.Lock()
	p := &state.profile
	p.TotalRequests++
	p.TotalFailures++
	p.LastUsed = time.Now()
	p.SuccessRate = ema(p.SuccessRate, 0)
	if latency > 0 {
		p.AvgLatency = emaLatency(p.AvgLatency, latency)
	}
	state.mu.Unlock()

	state.breaker.RecordFailure()
}

// Profile returns a copy of the provider's profile.
func (t *Tracker) Profile(name string) (Profile, bool) {
	state := t.state(name)
	if state == nil {
		return Profile{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.profile, true
}

// QuotaSnapshot returns a copy of the provider's quota ledger.
func (t *Tracker) QuotaSnapshot(name string) (Quota, bool) {
	state := t.state(name)
	if state == nil {
		return Quota{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.maybeResetLocked()
	return state.quota, true
}

// Acquire claims a concurrency slot on the provider, waiting until one frees
// or the context ends. Providers without a limit admit immediately.
func (t *Tracker) Acquire(ctx context.Context, name string) error {
	state := t.state(name)
	if state == nil || state.sem == nil {
		return nil
	}
	select {
	case state.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot claimed by Acquire.
func (t *Tracker) Release(name string) {
	state := t.state(name)
	if state == nil || state.sem == nil {
		return
	}
	select {
	case <-state.sem:
	default:
	}
}

// Close stops all breaker timers.
func (t *Tracker) Close() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, state := range t.states {
		state.breaker.Stop()
	}
}

func (t *Tracker) state(name string) *providerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[name]
}

// maybeResetLocked rolls the quota window forward once the reset boundary
// passes. Usage zeroes and the exceeded flag clears.
func (s *providerState) maybeResetLocked() {
	if s.resetInterval <= 0 || s.quota.ResetAt.IsZero() {
		return
	}
	now := time.Now()
	if now.Before(s.quota.ResetAt) {
		return
	}
	for !now.Before(s.quota.ResetAt) {
		s.quota.ResetAt = s.quota.ResetAt.Add(s.resetInterval)
	}
	s.quota.CharsUsed = 0
	s.quota.RequestsUsed = 0
	s.quota.Exceeded = false
}

func ema(old, sample float64) float64 {
	return old*(1-emaAlpha) + sample*emaAlpha
}

// emaLatency seeds from the first sample instead of smoothing up from zero.
func emaLatency(old, sample time.Duration) time.Duration {
	if old == 0 {
		return sample
	}
	return time.Duration(float64(old)*(1-emaAlpha) + float64(sample)*emaAlpha)
}
