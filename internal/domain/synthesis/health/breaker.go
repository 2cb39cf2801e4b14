package health

import (
	"context"
	"sync"
	"time"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

const probeTimeout = 5 * time.Second

// ProbeFunc runs a lightweight health check against a backend.
type ProbeFunc func(ctx context.Context) error

// Breaker is a per-provider circuit breaker. Consecutive failures up to the
// threshold open it; a cooldown timer half-opens it, resets the failure count
// and runs the probe. Probe success closes the breaker, probe failure starts
// another cooldown. Callers are never blocked; the half-open transition is
// timer-driven.
type Breaker struct {
	mu        sync.Mutex
	state     string
	failures  int
	threshold int
	cooldown  time.Duration
	probe     ProbeFunc
	timer     *time.Timer
	onChange  func(state string)
	closed    bool
}

// NewBreaker creates a closed breaker. probe and onChange may be nil.
func NewBreaker(threshold int, cooldown time.Duration, probe ProbeFunc, onChange func(state string)) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		probe:     probe,
		onChange:  onChange,
	}
}

// Allow reports whether traffic may pass. Half-open admits trial traffic.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != StateOpen
}

// State returns the current breaker state.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.setStateLocked(StateClosed)
}

// RecordFailure counts one failure. Reaching the threshold, or failing while
// half-open, opens the breaker and schedules the half-open transition.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.openLocked()
	}
}

// Stop cancels the pending half-open timer. Used on shutdown.
func (b *Breaker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Breaker) openLocked() {
	if b.closed {
		return
	}
	b.setStateLocked(StateOpen)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.cooldown, b.halfOpen)
}

// halfOpen fires after the cooldown: reset the failure count, admit traffic
// again and verify the backend with the probe.
func (b *Breaker) halfOpen() {
	b.mu.Lock()
	if b.closed || b.state != StateOpen {
		b.mu.Unlock()
		return
	}
	b.failures = 0
	b.setStateLocked(StateHalfOpen)
	probe := b.probe
	b.mu.Unlock()

	if probe == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := probe(ctx); err != nil {
		b.mu.Lock()
		if !b.closed && b.state == StateHalfOpen {
			b.openLocked()
		}
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	if !b.closed && b.state == StateHalfOpen {
		b.setStateLocked(StateClosed)
	}
	b.mu.Unlock()
}

func (b *Breaker) setStateLocked(state string) {
	if b.state == state {
		return
	}
	b.state = state
	if b.onChange != nil {
		// Callbacks run inline; keep them cheap.
		b.onChange(state)
	}
}
