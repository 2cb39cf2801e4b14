package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Hour, nil, nil)
	defer b.Stop()

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow())
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.False(t, b.Allow())
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Hour, nil, nil)
	defer b.Stop()

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpensAfterCooldown(t *testing.T) {
	b := NewBreaker(1, 50*time.Millisecond, nil, nil)
	defer b.Stop()

	b.RecordFailure()
	assert.False(t, b.Allow())

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_ProbeClosesBreaker(t *testing.T) {
	var probes atomic.Int32
	b := NewBreaker(1, 50*time.Millisecond, func(ctx context.Context) error {
		probes.Add(1)
		return nil
	}, nil)
	defer b.Stop()

	b.RecordFailure()
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, int32(1), probes.Load())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := NewBreaker(1, 50*time.Millisecond, func(ctx context.Context) error {
		return errors.New("still down")
	}, nil)
	defer b.Stop()

	b.RecordFailure()
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_FailureWhileHalfOpenReopens(t *testing.T) {
	b := NewBreaker(3, 50*time.Millisecond, nil, nil)
	defer b.Stop()

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	// One trial failure is enough to trip a half-open breaker.
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	b := NewBreaker(1, time.Hour, nil, func(state string) {
		transitions = append(transitions, state)
	})
	defer b.Stop()

	b.RecordFailure()
	b.RecordSuccess()

	assert.Equal(t, []string{StateOpen, StateClosed}, transitions)
}
