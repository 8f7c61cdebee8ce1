package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedRand struct{ v float64 }

func (f fixedRand) Float64() float64 { return f.v }

func TestNextDelayFixed(t *testing.T) {
	d := NextDelay(Fixed, 5, 10*time.Second, time.Minute, nil)
	assert.Equal(t, 10*time.Second, d)
}

func TestNextDelayExponential(t *testing.T) {
	base := time.Second
	max := 20 * time.Second

	assert.Equal(t, 1*time.Second, NextDelay(Exponential, 0, base, max, nil))
	assert.Equal(t, 2*time.Second, NextDelay(Exponential, 1, base, max, nil))
	assert.Equal(t, 4*time.Second, NextDelay(Exponential, 2, base, max, nil))
	assert.Equal(t, 8*time.Second, NextDelay(Exponential, 3, base, max, nil))
	// 2^4 = 16s is still under max; 2^5 = 32s is capped at max.
	assert.Equal(t, 16*time.Second, NextDelay(Exponential, 4, base, max, nil))
	assert.Equal(t, max, NextDelay(Exponential, 5, base, max, nil))
}

func TestNextDelayJitterNotCappedAfterAddend(t *testing.T) {
	base := 10 * time.Second
	max := 15 * time.Second

	// retryCount=1 -> exponential = 20s, capped to max=15s.
	// jitter span = 0.5*15s = 7.5s; with r=1.0 addend=7.5s -> total 22.5s, uncapped.
	d := NextDelay(Jitter, 1, base, max, fixedRand{v: 1.0})
	assert.Equal(t, 15*time.Second+7500*time.Millisecond, d)

	// r=0 -> no addend, result equals the capped exponential.
	d0 := NextDelay(Jitter, 1, base, max, fixedRand{v: 0})
	assert.Equal(t, 15*time.Second, d0)
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(0, 3))
	assert.True(t, ShouldRetry(2, 3))
	assert.False(t, ShouldRetry(3, 3))
	assert.False(t, ShouldRetry(4, 3))
}

func TestNextTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := NextTime(now, Fixed, 0, 5*time.Second, time.Minute, nil)
	assert.Equal(t, now.Add(5*time.Second), got)
}
