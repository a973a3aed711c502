// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	tests := []struct {
		name      string
		cfg       RateLimiterConfig
		wantBurst int
		wantRate  float64
	}{
		{"zero values use defaults", RateLimiterConfig{}, DefaultBurst, DefaultRate},
		{"negative values use defaults", RateLimiterConfig{Rate: -1, Burst: -5}, DefaultBurst, DefaultRate},
		{"custom values", RateLimiterConfig{Rate: 5, Burst: 20}, 20, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.cfg)
			defer rl.Close()

			assert.Equal(t, tt.wantBurst, rl.burst)
			assert.InDelta(t, tt.wantRate, float64(rl.limit), 0)
			assert.Equal(t, DefaultClientMaxAge, rl.maxAge)
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	clock := newStepClock()
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 3, Now: clock.Now})
	defer rl.Close()

	t.Run("allows up to burst", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("192.0.2.1"), "request %d", i+1)
		}
		assert.False(t, rl.Allow("192.0.2.1"))
	})

	t.Run("clients have separate buckets", func(t *testing.T) {
		assert.True(t, rl.Allow("192.0.2.2"))
	})

	t.Run("tokens refill at the sustained rate", func(t *testing.T) {
		clock.Advance(time.Second)
		assert.True(t, rl.Allow("192.0.2.1"))
		assert.False(t, rl.Allow("192.0.2.1"))
	})
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := newStepClock()
	rl := NewRateLimiter(RateLimiterConfig{Now: clock.Now})
	defer rl.Close()

	rl.Allow("192.0.2.1")
	clock.Advance(30 * time.Minute)
	rl.Allow("192.0.2.2")
	assert.Equal(t, 2, rl.ClientCount())

	clock.Advance(45 * time.Minute)
	assert.Equal(t, 1, rl.Cleanup(time.Hour))
	assert.Equal(t, 1, rl.ClientCount())

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
}

func TestRateLimiter_CloseStopsCleanup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := NewRateLimiter(RateLimiterConfig{CleanupInterval: time.Millisecond})
	rl.Allow("192.0.2.1")
	time.Sleep(5 * time.Millisecond)
	rl.Close()
	rl.Close()
}

func TestRateLimiter_ConcurrentAllow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 50})
	defer rl.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("198.51.100.7") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
