package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsUpToCap(t *testing.T) {
	l := NewLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Check("1.2.3.4").Allowed, "request %d should be allowed", i+1)
	}

	result := l.Check("1.2.3.4")
	require.False(t, result.Allowed)
	assert.InDelta(t, time.Minute.Seconds(), result.RetryAfter.Seconds(), 1.0,
		"retry-after should be roughly the remaining window")

	// A different key has its own window.
	assert.True(t, l.Check("5.6.7.8").Allowed)
}

func TestLimiterWindowSlides(t *testing.T) {
	now := time.Now()
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	require.True(t, l.Check("k").Allowed)
	now = now.Add(30 * time.Second)
	require.True(t, l.Check("k").Allowed)

	denied := l.Check("k")
	require.False(t, denied.Allowed)
	assert.Equal(t, 30*time.Second, denied.RetryAfter)

	// Once the earliest timestamp falls out of the window, checks pass again.
	now = now.Add(31 * time.Second)
	assert.True(t, l.Check("k").Allowed)
}

func TestLimiterNoConcurrentOvershoot(t *testing.T) {
	const cap = 10
	l := NewLimiter(cap, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, cap, allowed, "allowed outcomes must never exceed the cap")
}
