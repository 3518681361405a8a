package echoapi

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignInLimiter_sweep(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	l := newSignInLimiter(1, 1, visitorIdleTTL)
	l.now = func() time.Time { return now }

	// a client rotating its address leaves one entry per address
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow(fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Equal(t, 100, l.sweep(), "nothing is idle yet")

	now = now.Add(2 * time.Minute)
	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.1.1"))
	assert.False(t, l.allow("10.0.1.1"), "burst spent")

	now = now.Add(visitorIdleTTL - time.Minute + time.Second)
	assert.Equal(t, 2, l.sweep(), "only the recently seen clients survive")

	now = now.Add(visitorIdleTTL + time.Second)
	assert.Equal(t, 0, l.sweep())
}

func TestSignInLimiter_sweepEvery(t *testing.T) {
	l := newSignInLimiter(1, 1, 0)
	l.allow("10.0.0.1")

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		l.sweepEvery(time.Millisecond, done)
		close(stopped)
	}()

	assert.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.visitors) == 0
	}, time.Second, 5*time.Millisecond)

	close(done)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sweepEvery() did not stop")
	}
}
