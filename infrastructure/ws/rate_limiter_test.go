package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Refill(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	limiter := NewRateLimiter(2, time.Second)
	limiter.now = func() time.Time { return now }
	limiter.lastCheck = now

	// Given the burst is spent
	req.True(limiter.Allow())
	req.True(limiter.Allow())
	req.False(limiter.Allow())

	// When half the interval elapses, one token is back
	now = now.Add(500 * time.Millisecond)
	req.True(limiter.Allow())
	req.False(limiter.Allow())

	// When a long time elapses, the bucket is capped at its capacity
	now = now.Add(time.Minute)
	req.True(limiter.Allow())
	req.True(limiter.Allow())
	req.False(limiter.Allow())
}
