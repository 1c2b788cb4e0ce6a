package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"market-live/errors"
)

func Test_RateLimiter_Rejects_Over_Limit(t *testing.T) {
	req := require.New(t)

	limiter := NewRateLimiter(RateLimitConfig{WindowSize: time.Minute, MaxMessages: 3})
	current := time.Now()
	limiter.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		req.NoError(limiter.Allow("alice"))
	}

	err := limiter.Allow("alice")
	req.Error(err)

	var rateErr errors.RateLimitError
	req.ErrorAs(err, &rateErr)
	req.Equal(time.Minute, rateErr.RetryAfter)

	// Another user is unaffected
	req.NoError(limiter.Allow("bob"))
}

func Test_RateLimiter_Window_Slides(t *testing.T) {
	req := require.New(t)

	limiter := NewRateLimiter(RateLimitConfig{WindowSize: time.Minute, MaxMessages: 2})
	current := time.Now()
	limiter.now = func() time.Time { return current }

	req.NoError(limiter.Allow("alice"))
	current = current.Add(40 * time.Second)
	req.NoError(limiter.Allow("alice"))
	req.Error(limiter.Allow("alice"))

	// Once the first message leaves the window, capacity returns
	current = current.Add(30 * time.Second)
	req.NoError(limiter.Allow("alice"))
}

func Test_RateLimiter_Cleanup_Drops_Stale_Users(t *testing.T) {
	req := require.New(t)

	limiter := NewRateLimiter(RateLimitConfig{WindowSize: time.Minute, MaxMessages: 2})
	current := time.Now()
	limiter.now = func() time.Time { return current }

	req.NoError(limiter.Allow("alice"))
	current = current.Add(2 * time.Minute)
	limiter.cleanup()

	limiter.mutex.Lock()
	_, exists := limiter.windows["alice"]
	limiter.mutex.Unlock()
	req.False(exists)
}
