package transport

import (
	"sync"
	"time"

	"market-live/errors"
)

// RateLimitConfig bounds how many messages a single user may post within
// a sliding window. Exceeding the bound rejects the message before any
// routing or persistence happens.
type RateLimitConfig struct {
	WindowSize    time.Duration
	MaxMessages   int
	CleanupPeriod time.Duration
}

type userWindow struct {
	timestamps []time.Time
}

// RateLimiter tracks per-user message timestamps in memory.
// All methods are safe for concurrent use.
type RateLimiter struct {
	config  RateLimitConfig
	mutex   sync.Mutex
	windows map[string]*userWindow
	done    chan struct{}
	now     func() time.Time
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	limiter := &RateLimiter{
		config:  config,
		windows: make(map[string]*userWindow),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	if config.CleanupPeriod > 0 {
		go limiter.cleanupLoop()
	}
	return limiter
}

// Allow records one message attempt for userID. When the user already
// posted MaxMessages within WindowSize, it returns a RateLimitError
// carrying the time until the oldest entry leaves the window.
func (r *RateLimiter) Allow(userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	cutoff := now.Add(-r.config.WindowSize)

	window, found := r.windows[userID]
	if !found {
		window = &userWindow{}
		r.windows[userID] = window
	}

	kept := window.timestamps[:0]
	for _, ts := range window.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	window.timestamps = kept

	if len(window.timestamps) >= r.config.MaxMessages {
		oldest := window.timestamps[0]
		return errors.RateLimitError{RetryAfter: oldest.Add(r.config.WindowSize).Sub(now)}
	}

	window.timestamps = append(window.timestamps, now)
	return nil
}

func (r *RateLimiter) Stop() {
	close(r.done)
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

// cleanup drops users whose every timestamp fell out of the window,
// keeping the map from growing with one entry per user ever seen.
func (r *RateLimiter) cleanup() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoff := r.now().Add(-r.config.WindowSize)
	for userID, window := range r.windows {
		stale := true
		for _, ts := range window.timestamps {
			if ts.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(r.windows, userID)
		}
	}
}
