package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newLimiter(t *testing.T, limit int) (*RateLimiter, *time.Time) {
	t.Helper()
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rl := NewRateLimiter(ctx, limit, &logger)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiterWindow(t *testing.T) {
	rl, now := newLimiter(t, 2)

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "clients are limited independently")

	*now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.1.1.1"), "tokens refill after the window")
}

func TestRateLimiterSweep(t *testing.T) {
	rl, now := newLimiter(t, 1)
	rl.Allow("1.1.1.1")
	*now = now.Add(30 * time.Second)
	rl.Allow("2.2.2.2")

	*now = now.Add(100 * time.Second)
	rl.sweep()
	assert.NotContains(t, rl.visitors, "1.1.1.1")
	assert.Contains(t, rl.visitors, "2.2.2.2")
}

func TestRateLimiterConcurrent(t *testing.T) {
	rl, _ := newLimiter(t, 50)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("1.1.1.1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newLimiter(t, 1)
	h := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remote, forwarded string) int {
		req := httptest.NewRequest("GET", "/api/v1/entities", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001", ""), "port is not part of the client key")
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5002", "203.0.113.9, 10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.2:1", "203.0.113.9"))
}
