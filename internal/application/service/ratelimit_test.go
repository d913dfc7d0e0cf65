package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstThenRejects(t *testing.T) {
	limiter := NewRateLimiter(30, 30)

	for i := 0; i < 30; i++ {
		ok, _ := limiter.Allow("user-1")
		assert.True(t, ok, "request %d within burst should pass", i+1)
	}
	ok, retryAfter := limiter.Allow("user-1")
	assert.False(t, ok, "request 31 within the minute must be rejected")
	assert.GreaterOrEqual(t, retryAfter, 1, "Retry-After must be at least 1 second")
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(30, 30)

	for i := 0; i < 30; i++ {
		limiter.Allow("user-a")
	}
	ok, _ := limiter.Allow("user-a")
	assert.False(t, ok)

	ok, _ = limiter.Allow("user-b")
	assert.True(t, ok, "another user's bucket is unaffected")
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	ok, _ := limiter.Allow("anyone")
	assert.True(t, ok)
}
