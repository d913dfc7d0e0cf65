package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the per-user (or per-IP) token bucket guarding the chat
// endpoint. Bucket state is in-memory and advisory; it may be lost
// on restart.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucketEntry
	limit    rate.Limit
	burst    int
	lastSeen time.Duration
}

type bucketEntry struct {
	limiter *rate.Limiter
	touched time.Time
}

// NewRateLimiter builds a limiter allowing requestsPerMinute sustained with
// the given burst.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &RateLimiter{
		buckets:  make(map[string]*bucketEntry),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
		lastSeen: 10 * time.Minute,
	}
}

// Allow consumes one token for key, reporting whether the request may
// proceed and, when it may not, how many seconds the caller should wait.
func (r *RateLimiter) Allow(key string) (ok bool, retryAfterSeconds int) {
	r.mu.Lock()
	entry, exists := r.buckets[key]
	if !exists {
		entry = &bucketEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = entry
	}
	entry.touched = time.Now()
	r.evictStaleLocked()
	r.mu.Unlock()

	if entry.limiter.Allow() {
		return true, 0
	}
	delay := entry.limiter.Reserve()
	wait := delay.Delay()
	delay.Cancel()
	secs := int(wait.Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return false, secs
}

// evictStaleLocked drops buckets idle past the retention window so the map
// stays bounded by active callers.
func (r *RateLimiter) evictStaleLocked() {
	if len(r.buckets) < 4096 {
		return
	}
	cutoff := time.Now().Add(-r.lastSeen)
	for key, entry := range r.buckets {
		if entry.touched.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}
