package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryCacheBeginCompleteGet(t *testing.T) {
	cache := NewSummaryCache(time.Hour)

	run, _ := cache.Begin("https://example.com/a")
	require.True(t, run, "first caller becomes the generator")

	_, ok := cache.Get("https://example.com/a")
	require.True(t, ok)

	cache.Complete("https://example.com/a", "a summary")
	entry, ok := cache.Get("https://example.com/a")
	require.True(t, ok)
	assert.Equal(t, SummaryCompleted, entry.Status)
	assert.Equal(t, "a summary", entry.Summary)

	// A second Begin within TTL is a cache hit, not a new generation.
	run, entry = cache.Begin("https://example.com/a")
	assert.False(t, run)
	assert.Equal(t, "a summary", entry.Summary)
}

func TestSummaryCacheSingleGenerator(t *testing.T) {
	cache := NewSummaryCache(time.Hour)

	var generators int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if run, _ := cache.Begin("https://example.com/racy"); run {
				atomic.AddInt32(&generators, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), generators,
		"at most one generating entry per URL at any instant")
}

func TestSummaryCacheWaitCoalesces(t *testing.T) {
	cache := NewSummaryCache(time.Hour)

	run, _ := cache.Begin("https://example.com/slow")
	require.True(t, run)

	done := make(chan string, 1)
	go func() {
		entry, ok := cache.Wait(context.Background(), "https://example.com/slow")
		if ok {
			done <- entry.Summary
		} else {
			done <- ""
		}
	}()

	time.Sleep(10 * time.Millisecond)
	cache.Complete("https://example.com/slow", "slow summary")

	select {
	case got := <-done:
		assert.Equal(t, "slow summary", got)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestSummaryCacheTTLEviction(t *testing.T) {
	cache := NewSummaryCache(time.Hour)
	now := time.Now()
	cache.now = func() time.Time { return now }

	run, _ := cache.Begin("https://example.com/old")
	require.True(t, run)
	cache.Complete("https://example.com/old", "stale")

	// Step past the TTL; reads beyond it return not_found.
	cache.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, ok := cache.Get("https://example.com/old")
	assert.False(t, ok)

	// And a fresh Begin regenerates.
	run, _ = cache.Begin("https://example.com/old")
	assert.True(t, run)
}

func TestSummaryCacheFailedEntryRegenerates(t *testing.T) {
	cache := NewSummaryCache(time.Hour)

	run, _ := cache.Begin("https://example.com/fail")
	require.True(t, run)
	cache.Fail("https://example.com/fail", "boom")

	entry, ok := cache.Get("https://example.com/fail")
	require.True(t, ok)
	assert.Equal(t, SummaryFailed, entry.Status)
	assert.Equal(t, "boom", entry.Error)

	run, _ = cache.Begin("https://example.com/fail")
	assert.True(t, run, "failed entries do not block regeneration")
}
