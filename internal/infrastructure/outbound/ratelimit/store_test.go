package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/stubhttp/internal/testutil"
)

func newStore(t *testing.T, ttl time.Duration) (*ratelimit.TokenBucketStore, *testutil.ManualClock) {
	t.Helper()
	clk := testutil.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := ratelimit.NewTokenBucketStore(ttl, ratelimit.WithClock(clk))
	t.Cleanup(store.Stop)
	return store, clk
}

func TestTokenBucketStore_AllowWithinBurst(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()

	for i := range 3 {
		if !store.Allow(ctx, "key1", 1, 3) {
			t.Errorf("request %d should be allowed within burst", i+1)
		}
	}
}

func TestTokenBucketStore_DeniedOverBurst(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()

	for range 5 {
		store.Allow(ctx, "key1", 1, 5)
	}

	if store.Allow(ctx, "key1", 1, 5) {
		t.Error("request over burst should be denied")
	}
}

func TestTokenBucketStore_Refill(t *testing.T) {
	store, clk := newStore(t, time.Minute)
	ctx := context.Background()

	store.Allow(ctx, "key1", 2, 1)
	if store.Allow(ctx, "key1", 2, 1) {
		t.Fatal("bucket should be empty")
	}

	clk.Advance(500 * time.Millisecond)
	if !store.Allow(ctx, "key1", 2, 1) {
		t.Error("one token should refill after 500ms at 2/s")
	}
}

func TestTokenBucketStore_PerKeyIsolation(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()

	for range 2 {
		store.Allow(ctx, "key1", 1, 2)
	}

	if !store.Allow(ctx, "key2", 1, 2) {
		t.Error("key2 should be allowed (separate from key1)")
	}
}

func TestTokenBucketStore_Len(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()

	store.Allow(ctx, "a", 1, 1)
	store.Allow(ctx, "b", 1, 1)
	store.Allow(ctx, "a", 1, 1)

	if store.Len() != 2 {
		t.Errorf("expected 2 limiters, got %d", store.Len())
	}
}

func TestTokenBucketStore_Evict(t *testing.T) {
	store, clk := newStore(t, time.Minute)
	ctx := context.Background()

	store.Allow(ctx, "old", 1, 1)
	clk.Advance(2 * time.Minute)
	store.Allow(ctx, "fresh", 1, 1)
	store.Evict()

	if store.Len() != 1 {
		t.Errorf("expected only the fresh limiter after eviction, got %d", store.Len())
	}
}

func TestTokenBucketStore_Reset(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()

	store.Allow(ctx, "k", 1, 1)
	if store.Allow(ctx, "k", 1, 1) {
		t.Fatal("bucket should be empty")
	}

	store.Reset()
	if store.Len() != 0 {
		t.Errorf("expected no limiters after reset, got %d", store.Len())
	}
	if !store.Allow(ctx, "k", 1, 1) {
		t.Error("bucket should start full after reset")
	}
}

func TestTokenBucketStore_UpdatedParamsOnReload(t *testing.T) {
	store, clk := newStore(t, time.Minute)
	ctx := context.Background()

	store.Allow(ctx, "reload-key", 1, 2)
	store.Allow(ctx, "reload-key", 10, 20)
	if store.Len() != 1 {
		t.Errorf("expected 1 limiter after param update, got %d", store.Len())
	}

	for store.Allow(ctx, "reload-key", 10, 20) {
		// drain
	}
	clk.Advance(200 * time.Millisecond)

	// 1/s would yield no token in 200ms; 10/s yields two.
	if !store.Allow(ctx, "reload-key", 10, 20) {
		t.Error("expected token available after rate increase")
	}
}

func TestTokenBucketStore_Concurrent(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Allow(ctx, "concurrent", 1, 10) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if store.Len() != 1 {
		t.Errorf("expected 1 limiter, got %d", store.Len())
	}
	if allowed != 10 {
		t.Errorf("expected exactly the burst to pass with a frozen clock, got %d", allowed)
	}

	store.Stop()
}
