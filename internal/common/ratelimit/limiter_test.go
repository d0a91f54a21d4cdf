package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	limiter, err := NewLimiter(Config{RequestsPerSecond: 10, BurstSize: 3, Enabled: true})
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !limiter.TryAcquireForKey("es-1") {
			t.Errorf("Request %d should be allowed", i)
		}
	}
	if limiter.TryAcquireForKey("es-1") {
		t.Error("Request should be denied after burst exhausted")
	}

	// keys are independent
	if !limiter.TryAcquireForKey("es-2") {
		t.Error("Another key should have its own burst")
	}

	if err := limiter.WaitForKey(context.Background(), "es-1"); err != nil {
		t.Errorf("Wait should succeed: %v", err)
	}
}

func TestLimiterWaitRespectsContext(t *testing.T) {
	limiter, err := NewLimiter(Config{RequestsPerSecond: 0.1, BurstSize: 1, Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	limiter.TryAcquireForKey("es-1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.WaitForKey(ctx, "es-1"); err == nil {
		t.Error("Wait should fail when the context ends first")
	}
}

func TestLimiterDisabled(t *testing.T) {
	limiter, err := NewLimiter(Disabled())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if !limiter.TryAcquireForKey("es-1") {
			t.Fatal("Disabled limiter should never throttle")
		}
	}
	if limiter.Stats()["active_keys"] != 0 {
		t.Error("Disabled limiter should not create buckets")
	}
}

func TestLimiterCleanup(t *testing.T) {
	limiter, err := NewLimiter(Config{RequestsPerSecond: 1, Enabled: true, MaxKeys: 2, CleanupPeriod: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	limiter.TryAcquireForKey("a")
	limiter.TryAcquireForKey("b")

	limiter.mu.Lock()
	for _, entry := range limiter.limiters {
		entry.lastUsed = time.Now().Add(-2 * time.Hour)
	}
	limiter.mu.Unlock()

	limiter.TryAcquireForKey("c")
	if got := limiter.Stats()["active_keys"]; got != 1 {
		t.Errorf("active_keys = %v, want 1", got)
	}
}

func TestLimiterNewKeyKeepsItsBucket(t *testing.T) {
	limiter, err := NewLimiter(Config{RequestsPerSecond: 0.1, BurstSize: 1, Enabled: true, MaxKeys: 1, CleanupPeriod: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	limiter.TryAcquireForKey("a")

	limiter.mu.Lock()
	limiter.limiters["a"].lastUsed = time.Now().Add(-2 * time.Hour)
	limiter.mu.Unlock()

	if !limiter.TryAcquireForKey("b") {
		t.Fatal("First request for a new key should be allowed")
	}
	if limiter.TryAcquireForKey("b") {
		t.Error("Second request should be throttled once the key count exceeded MaxKeys")
	}
}

func TestLimiterEnforcesMaxKeys(t *testing.T) {
	limiter, err := NewLimiter(Config{RequestsPerSecond: 0.1, BurstSize: 1, Enabled: true, MaxKeys: 2, CleanupPeriod: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	limiter.TryAcquireForKey("a")
	limiter.TryAcquireForKey("b")
	limiter.mu.Lock()
	limiter.limiters["a"].lastUsed = time.Now().Add(-time.Minute)
	limiter.mu.Unlock()
	limiter.TryAcquireForKey("c")

	if got := limiter.Stats()["active_keys"]; got != 2 {
		t.Errorf("active_keys = %v, want 2", got)
	}
	limiter.mu.Lock()
	_, hasA := limiter.limiters["a"]
	_, hasC := limiter.limiters["c"]
	limiter.mu.Unlock()
	if hasA || !hasC {
		t.Errorf("least recently used key should be evicted, have a=%v c=%v", hasA, hasC)
	}
	if limiter.TryAcquireForKey("c") {
		t.Error("Newest key should keep its bucket")
	}
}

func TestConfigValidate(t *testing.T) {
	c := Config{Enabled: true}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.RequestsPerSecond != 10 || c.BurstSize != 10 {
		t.Errorf("defaults = %v/%v, want 10/10", c.RequestsPerSecond, c.BurstSize)
	}

	c = Config{Enabled: true, RequestsPerSecond: 0.5}
	c.Validate()
	if c.BurstSize != 1 {
		t.Errorf("BurstSize = %v, want 1", c.BurstSize)
	}

	c = Config{Enabled: true, RequestsPerSecond: -1}
	if err := c.Validate(); err == nil {
		t.Error("negative rate should be rejected")
	}
}
