package tool

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRateLimiterAllowUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	rl.Allow()
	rl.Allow()
	if rl.Allow() {
		t.Fatal("third call should be blocked")
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow()
	rl.Allow()

	// Advance time past the window.
	now = now.Add(61 * time.Second)
	if !rl.Allow() {
		t.Fatal("call should be allowed after window expires")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Allow()
	if rl.Allow() {
		t.Fatal("should be blocked before reset")
	}
	rl.Reset()
	if !rl.Allow() {
		t.Fatal("should be allowed after reset")
	}
}

func TestRateLimiterZeroLimit(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	if rl.Allow() {
		t.Fatal("zero limit should block all calls")
	}
}

func TestRateLimiterPartialWindowExpiry(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow() // t=0

	now = now.Add(30 * time.Second)
	rl.Allow() // t=30s

	// Advance so first call expires but second doesn't.
	now = now.Add(31 * time.Second) // t=61s
	if !rl.Allow() {
		t.Fatal("should allow after first call expires")
	}
	if rl.Allow() {
		t.Fatal("should block — two calls in window (t=30s and t=61s)")
	}
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100, time.Minute)
	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- rl.Allow()
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}
	if count != 100 {
		t.Errorf("expected exactly 100 allowed calls, got %d", count)
	}
}

func TestRateLimiterNewNotNil(t *testing.T) {
	rl := NewRateLimiter(5, time.Second)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if rl.limit != 5 {
		t.Errorf("expected limit 5, got %d", rl.limit)
	}
	if rl.window != time.Second {
		t.Errorf("expected window 1s, got %v", rl.window)
	}
}

func TestPerUserLimiterIsolatesUsers(t *testing.T) {
	pl := NewPerUserLimiter(2, time.Minute)

	pl.Allow("henry")
	pl.Allow("henry")
	if pl.Allow("henry") {
		t.Fatal("henry's third call should be blocked")
	}
	if !pl.Allow("rose") {
		t.Fatal("rose should have a separate budget")
	}
}

func TestPerUserLimiterSlidingWindow(t *testing.T) {
	now := time.Now()
	pl := NewPerUserLimiter(1, time.Minute)
	pl.now = func() time.Time { return now }

	if !pl.Allow("henry") {
		t.Fatal("first call should be allowed")
	}
	if pl.Allow("henry") {
		t.Fatal("second call inside window should be blocked")
	}

	now = now.Add(61 * time.Second)
	if !pl.Allow("henry") {
		t.Fatal("call should be allowed after window expires")
	}
}

func TestPerUserLimiterConcurrentUsers(t *testing.T) {
	pl := NewPerUserLimiter(1, time.Minute)
	var wg sync.WaitGroup
	allowed := make(chan bool, 50)

	// 50 distinct users each make one call; all must be allowed.
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			allowed <- pl.Allow(fmt.Sprintf("user-%d", n))
		}(i)
	}
	wg.Wait()
	close(allowed)

	for a := range allowed {
		if !a {
			t.Fatal("a first call for a distinct user was blocked")
		}
	}
}
