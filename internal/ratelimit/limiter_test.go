package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewRateLimiterStartsFull(t *testing.T) {
	rl := NewRateLimiter(1.0, 10.0)
	if tokens := rl.GetCurrentTokens(); tokens < 9.9 {
		t.Errorf("expected ~10 tokens, got %.2f", tokens)
	}
}

func TestNewAPIRateLimiter(t *testing.T) {
	rl := NewAPIRateLimiter(nil)
	if tokens := rl.GetCurrentTokens(); tokens < 19.9 || tokens > 20.0 {
		t.Errorf("expected burst of 20 tokens, got %.2f", tokens)
	}
	if rl.logger == nil {
		t.Error("nil logger should be replaced by a nop logger")
	}
}

func TestTryAcquireConsumesToken(t *testing.T) {
	rl := NewRateLimiter(1.0, 5.0)

	for i := 0; i < 5; i++ {
		if !rl.tryAcquire() {
			t.Fatalf("tryAcquire() failed on attempt %d", i+1)
		}
	}
	if rl.tryAcquire() {
		t.Error("tryAcquire() should fail when bucket is empty")
	}
}

func TestTokenRefill(t *testing.T) {
	rl := NewRateLimiter(10.0, 10.0)
	for i := 0; i < 10; i++ {
		rl.tryAcquire()
	}

	time.Sleep(200 * time.Millisecond)

	if tokens := rl.GetCurrentTokens(); tokens < 1.5 || tokens > 3.0 {
		t.Errorf("expected ~2 tokens after 200ms at 10/sec, got %.2f", tokens)
	}
}

func TestTokenRefillCapsAtMax(t *testing.T) {
	rl := NewRateLimiter(100.0, 5.0)
	time.Sleep(100 * time.Millisecond)

	if tokens := rl.GetCurrentTokens(); tokens > 5.1 {
		t.Errorf("tokens should cap at 5, got %.2f", tokens)
	}
}

func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	rl := NewRateLimiter(10.0, 1.0)
	rl.tryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond || elapsed > 300*time.Millisecond {
		t.Errorf("Wait() took %v, expected ~100ms", elapsed)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(0.1, 1.0)
	rl.tryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDrainCausesWaitToBlock(t *testing.T) {
	rl := NewRateLimiter(10.0, 10.0)
	rl.Drain()

	if tokens := rl.GetCurrentTokens(); tokens > 0.1 {
		t.Errorf("after Drain: tokens = %.2f, want ~0", tokens)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() after Drain returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Wait() after Drain completed too quickly: %v", elapsed)
	}
}

func TestSetCooldown(t *testing.T) {
	rl := NewRateLimiter(100.0, 100.0)
	rl.SetCooldown(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() during cooldown returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond || elapsed > 400*time.Millisecond {
		t.Errorf("Wait() during cooldown took %v, expected ~200ms", elapsed)
	}
}

func TestCooldownMerge(t *testing.T) {
	rl := NewRateLimiter(100.0, 100.0)

	rl.SetCooldown(500 * time.Millisecond)
	rl.SetCooldown(100 * time.Millisecond)
	if remaining := rl.CooldownRemaining(); remaining < 350*time.Millisecond {
		t.Errorf("cooldown shortened to %v", remaining)
	}

	rl.SetCooldown(time.Second)
	if remaining := rl.CooldownRemaining(); remaining < 800*time.Millisecond {
		t.Errorf("cooldown should have extended to ~1s, got %v", remaining)
	}
}

func TestCooldownExpires(t *testing.T) {
	rl := NewRateLimiter(1.0, 1.0)
	if d := rl.CooldownRemaining(); d != 0 {
		t.Errorf("CooldownRemaining() = %v, want 0", d)
	}

	rl.SetCooldown(50 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	if d := rl.CooldownRemaining(); d != 0 {
		t.Errorf("CooldownRemaining() = %v, want 0 after expiry", d)
	}
}

func TestConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100.0, 50.0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := rl.Wait(ctx); err != nil {
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			rl.Drain()
			time.Sleep(10 * time.Millisecond)
		}
	}()
	wg.Wait()
}
