package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFixedInterval_FirstCallDoesNotBlock(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	gate := NewFixedInterval("discogs", time.Second, logger)

	start := time.Now()
	if err := gate.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("Wait() took too long for first request: %v", d)
	}
}

func TestFixedInterval_SpacesRequests(t *testing.T) {
	gate := NewFixedInterval("discogs", 100*time.Millisecond, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := gate.Wait(ctx); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	// Three requests need two full intervals
	if elapsed < 180*time.Millisecond {
		t.Errorf("Expected at least ~200ms between three requests, got %v", elapsed)
	}
}

func TestFixedInterval_Pause(t *testing.T) {
	gate := NewFixedInterval("bgg", time.Millisecond, nil)
	gate.Pause(150 * time.Millisecond)

	start := time.Now()
	if err := gate.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if d := time.Since(start); d < 120*time.Millisecond {
		t.Errorf("Expected pause to hold the request, waited only %v", d)
	}
}

func TestFixedInterval_ContextCancelled(t *testing.T) {
	gate := NewFixedInterval("discogs", time.Hour, nil)
	_ = gate.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := gate.Wait(ctx); err == nil {
		t.Error("Expected error when context expires before the interval")
	}
}

func TestRollingWindow_AllowsBurstUpToLimit(t *testing.T) {
	gate := NewRollingWindow("hardcover", 5, time.Second, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := gate.Wait(ctx); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}

	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("Requests within the budget should not block, took %v", d)
	}
	if n := gate.InWindow(); n != 5 {
		t.Errorf("Expected 5 requests in window, got %d", n)
	}
}

func TestRollingWindow_BlocksUntilOldestLeaves(t *testing.T) {
	gate := NewRollingWindow("itunes", 2, 150*time.Millisecond, nil)
	ctx := context.Background()

	_ = gate.Wait(ctx)
	_ = gate.Wait(ctx)

	start := time.Now()
	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if d := time.Since(start); d < 120*time.Millisecond {
		t.Errorf("Third request should wait for the window, waited %v", d)
	}
}

func TestRollingWindow_ContextCancelled(t *testing.T) {
	gate := NewRollingWindow("hardcover", 1, time.Hour, nil)
	_ = gate.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := gate.Wait(ctx); err == nil {
		t.Error("Expected error when context expires while window is full")
	}
}

func TestRollingWindow_ConcurrentAccess(t *testing.T) {
	gate := NewRollingWindow("hardcover", 10, time.Second, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gate.Wait(ctx); err != nil {
				t.Errorf("Wait() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := gate.InWindow(); n != 10 {
		t.Errorf("Expected 10 requests in window, got %d", n)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
		min     time.Duration
		max     time.Duration
	}{
		{
			name:    "delta seconds",
			headers: http.Header{"Retry-After": []string{"7"}},
			min:     7 * time.Second,
			max:     7 * time.Second,
		},
		{
			name:    "http date",
			headers: http.Header{"Retry-After": []string{time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)}},
			min:     25 * time.Second,
			max:     31 * time.Second,
		},
		{
			name:    "reset header fallback",
			headers: http.Header{"X-Ratelimit-Reset": []string{"9999999999"}},
			min:     time.Hour,
			max:     time.Duration(1<<63 - 1),
		},
		{
			name:    "no timing information",
			headers: http.Header{},
			min:     time.Second,
			max:     time.Second,
		},
		{
			name:    "garbage",
			headers: http.Header{"Retry-After": []string{"soon"}},
			min:     time.Second,
			max:     time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RetryAfter(tt.headers)
			if got < tt.min || got > tt.max {
				t.Errorf("RetryAfter() = %v, want between %v and %v", got, tt.min, tt.max)
			}
		})
	}
}
