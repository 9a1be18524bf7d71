// Package ratelimit implements the outbound request gates used by the
// catalog source clients.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Gate blocks callers until another outbound request is allowed
type Gate interface {
	// Wait blocks until a request may be sent or ctx is done
	Wait(ctx context.Context) error
	// Pause holds every caller back for d, typically after a 429 response
	Pause(d time.Duration)
}

// pause tracks a Retry-After hold shared by both gate kinds
type pause struct {
	mu    sync.Mutex
	until time.Time
}

func (p *pause) set(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if until := time.Now().Add(d); until.After(p.until) {
		p.until = until
	}
}

func (p *pause) wait(ctx context.Context) error {
	p.mu.Lock()
	remaining := time.Until(p.until)
	p.mu.Unlock()

	if remaining <= 0 {
		return nil
	}
	return sleep(ctx, remaining)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FixedInterval spaces requests at least interval apart
type FixedInterval struct {
	name    string
	limiter *rate.Limiter
	pause   pause
	logger  *zap.Logger
}

// NewFixedInterval creates a gate that allows one request per interval
func NewFixedInterval(name string, interval time.Duration, logger *zap.Logger) *FixedInterval {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FixedInterval{
		name:    name,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Wait blocks until the interval has elapsed since the previous request
func (g *FixedInterval) Wait(ctx context.Context) error {
	if err := g.pause.wait(ctx); err != nil {
		return err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// Pause delays every following request by at least d
func (g *FixedInterval) Pause(d time.Duration) {
	g.logger.Warn("Rate limited, pausing requests",
		zap.String("gate", g.name),
		zap.Duration("retry_after", d),
	)
	g.pause.set(d)
}

// RollingWindow allows at most limit requests in any period-long window.
// When the window is full, callers wait until the oldest request leaves it.
type RollingWindow struct {
	name   string
	limit  int
	period time.Duration
	pause  pause
	logger *zap.Logger

	mu   sync.Mutex
	sent []time.Time
}

// NewRollingWindow creates a gate allowing limit requests per period
func NewRollingWindow(name string, limit int, period time.Duration, logger *zap.Logger) *RollingWindow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit < 1 {
		limit = 1
	}
	return &RollingWindow{
		name:   name,
		limit:  limit,
		period: period,
		logger: logger,
		sent:   make([]time.Time, 0, limit),
	}
}

// Wait blocks until the window has room
func (g *RollingWindow) Wait(ctx context.Context) error {
	if err := g.pause.wait(ctx); err != nil {
		return err
	}

	for {
		g.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-g.period)
		drop := 0
		for drop < len(g.sent) && !g.sent[drop].After(cutoff) {
			drop++
		}
		g.sent = g.sent[drop:]

		if len(g.sent) < g.limit {
			g.sent = append(g.sent, now)
			g.mu.Unlock()
			return nil
		}

		waitFor := g.sent[0].Add(g.period).Sub(now)
		g.mu.Unlock()

		g.logger.Debug("Rolling window full, waiting",
			zap.String("gate", g.name),
			zap.Duration("wait_duration", waitFor),
		)
		if err := sleep(ctx, waitFor); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}
}

// Pause delays every following request by at least d
func (g *RollingWindow) Pause(d time.Duration) {
	g.logger.Warn("Rate limited, pausing requests",
		zap.String("gate", g.name),
		zap.Duration("retry_after", d),
	)
	g.pause.set(d)
}

// InWindow returns how many requests were sent within the current window
func (g *RollingWindow) InWindow() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := time.Now().Add(-g.period)
	n := 0
	for _, t := range g.sent {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// PerMinute is a RollingWindow over one minute
func PerMinute(name string, limit int, logger *zap.Logger) *RollingWindow {
	return NewRollingWindow(name, limit, time.Minute, logger)
}

// RetryAfter reads the delay a 429 response asks for. It accepts delta
// seconds or an HTTP date, then falls back to X-RateLimit-Reset (unix
// seconds) and finally to one second.
func RetryAfter(headers http.Header) time.Duration {
	var retryAfter time.Duration

	if retry := headers.Get("Retry-After"); retry != "" {
		if seconds, err := strconv.Atoi(retry); err == nil {
			retryAfter = time.Duration(seconds) * time.Second
		} else if at, err := http.ParseTime(retry); err == nil {
			retryAfter = time.Until(at)
		}
	}

	if retryAfter <= 0 {
		if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
			if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
				retryAfter = time.Until(time.Unix(val, 0))
			}
		}
	}

	// Default to 1 second if no timing information
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return retryAfter
}
