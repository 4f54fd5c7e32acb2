// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/socketgate/socketgate/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.Limiter with GCRA over an in-process map
// of theoretical arrival times. Idle keys are evicted by a background sweep.
type RateLimiter struct {
	mu    sync.Mutex
	cells map[string]time.Time
	now   func() time.Time

	cleanupInterval time.Duration
	maxIdle         time.Duration
	logger          *slog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewRateLimiter creates a limiter that sweeps every 5 minutes and evicts
// keys idle for an hour.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(logger, 5*time.Minute, time.Hour)
}

// NewRateLimiterWithConfig creates a limiter with custom sweep settings.
func NewRateLimiterWithConfig(logger *slog.Logger, cleanupInterval, maxIdle time.Duration) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cells:           make(map[string]time.Time),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		logger:          logger.With("component", "rate_limiter"),
		stopChan:        make(chan struct{}),
	}
}

// Allow consumes one unit of key's budget. Rate <= 0 is treated as 1 and
// Burst <= 0 as Rate.
func (r *RateLimiter) Allow(_ context.Context, key string, cfg ratelimit.Config) (ratelimit.Result, error) {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Rate
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	emission := cfg.Period / time.Duration(cfg.Rate)
	tolerance := time.Duration(cfg.Burst) * emission

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	tat, ok := r.cells[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	if allowAt := tat.Add(-tolerance); now.Before(allowAt) {
		return ratelimit.Result{
			RetryAfter: allowAt.Sub(now),
			ResetAfter: tat.Sub(now),
		}, nil
	}

	next := tat.Add(emission)
	r.cells[key] = next

	remaining := int((tolerance - next.Sub(now)) / emission)
	remaining = max(0, min(remaining, cfg.Burst))

	return ratelimit.Result{
		Allowed:    true,
		Remaining:  remaining,
		ResetAfter: next.Sub(now),
	}, nil
}

// Forget drops key's state.
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	delete(r.cells, key)
	r.mu.Unlock()
}

// StartCleanup runs the idle-key sweep until ctx is done or Stop is called.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.maxIdle)
	cleaned := 0
	for key, tat := range r.cells {
		if tat.Before(cutoff) {
			delete(r.cells, key)
			cleaned++
		}
	}
	if cleaned > 0 {
		r.logger.Debug("rate limiter cleanup completed", "cleaned_keys", cleaned, "remaining_keys", len(r.cells))
	}
}

// Stop ends the sweep and waits for it to exit. Safe to call more than once.
func (r *RateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the number of tracked keys.
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

var _ ratelimit.Limiter = (*RateLimiter)(nil)
