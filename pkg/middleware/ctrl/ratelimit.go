// Package ctrl holds flow-control primitives for calls to model providers:
// a token bucket rate limiter and retry with exponential backoff.
package ctrl

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// RateLimiter is a token bucket. It starts full and refills one token every
// per/rate.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter allows rate calls per period.
//
// Example:
//
//	limiter, err := ctrl.NewRateLimiter(60, time.Minute) // 60 embeddings/minute
func NewRateLimiter(rate int, per time.Duration) (*RateLimiter, error) {
	if rate <= 0 || per <= 0 {
		return nil, fmt.Errorf("invalid rate limit: %d per %v", rate, per)
	}
	return &RateLimiter{
		tokens:     rate,
		maxTokens:  rate,
		refillRate: time.Duration(per.Nanoseconds() / int64(rate)),
		lastRefill: time.Now(),
	}, nil
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		wait := time.Until(rl.lastRefill.Add(rl.refillRate))
		rl.mu.Unlock()

		if wait <= 0 {
			wait = time.Nanosecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	elapsed := time.Since(rl.lastRefill)
	add := int(elapsed / rl.refillRate)
	if add <= 0 {
		return
	}
	rl.tokens = min(rl.tokens+add, rl.maxTokens)
	// Advance by whole intervals so fractional progress is not lost.
	rl.lastRefill = rl.lastRefill.Add(time.Duration(add) * rl.refillRate)
}

// RateLimit is a pass-through flow handler that waits for a token first.
//
// Input: any stream
// Output: same as input
// Behavior: STREAMING - blocks until a token is available, then copies
//
// Example:
//
//	flow.Use(ctrl.RateLimit(10, time.Second)).Use(ai.Agent(client))
func RateLimit(rate int, per time.Duration) quill.Handler {
	limiter, err := NewRateLimiter(rate, per)
	if err != nil {
		return quill.HandlerFunc(func(req *quill.Request, _ *quill.Response) error {
			return quill.WrapErr(req.Context, err, "rate limit misconfigured")
		})
	}
	return limiter.Handler()
}

// Handler exposes the limiter as a pass-through flow handler.
func (rl *RateLimiter) Handler() quill.Handler {
	return quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
		if err := rl.Wait(req.Context); err != nil {
			return quill.WrapErr(req.Context, err, "rate limit wait failed")
		}
		_, err := io.Copy(res.Data, req.Data)
		return err
	})
}
