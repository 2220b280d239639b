package ctrl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quill-ai/go-quill/pkg/quill"
)

// Backoff describes retry timing. Delay doubles after every failed attempt.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultBackoff is three attempts starting at 100ms.
var DefaultBackoff = Backoff{Attempts: 3, Initial: 100 * time.Millisecond, Max: 5 * time.Second}

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so Do gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Initial << attempt
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d
}

// Do calls fn until it succeeds, returns a Permanent error, ctx ends or the
// attempts run out. The last error is returned wrapped.
//
// Example:
//
//	vec, err := ctrl.Do(ctx, ctrl.DefaultBackoff, func(ctx context.Context) (retrieval.Vector, error) {
//	    return embedder.Embed(ctx, text)
//	})
func Do[T any](ctx context.Context, b Backoff, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(b.Attempts, 1)

	var lastErr error
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}

		if attempt < attempts-1 {
			quill.LogDebug(ctx, "retrying after failure", "attempt", attempt+1, "error", err)
			timer := time.NewTimer(b.delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, fmt.Errorf("retry exhausted after %d attempts: %w", attempts, lastErr)
}

// Retry replays the buffered input into handler until it succeeds.
//
// Input: any data (buffered so it can be replayed)
// Output: the first successful output
// Behavior: BUFFERED
//
// Example:
//
//	flow.Use(ctrl.Retry(ai.Agent(client), ctrl.DefaultBackoff))
func Retry(handler quill.Handler, b Backoff) quill.Handler {
	return quill.HandlerFunc(func(req *quill.Request, res *quill.Response) error {
		var input []byte
		if err := quill.Read(req, &input); err != nil {
			return err
		}

		out, err := Do(req.Context, b, func(ctx context.Context) ([]byte, error) {
			var buf bytes.Buffer
			if err := handler.ServeFlow(quill.NewRequest(ctx, bytes.NewReader(input)), quill.NewResponse(&buf)); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		})
		if err != nil {
			return err
		}
		return quill.Write(res, out)
	})
}
