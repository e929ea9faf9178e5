package chain

import (
	"context"
	"errors"
	"time"

	"ammstate/internal/model"
)

// RetryPolicy bounds how RPC calls are retried. The zero value retries nothing.
type RetryPolicy struct {
	MaxRetries int

	// Backoff is the first delay; it doubles on every retry up to MaxBackoff, when set.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// OnRetry, when set, is told about every failed attempt that will be retried.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Retry runs fn until it succeeds, the retries are spent or ctx is done. Context errors and
// errors wrapping model.ErrValidation are returned at once: retrying cannot fix them.
func Retry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.Backoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(ctx, err) {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, model.ErrValidation)
}
