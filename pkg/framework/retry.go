package framework

import (
	"context"
	"fmt"
	"time"
)

// Policy configures Retry.
type Policy struct {
	// Attempts is the total number of tries, at least 1.
	Attempts int
	// Timeout bounds each attempt. Zero means unbounded.
	Timeout time.Duration
	// RetryOn lists the kinds that are retried. Other kinds fail immediately.
	RetryOn []Kind
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

func (p Policy) retryable(err error) bool {
	k := KindOf(err)
	for _, r := range p.RetryOn {
		if r == k {
			return true
		}
	}
	return false
}

// Retry runs action until it succeeds, fails with a kind outside
// p.RetryOn, the parent context is done, or attempts are exhausted.
// attempt is 1-based.
func Retry(ctx context.Context, p Policy, action func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err = action(attemptCtx, attempt)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !p.retryable(err) {
			return err
		}
		if attempt < attempts && p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}
	if attempts == 1 {
		return err
	}
	return &Error{Kind: KindOf(err), Op: fmt.Sprintf("after %d attempts", attempts), Err: err}
}
