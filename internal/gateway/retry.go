package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// unbounded stands in for "no elapsed-time limit".
const unbounded = 100 * 365 * 24 * time.Hour

// RetryPolicy configures exponential backoff for transient failures.
// MaxTries of zero retries until ctx is done.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTries        uint
}

// DefaultRetryPolicy is used for submissions.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     30 * time.Second,
}

// Retry runs op until it succeeds, fails fatally, exhausts MaxTries or ctx ends.
// notify is called before every wait.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error), notify func(err error, next time.Duration)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(unbounded),
	}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(notify)))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && IsFatal(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
