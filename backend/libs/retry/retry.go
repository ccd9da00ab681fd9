// Package retry wraps dependency dial-up with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	initialInterval = 200 * time.Millisecond
	maxInterval     = 3 * time.Second
)

// Startup calls fn until it succeeds, attempts is exhausted or ctx ends.
// attempts <= 0 means a single try.
func Startup(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 1 {
		return fn(ctx)
	}
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = initialInterval
	bf.MaxInterval = maxInterval
	bf.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bf, uint64(attempts-1)), ctx)
	return backoff.Retry(func() error { return fn(ctx) }, policy)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
