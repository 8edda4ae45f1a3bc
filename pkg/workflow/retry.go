package workflow

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultRetryBaseDelay = time.Second

// newRetryPolicy sleeps 2^k x base before retry k and gives up after
// maxRetries retries or when ctx is done.
func newRetryPolicy(ctx context.Context, base time.Duration, maxRetries int) backoff.BackOffContext {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = base
	exponential.Multiplier = 2
	exponential.RandomizationFactor = 0
	exponential.MaxInterval = time.Duration(math.MaxInt64)
	exponential.MaxElapsedTime = 0
	exponential.Reset()

	if maxRetries < 0 {
		maxRetries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(maxRetries)), ctx)
}
