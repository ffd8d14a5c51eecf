package infra

import (
	"context"
	"math/rand/v2"
	"time"
)

// retryConnect calls dial until it succeeds, attempts run out or ctx ends.
// Waits grow as base*2^n with full jitter so replicas starting together do not
// hammer a database that is still booting.
func retryConnect(ctx context.Context, attempts int, base time.Duration, dial func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 0; n < attempts; n++ {
		if err = dial(ctx); err == nil {
			return nil
		}
		if n == attempts-1 {
			break
		}
		delay := base << n
		if delay > 0 {
			delay = rand.N(delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
