// Package retry implements bounded retries with jittered exponential backoff
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds how often and how fast an operation is retried
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// TransientFunc decides whether a failure is worth another attempt
type TransientFunc func(error) bool

// Do runs fn up to policy.MaxAttempts times, sleeping a jittered backoff
// between attempts. A non-transient error aborts immediately; ctx
// cancellation aborts the wait.
func Do(ctx context.Context, policy Policy, transient TransientFunc, fn func() error) error {
	delay := policy.InitialDelay

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !transient(err) || attempt == policy.MaxAttempts-1 {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay)):
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return err
}

// jittered stretches the delay by up to half of itself
func jittered(delay time.Duration) time.Duration {
	if delay <= 1 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/2)+1))
}
