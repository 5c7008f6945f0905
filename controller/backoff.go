package controller

import (
	"context"
	"math/rand"
	"time"

	"github.com/pravega/readergroup/rgerr"
)

// Backoff is a full-jitter exponential backoff policy, applied around any
// RPC classified as rgerr.RetryableError (spec §7: "retried with
// exponential backoff up to a caller-configured ceiling").
type Backoff struct {
	Base   time.Duration
	Factor float64
	Ceil   time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 100 * time.Millisecond, Factor: 2, Ceil: 10 * time.Second}
}

// Retry invokes op until it succeeds, returns a non-retryable error, or
// ctx is done. Each retryable failure sleeps a full-jitter delay bounded
// by Ceil before trying again.
func (b Backoff) Retry(ctx context.Context, op func(context.Context) error) error {
	delay := b.Base
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !rgerr.IsRetryable(err) {
			return err
		}
		wait := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay = time.Duration(float64(delay) * b.Factor)
		if delay > b.Ceil {
			delay = b.Ceil
		}
	}
}
