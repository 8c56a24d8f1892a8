package whatsapp

import (
	"context"
	"time"
)

// Retry is an injectable bounded-retry policy for transport calls.
// The zero value performs a single attempt.
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

// Do runs fn once plus up to Attempts retries, sleeping Backoff between
// attempts. The last error is returned; context cancellation stops retrying.
func (r Retry) Do(ctx context.Context, fn func() error) error {
	attempts := r.Attempts
	if attempts < 0 {
		attempts = 0
	}
	var err error
	for i := 0; i <= attempts; i++ {
		if i > 0 && r.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Backoff):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
