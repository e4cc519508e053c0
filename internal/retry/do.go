package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string { return e.Err.Error() }
func (e *Permanent) Unwrap() error { return e.Err }

// Do calls fn until it succeeds or retrying stops. A *Permanent error ends
// the loop at once. The first call happens immediately; cfg.MaxAttempts
// counts the retries after it.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	p := NewPolicy(cfg)

	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}

		_, delay, ok := p.Next()
		if !ok {
			return fmt.Errorf("%w after %d retries: %w", ErrExhausted, p.Attempts(), err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
