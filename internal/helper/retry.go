package helper

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Retry runs op until it succeeds, returns a permanent error, or maxRetries
// extra attempts are spent. Each attempt gets its own timeout-bound context
// derived from ctx; cancellation of ctx stops the loop.
func Retry(ctx context.Context, name string, maxRetries int, interval, timeout time.Duration, op func(ctx context.Context) error) error {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(interval),
		backoff.WithMaxElapsedTime(0),
	)
	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(max(maxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		err := op(callCtx)
		if err == nil {
			return nil
		}
		// the caller gave up; retrying cannot help
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("call", name).Int("attempt", attempt).Dur("wait", wait).Msg("retrying")
	}
	return backoff.RetryNotify(operation, b, notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
