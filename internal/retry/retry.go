// Package retry runs an operation with exponential backoff until it succeeds,
// returns a non-retryable error or the attempt budget runs out.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls the backoff loop.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 mean a single call.
	Attempts int
	// BaseDelay is the wait before the second call; it doubles after each
	// failure up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable classifies errors. Nil retries everything.
	Retryable func(error) bool
	// Name labels debug log lines.
	Name string
}

// SQLite is the policy used around repository writes that may hit a locked database.
var SQLite = Policy{
	Attempts:  3,
	BaseDelay: 100 * time.Millisecond,
	MaxDelay:  time.Second,
}

// Network is the policy used around oracle calls.
var Network = Policy{
	Attempts:  2,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  5 * time.Second,
}

// Do calls fn according to p. The last error is returned; a cancelled context
// is joined with it.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay < delay {
		maxDelay = delay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		slog.Debug("Retrying after failure",
			"operation", p.Name,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return lastErr
}
