package util

import (
	"context"
	"time"
)

// Retry runs fn until it succeeds, making at most maxAttempts calls. The
// wait between failed attempts starts at baseDelay and doubles each time.
// When the budget is spent the error of the final attempt is returned;
// cancellation mid-wait returns ctx.Err(). The ingest daemons use this to
// reconnect dropped streams before giving up for the external supervisor.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay << (attempt - 1)):
		}
	}
}
