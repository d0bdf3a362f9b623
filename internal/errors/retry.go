package errors

import (
	"context"
	"math/rand"
	"time"
)

// Retry runs fn up to attempts times, retrying only on Transient AppErrors, with
// jittered exponential backoff. Matches spec.md §7's propagation policy: "Transient
// errors trigger bounded retries with jitter inside the component (default 3
// attempts for store reads, 1 for writes)".
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewCancelled("context cancelled before retry").WithCause(err)
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		appErr, ok := As(lastErr)
		if !ok || appErr.Kind != KindTransient {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		backoff := base * time.Duration(1<<uint(attempt))
		jitter := time.Duration(rand.Int63n(int64(base) + 1))
		select {
		case <-ctx.Done():
			return NewCancelled("context cancelled during retry backoff").WithCause(ctx.Err())
		case <-time.After(backoff + jitter):
		}
	}
	return lastErr
}
