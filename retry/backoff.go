// Package retry holds the small, pure pieces of retry policy: exponential
// backoff delay computation (used by the sync orchestrator's background
// ticker) and the dead-item threshold check (the same retry_count >=
// maxRetries rule the queue's Pending/Failed split applies).
package retry

import "time"

// Backoff returns base * 2^attempt, capped at max. attempt is 0-based: the
// first retry after a failure uses attempt=0. It is a pure function so
// callers can compute a delay without sleeping themselves.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// IsDead reports whether a queue item with the given retry count has
// exhausted its retry budget and should be excluded from further push
// attempts.
func IsDead(retryCount, maxRetries int) bool {
	return retryCount >= maxRetries
}
