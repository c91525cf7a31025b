package transport

import "time"

// Backoff is the reconnect schedule: Base doubled per attempt, up to
// MaxAttempts tries. After exhaustion the socket stays disconnected and the
// failure is reported, never silently retried forever.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int
}

// DefaultBackoff matches the platform client defaults.
var DefaultBackoff = Backoff{Base: time.Second, MaxAttempts: 5}

// Delay returns the wait before the given attempt, counted from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Attempts returns the configured attempt cap.
func (b Backoff) Attempts() int {
	if b.MaxAttempts <= 0 {
		return DefaultBackoff.MaxAttempts
	}
	return b.MaxAttempts
}
