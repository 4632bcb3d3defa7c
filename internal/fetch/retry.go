package fetch

import (
	"context"
	"errors"
	"net"
	"time"
)

// RetryPolicy retries timeouts a fixed number of times with a fixed
// backoff. Proxy failures and every other error fail immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy allows three attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: time.Second}
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	if errors.Is(err, ErrProxy) || errors.Is(err, context.Canceled) {
		return false
	}
	return IsTimeout(err)
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Run calls fn until it succeeds, the policy gives up or ctx is done.
func (p RetryPolicy) Run(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.Backoff):
		}
	}
}
