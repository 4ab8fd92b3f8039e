package device

import (
	"time"

	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/iostream"
)

// RetryPolicy bounds the packet-exchange retry loop every family drives its
// command round trips through, per §4.2 "Shared mechanisms / Retries":
// protocol/timeout errors retry up to MaxAttempts; I/O and access errors
// never retry; after each failed attempt the input side is purged and
// PauseAfterFailure is slept before the next attempt.
type RetryPolicy struct {
	MaxAttempts       int
	PauseAfterFailure time.Duration
}

// DefaultRetryPolicy matches the "typically 2-4" bound from §4.2.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, PauseAfterFailure: 100 * time.Millisecond}

// WithRetry runs fn up to policy.MaxAttempts times, purging the stream's
// input side and sleeping PauseAfterFailure between attempts, stopping
// immediately (without purge/sleep/further attempts) on Cancelled,
// IO, NoAccess or NoDevice, per the propagation policy in §7.
func (d *Device) WithRetry(policy RetryPolicy, op string, fn func(attempt int) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if d.Cancelled() {
			return errs.NewFamily(d.Family, op, errs.Cancelled, nil)
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.Retryable(err) {
			return err
		}
		d.Stream.Purge(iostream.DirInput)
		if policy.PauseAfterFailure > 0 {
			d.Stream.Sleep(policy.PauseAfterFailure)
		}
	}
	return lastErr
}
