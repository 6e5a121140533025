package orchestrator

import "time"

// RetryPolicy bounds retries for transient tool failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries a transient tool failure up to twice more
// (three attempts total) with a capped exponential backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// Delay returns the backoff before attempt (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// transientToolError marks an error the orchestrator considers worth
// retrying (as opposed to a structural or hard-stop failure).
type transientToolError struct {
	err error
}

func (e *transientToolError) Error() string { return e.err.Error() }
func (e *transientToolError) Unwrap() error { return e.err }

// WrapTransient marks err as a transient tool failure eligible for retry
// under RetryPolicy.
func WrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientToolError{err: err}
}

// IsTransient reports whether err was marked by WrapTransient.
func IsTransient(err error) bool {
	_, ok := err.(*transientToolError)
	return ok
}
