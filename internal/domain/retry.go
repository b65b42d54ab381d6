package domain

import (
	"errors"
	"time"
)

// RetryPolicy describes how the LLM gateway retries rate-limited calls.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Delay is the wait between attempts (initial wait when Exponential).
	Delay time.Duration
	// Exponential multiplies the delay by Multiplier after each attempt, capped at MaxDelay.
	Exponential bool
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries three times with a fixed five second delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delay:      5 * time.Second,
		Multiplier: 2.0,
		MaxDelay:   30 * time.Second,
	}
}

// MaxAttempts is the total number of calls the policy allows.
func (p RetryPolicy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// IsRetryable reports whether err should be retried by the gateway. Only rate limiting is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsFatalConfig reports whether err must abort the session instead of degrading.
func IsFatalConfig(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
