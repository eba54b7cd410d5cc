package transport

import (
	"time"

	"github.com/cenkalti/backoff"
)

const (
	// DefaultRetries is the number of connect attempts per exchange
	DefaultRetries = 3

	// DefaultMinTimeout is the delay before the second connect attempt
	DefaultMinTimeout = 100 * time.Millisecond

	// DefaultMaxTimeout caps both the retry delay and each dial
	DefaultMaxTimeout = 1000 * time.Millisecond
)

// RetryPolicy bounds connection attempts for one exchange.
//
// Retries is the total number of attempts, not the number of re-attempts: a
// policy with Retries 3 dials at most three times. Values below 1 mean 1.
// The delay between attempts starts at MinTimeout and doubles up to MaxTimeout.
type RetryPolicy struct {
	Retries    int
	MinTimeout time.Duration
	MaxTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used when a device does not set one
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:    DefaultRetries,
		MinTimeout: DefaultMinTimeout,
		MaxTimeout: DefaultMaxTimeout,
	}
}

// Attempts returns the number of dials the policy allows
func (p RetryPolicy) Attempts() int {
	if p.Retries < 1 {
		return 1
	}
	return p.Retries
}

// DialTimeout returns the per-attempt dial timeout, or 0 for none
func (p RetryPolicy) DialTimeout() time.Duration {
	if p.MaxTimeout <= 0 {
		return 0
	}
	return p.MaxTimeout
}

// Delays returns the waits between consecutive attempts (Attempts()-1 values)
func (p RetryPolicy) Delays() []time.Duration {
	b := p.backOff()
	delays := make([]time.Duration, 0, p.Attempts()-1)
	for i := 1; i < p.Attempts(); i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}

// backOff builds a jitter-free exponential schedule. Elapsed time never stops
// it; the attempt count does.
func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinTimeout
	b.MaxInterval = p.MaxTimeout
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
