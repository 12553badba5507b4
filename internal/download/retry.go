// Package download implements cache-aware media fetching: a disk cache with
// freshness/staleness policy, a retrying HTTP transfer with per-URL
// in-flight dedup, and a progress streamer multiplexing chunk updates to
// listeners.
package download

import "time"

// RetryStrategy selects how backoff delays grow across attempts.
type RetryStrategy int

const (
	StrategyExponential RetryStrategy = iota
	StrategyLinear
)

// RetryPolicy computes the delay before retry attempt n.
type RetryPolicy struct {
	Strategy  RetryStrategy
	BaseDelay time.Duration
}

// Exponential returns a policy doubling the delay each attempt.
func Exponential(base time.Duration) RetryPolicy {
	return RetryPolicy{Strategy: StrategyExponential, BaseDelay: base}
}

// Linear returns a policy with a constant delay.
func Linear(base time.Duration) RetryPolicy {
	return RetryPolicy{Strategy: StrategyLinear, BaseDelay: base}
}

// Delay returns the backoff before attempt n (0-based). Exponential growth
// is capped at 2^10 to keep the delay finite for runaway attempt counts.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	switch p.Strategy {
	case StrategyExponential:
		shift := attempt
		if shift > 10 {
			shift = 10
		}
		return p.BaseDelay << shift
	default:
		return p.BaseDelay
	}
}
