// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logpipe

// DefaultRetryCeiling is the number of consecutive registration
// failures tolerated before logging is disabled.
const DefaultRetryCeiling = 3

// RetryCounter counts consecutive failures. Once the count exceeds the
// ceiling the counter is disabled for good: further failures and
// successes do not change it.
type RetryCounter struct {
	ceiling  int
	failures int
	disabled bool
}

// NewRetryCounter returns a counter with the given ceiling. A
// non-positive ceiling uses DefaultRetryCeiling.
func NewRetryCounter(ceiling int) *RetryCounter {
	if ceiling <= 0 {
		ceiling = DefaultRetryCeiling
	}
	return &RetryCounter{ceiling: ceiling}
}

// Fail records a failure and reports whether the counter is now
// disabled.
func (r *RetryCounter) Fail() bool {
	if r.disabled {
		return true
	}
	r.failures++
	if r.failures > r.ceiling {
		r.disabled = true
	}
	return r.disabled
}

// Succeed resets the consecutive count.
func (r *RetryCounter) Succeed() {
	if !r.disabled {
		r.failures = 0
	}
}

// Failures returns the current consecutive failure count.
func (r *RetryCounter) Failures() int { return r.failures }

// Ceiling returns the number of failures tolerated.
func (r *RetryCounter) Ceiling() int { return r.ceiling }

// Disabled reports whether the ceiling has been exceeded.
func (r *RetryCounter) Disabled() bool { return r.disabled }
