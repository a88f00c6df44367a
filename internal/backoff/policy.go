// Package backoff provides capped exponential backoff calculation and
// context-aware sleeping for the polling and retry loops.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for capped exponential backoff.
type Policy struct {
	// Base is the delay after the first attempt.
	Base time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the multiplier applied per attempt.
	Factor float64
	// Jitter is the fraction of Base added as random jitter, in [0, 1].
	// Zero disables jitter entirely.
	Jitter float64
}

// PollPolicy returns the policy used between run polls: delay doubles from
// base and is capped at max. Polls are already staggered by per-caller
// latency, so no jitter is applied.
func PollPolicy(base, max time.Duration) Policy {
	return Policy{Base: base, Max: max, Factor: 2}
}

// RetryPolicy returns the policy used between turn attempts: doubling from
// base, capped at max, with up to 10% of base added as jitter so simultaneous
// callers do not retry in lockstep.
func RetryPolicy(base, max time.Duration) Policy {
	return Policy{Base: base, Max: max, Factor: 2, Jitter: 0.1}
}

// Delay calculates the backoff duration after the given attempt.
// Attempt numbers start at 1.
func Delay(policy Policy, attempt int) time.Duration {
	return DelayWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand calculates the backoff duration using a provided random
// value in [0.0, 1.0). Used by tests for deterministic results.
func DelayWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(policy.Base) * math.Pow(policy.Factor, exp)

	// Jitter is a fraction of the configured base, not of the grown delay,
	// so successive delays stay non-decreasing.
	jitter := float64(policy.Base) * policy.Jitter * randomValue

	total := base + jitter
	if max := float64(policy.Max); total > max {
		total = max
	}
	return time.Duration(total)
}
