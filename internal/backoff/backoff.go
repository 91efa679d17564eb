// Package backoff provides exponential backoff with jitter for retry logic
// used by the Refiner and the Verifier's INTEGRATION stage.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// InitialMs is the initial backoff duration in milliseconds.
	InitialMs float64
	// MaxMs is the maximum backoff duration in milliseconds.
	MaxMs float64
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to the backoff.
	Jitter float64
}

// Compute calculates the backoff duration for a given attempt number (1-based).
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter only
}

// ComputeWithRand calculates backoff using a caller-provided random value in [0,1),
// for deterministic tests.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// RefinerPolicy returns the backoff policy the Refiner uses between attempts:
// spec.md §4.9 calls for "exponential backoff starting at 1s (2^attempt)".
func RefinerPolicy() Policy {
	return Policy{
		InitialMs: 1000,
		MaxMs:     30000,
		Factor:    2,
		Jitter:    0,
	}
}

// IntegrationRetryPolicy returns the backoff policy the Verifier's INTEGRATION
// stage uses for transient network errors (spec.md §4.5 stage 4).
func IntegrationRetryPolicy() Policy {
	return Policy{
		InitialMs: 250,
		MaxMs:     8000,
		Factor:    2,
		Jitter:    0.2,
	}
}
