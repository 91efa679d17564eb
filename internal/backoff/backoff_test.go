package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeWithRand(t *testing.T) {
	tests := []struct {
		name        string
		policy      Policy
		attempt     int
		randomValue float64
		expected    time.Duration
	}{
		{
			name:        "first attempt with no jitter",
			policy:      Policy{InitialMs: 1000, MaxMs: 30000, Factor: 2, Jitter: 0},
			attempt:     1,
			randomValue: 0.5,
			expected:    1000 * time.Millisecond,
		},
		{
			name:        "second attempt doubles",
			policy:      Policy{InitialMs: 1000, MaxMs: 30000, Factor: 2, Jitter: 0},
			attempt:     2,
			randomValue: 0.5,
			expected:    2000 * time.Millisecond,
		},
		{
			name:        "clamped to max",
			policy:      Policy{InitialMs: 1000, MaxMs: 3000, Factor: 2, Jitter: 0},
			attempt:     10,
			randomValue: 0.5,
			expected:    3000 * time.Millisecond,
		},
		{
			name:        "jitter adds within bound",
			policy:      Policy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 1.0},
			attempt:     1,
			randomValue: 1.0,
			expected:    200 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWithRand(tt.policy, tt.attempt, tt.randomValue)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRefinerPolicyMatchesSpec(t *testing.T) {
	p := RefinerPolicy()
	assert.Equal(t, 1000.0, p.InitialMs)
	assert.Equal(t, 2.0, p.Factor)
}
