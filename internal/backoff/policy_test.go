package backoff

import (
	"context"
	"testing"
	"time"
)

func TestDelayWithRand(t *testing.T) {
	tests := []struct {
		name        string
		policy      Policy
		attempt     int
		randomValue float64
		expected    time.Duration
	}{
		{
			name:        "first attempt is base",
			policy:      Policy{Base: 500 * time.Millisecond, Max: 4 * time.Second, Factor: 2},
			attempt:     1,
			randomValue: 0.9,
			expected:    500 * time.Millisecond,
		},
		{
			name:        "second attempt doubles",
			policy:      Policy{Base: 500 * time.Millisecond, Max: 4 * time.Second, Factor: 2},
			attempt:     2,
			randomValue: 0.9,
			expected:    time.Second,
		},
		{
			name:        "fourth attempt quadruples again",
			policy:      Policy{Base: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2},
			attempt:     4,
			randomValue: 0,
			expected:    4 * time.Second,
		},
		{
			name:        "capped at max",
			policy:      Policy{Base: 500 * time.Millisecond, Max: 4 * time.Second, Factor: 2},
			attempt:     10,
			randomValue: 0,
			expected:    4 * time.Second,
		},
		{
			name:        "jitter adds fraction of base",
			policy:      Policy{Base: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.1},
			attempt:     1,
			randomValue: 0.5,
			expected:    time.Second + 50*time.Millisecond,
		},
		{
			name:        "jitter never exceeds max",
			policy:      Policy{Base: time.Second, Max: 2 * time.Second, Factor: 2, Jitter: 0.1},
			attempt:     2,
			randomValue: 0.999,
			expected:    2 * time.Second,
		},
		{
			name:        "zero attempt treated as first",
			policy:      Policy{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2},
			attempt:     0,
			randomValue: 0,
			expected:    100 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DelayWithRand(tt.policy, tt.attempt, tt.randomValue)
			if got != tt.expected {
				t.Errorf("DelayWithRand() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDelayMonotonic(t *testing.T) {
	policy := RetryPolicy(500*time.Millisecond, 4*time.Second)
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := DelayWithRand(policy, attempt, 0.3)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > policy.Max {
			t.Fatalf("delay %v exceeds max %v at attempt %d", d, policy.Max, attempt)
		}
		prev = d
	}
}

func TestPollPolicyHasNoJitter(t *testing.T) {
	policy := PollPolicy(500*time.Millisecond, 4*time.Second)
	a := DelayWithRand(policy, 3, 0.0)
	b := DelayWithRand(policy, 3, 0.999)
	if a != b {
		t.Errorf("poll delay should be deterministic, got %v and %v", a, b)
	}
	if a != 2*time.Second {
		t.Errorf("poll delay attempt 3 = %v, want 2s", a)
	}
}

func TestSleepCompletes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 10ms", elapsed)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Minute); err != context.Canceled {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
}

func TestSleepZeroDuration(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) error = %v", err)
	}
	if err := Sleep(context.Background(), -time.Second); err != nil {
		t.Errorf("Sleep(negative) error = %v", err)
	}
}
