// Package config holds the application configuration and the centralized
// timeout budget every downstream component draws its deadlines from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment profile names.
const (
	ProfileDevelopment = "development"
	ProfileStaging     = "staging"
	ProfileProduction  = "production"
)

// Ceilings shared by every profile. Anything beyond these is a
// misconfiguration, not a legitimate deployment choice.
const (
	maxPerRequestTimeout = 120 * time.Second
	maxTotalTurnTimeout  = 300 * time.Second
	minPollAttempts      = 5
)

// TimeoutBudget is an immutable snapshot of every duration and attempt count
// used by the poller and the retry orchestrator. Snapshots are swapped whole
// through BudgetStore; fields are never mutated in place.
type TimeoutBudget struct {
	// PerRequestTimeout bounds a single remote-service call.
	PerRequestTimeout time.Duration
	// TotalTurnTimeout bounds an entire turn across all retry attempts.
	TotalTurnTimeout time.Duration

	// RetryMaxAttempts is the number of retries after the initial attempt.
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// PollMaxAttempts is the hard backstop on polls within one attempt.
	PollMaxAttempts int
	PollBaseDelay   time.Duration
	PollMaxDelay    time.Duration

	// Profile records which preset produced this snapshot, if any.
	Profile string
}

// DefaultBudget returns the built-in timeout budget.
func DefaultBudget() TimeoutBudget {
	return TimeoutBudget{
		PerRequestTimeout: 10 * time.Second,
		TotalTurnTimeout:  25 * time.Second,
		RetryMaxAttempts:  2,
		RetryBaseDelay:    500 * time.Millisecond,
		RetryMaxDelay:     2 * time.Second,
		PollMaxAttempts:   20,
		PollBaseDelay:     500 * time.Millisecond,
		PollMaxDelay:      4 * time.Second,
	}
}

// Validate checks the budget invariants. Validation happens at construction
// and replacement time, never on the read path.
func (b TimeoutBudget) Validate() error {
	durations := map[string]time.Duration{
		"per_request_timeout": b.PerRequestTimeout,
		"total_turn_timeout":  b.TotalTurnTimeout,
		"retry_base_delay":    b.RetryBaseDelay,
		"retry_max_delay":     b.RetryMaxDelay,
		"poll_base_delay":     b.PollBaseDelay,
		"poll_max_delay":      b.PollMaxDelay,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if b.TotalTurnTimeout <= b.PerRequestTimeout {
		return fmt.Errorf("total turn timeout %v must exceed per-request timeout %v",
			b.TotalTurnTimeout, b.PerRequestTimeout)
	}
	if b.PollMaxAttempts < minPollAttempts {
		return fmt.Errorf("poll max attempts must be at least %d, got %d",
			minPollAttempts, b.PollMaxAttempts)
	}
	if b.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must not be negative, got %d", b.RetryMaxAttempts)
	}
	if b.PerRequestTimeout > maxPerRequestTimeout {
		return fmt.Errorf("per-request timeout %v exceeds ceiling %v",
			b.PerRequestTimeout, maxPerRequestTimeout)
	}
	if b.TotalTurnTimeout > maxTotalTurnTimeout {
		return fmt.Errorf("total turn timeout %v exceeds ceiling %v",
			b.TotalTurnTimeout, maxTotalTurnTimeout)
	}
	if b.Profile == ProfileProduction && b.PerRequestTimeout < time.Second {
		return fmt.Errorf("per-request timeout %v too short for production", b.PerRequestTimeout)
	}
	return nil
}

// BudgetForProfile returns the preset budget for an environment profile.
func BudgetForProfile(profile string) (TimeoutBudget, error) {
	budget := DefaultBudget()
	budget.Profile = profile
	switch profile {
	case ProfileDevelopment:
		budget.PerRequestTimeout = 5 * time.Second
		budget.TotalTurnTimeout = 15 * time.Second
		budget.RetryMaxAttempts = 1
	case ProfileStaging:
		budget.PerRequestTimeout = 8 * time.Second
		budget.TotalTurnTimeout = 20 * time.Second
		budget.RetryMaxAttempts = 2
	case ProfileProduction:
		budget.PerRequestTimeout = 15 * time.Second
		budget.TotalTurnTimeout = 30 * time.Second
		budget.RetryMaxAttempts = 3
	default:
		return TimeoutBudget{}, fmt.Errorf("unknown profile %q", profile)
	}
	if err := budget.Validate(); err != nil {
		return TimeoutBudget{}, err
	}
	return budget, nil
}

// Environment variable names for individual budget overrides. Values are
// seconds, fractional values allowed.
const (
	EnvPerRequestTimeout = "OPENAI_REQUEST_TIMEOUT"
	EnvTotalTurnTimeout  = "AI_PROCESSING_TIMEOUT"
	EnvPollMaxAttempts   = "POLLING_MAX_ATTEMPTS"
	EnvPollBaseDelay     = "POLLING_BASE_DELAY"
	EnvPollMaxDelay      = "POLLING_MAX_DELAY"
	EnvRetryMaxAttempts  = "RETRY_MAX_ATTEMPTS"
	EnvRetryBaseDelay    = "RETRY_BASE_DELAY"
	EnvRetryMaxDelay     = "RETRY_MAX_DELAY"
	EnvProfile           = "ENVIRONMENT"
)

// BudgetFromEnv builds a budget from environment variables. A profile named
// by ENVIRONMENT supplies the preset bundle; individual variables, when set,
// override the preset. Malformed values fall back to the preset value rather
// than aborting startup; invalid combinations are reported by Validate.
func BudgetFromEnv() (TimeoutBudget, error) {
	budget := applyEnvOverrides(presetFromEnv())
	if err := budget.Validate(); err != nil {
		return TimeoutBudget{}, err
	}
	return budget, nil
}

// presetFromEnv returns the profile preset named by ENVIRONMENT, or the
// defaults when the variable is unset or names an unknown profile.
func presetFromEnv() TimeoutBudget {
	if profile := os.Getenv(EnvProfile); profile != "" {
		if preset, err := BudgetForProfile(profile); err == nil {
			return preset
		}
	}
	return DefaultBudget()
}

func applyEnvOverrides(budget TimeoutBudget) TimeoutBudget {
	budget.PerRequestTimeout = envSeconds(EnvPerRequestTimeout, budget.PerRequestTimeout)
	budget.TotalTurnTimeout = envSeconds(EnvTotalTurnTimeout, budget.TotalTurnTimeout)
	budget.PollMaxAttempts = envInt(EnvPollMaxAttempts, budget.PollMaxAttempts)
	budget.PollBaseDelay = envSeconds(EnvPollBaseDelay, budget.PollBaseDelay)
	budget.PollMaxDelay = envSeconds(EnvPollMaxDelay, budget.PollMaxDelay)
	budget.RetryMaxAttempts = envInt(EnvRetryMaxAttempts, budget.RetryMaxAttempts)
	budget.RetryBaseDelay = envSeconds(EnvRetryBaseDelay, budget.RetryBaseDelay)
	budget.RetryMaxDelay = envSeconds(EnvRetryMaxDelay, budget.RetryMaxDelay)
	return budget
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
