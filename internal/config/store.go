package config

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// BudgetStore holds the active TimeoutBudget snapshot behind an atomic
// pointer. Readers call Current and get a self-consistent snapshot without
// locking; writers swap the whole snapshot and never mutate a live one.
type BudgetStore struct {
	current atomic.Pointer[TimeoutBudget]
	log     *slog.Logger

	mu          sync.Mutex
	updateCount int64
	lastUpdated time.Time
}

// NewBudgetStore creates a store with the given initial budget. The budget
// must already be valid; use DefaultBudget when in doubt.
func NewBudgetStore(initial TimeoutBudget, log *slog.Logger) (*BudgetStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	s := &BudgetStore{log: log}
	s.current.Store(&initial)
	return s, nil
}

// Current returns the active budget snapshot. O(1), never blocks. In-flight
// operations keep whatever snapshot they captured; a concurrent Replace does
// not affect them.
func (s *BudgetStore) Current() TimeoutBudget {
	return *s.current.Load()
}

// Replace validates the candidate and atomically swaps it in. On validation
// failure the previous snapshot stays active and the error is returned;
// the store is never left without a valid budget.
func (s *BudgetStore) Replace(candidate TimeoutBudget) error {
	if err := candidate.Validate(); err != nil {
		s.log.Warn("budget_replace_rejected", "error", err)
		return err
	}
	s.current.Store(&candidate)

	s.mu.Lock()
	s.updateCount++
	s.lastUpdated = time.Now()
	s.mu.Unlock()

	s.log.Info("budget_replaced",
		"per_request_timeout", candidate.PerRequestTimeout,
		"total_turn_timeout", candidate.TotalTurnTimeout,
		"retry_max_attempts", candidate.RetryMaxAttempts,
		"poll_max_attempts", candidate.PollMaxAttempts,
		"profile", candidate.Profile)
	return nil
}

// LoadFromEnvironment builds a candidate from environment variables and
// replaces the active snapshot with it.
func (s *BudgetStore) LoadFromEnvironment() error {
	candidate, err := BudgetFromEnv()
	if err != nil {
		s.log.Warn("budget_env_load_rejected", "error", err)
		return err
	}
	return s.Replace(candidate)
}

// LoadForProfile replaces the active snapshot with a profile preset.
func (s *BudgetStore) LoadForProfile(profile string) error {
	candidate, err := BudgetForProfile(profile)
	if err != nil {
		s.log.Warn("budget_profile_load_rejected", "profile", profile, "error", err)
		return err
	}
	return s.Replace(candidate)
}

// BudgetMetrics is a point-in-time view of the store for health reporting.
type BudgetMetrics struct {
	Current     TimeoutBudget `json:"current"`
	UpdateCount int64         `json:"update_count"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Metrics returns store metrics for the health endpoint.
func (s *BudgetStore) Metrics() BudgetMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BudgetMetrics{
		Current:     s.Current(),
		UpdateCount: s.updateCount,
		LastUpdated: s.lastUpdated,
	}
}
