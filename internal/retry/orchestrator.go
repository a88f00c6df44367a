// Package retry wraps the run poller with bounded attempts carved out of a
// single wall-clock budget. Every failure path resolves to a synthesized
// fallback TurnResult; nothing escapes upward as an error.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/whatspr/whatspr/internal/backoff"
	"github.com/whatspr/whatspr/internal/config"
	"github.com/whatspr/whatspr/internal/observability"
	"github.com/whatspr/whatspr/internal/runner"
)

// Fallback replies, differentiated by failure kind. Raw error detail never
// reaches the user.
const (
	FallbackTimeoutReply = "I'm processing your request. Please give me a moment and try again shortly."
	FallbackErrorReply   = "I'm having trouble processing your request right now. Please try again."
)

// safetyMargin is held back from the remaining budget when sizing an
// attempt so bookkeeping around an attempt never pushes the turn past its
// total budget.
const safetyMargin = 100 * time.Millisecond

// minDelayHeadroom is the spare time that must remain beyond an
// inter-attempt delay for the delay to be worth taking. When less remains
// the orchestrator retries immediately; waiting would guarantee exhaustion.
const minDelayHeadroom = time.Second

// Runner is the slice of the poller the orchestrator needs.
type Runner interface {
	Run(ctx context.Context, threadID, message string) (runner.TurnResult, error)
	EnsureThread(ctx context.Context, threadID string) (string, error)
}

// Orchestrator retries runs under one total wall-clock budget.
type Orchestrator struct {
	runner  Runner
	budgets *config.BudgetStore
	log     *slog.Logger
	metrics *observability.Collectors

	mu             sync.Mutex
	turns          int64
	attempts       int64
	fallbacks      int64
	lastFallbackAt time.Time
}

// New creates a retry orchestrator. metrics may be nil.
func New(r Runner, budgets *config.BudgetStore, log *slog.Logger, metrics *observability.Collectors) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{runner: r, budgets: budgets, log: log, metrics: metrics}
}

// RunWithRetry drives the message through up to retryMaxAttempts+1 run
// attempts, dividing totalBudget across them. It never returns an error: on
// exhaustion the result carries a fallback reply and a preserved or freshly
// minted thread handle.
func (o *Orchestrator) RunWithRetry(ctx context.Context, threadID, message string, totalBudget time.Duration) runner.TurnResult {
	o.mu.Lock()
	o.turns++
	o.mu.Unlock()
	o.metrics.RecordTurn()

	budget := o.budgets.Current()
	attempts := budget.RetryMaxAttempts + 1
	perAttempt := totalBudget / time.Duration(attempts)
	policy := backoff.RetryPolicy(budget.RetryBaseDelay, budget.RetryMaxDelay)

	start := time.Now()
	handle := threadID
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		remaining := totalBudget - time.Since(start)
		deadline := perAttempt
		if capped := remaining - safetyMargin; capped < deadline {
			deadline = capped
		}
		if deadline <= 0 {
			// Not enough time left for a meaningful attempt; a doomed call
			// would only delay the fallback further.
			o.log.Warn("retry_budget_exhausted",
				"attempt", attempt, "remaining", remaining)
			break
		}

		o.mu.Lock()
		o.attempts++
		o.mu.Unlock()
		o.metrics.RecordAttempt()

		attemptCtx, cancel := context.WithTimeout(ctx, deadline)
		result, err := o.runner.Run(attemptCtx, handle, message)
		cancel()

		// A handle created during a failed attempt is still a valid handle;
		// carry it into the next attempt instead of re-creating threads.
		if result.ThreadID != "" {
			handle = result.ThreadID
		}

		if err == nil {
			o.log.Debug("turn_attempt_succeeded",
				"attempt", attempt+1, "elapsed", time.Since(start))
			return result
		}
		lastErr = err
		o.log.Warn("turn_attempt_failed",
			"attempt", attempt+1, "attempts_total", attempts,
			"error", err, "elapsed", time.Since(start))

		if attempt == attempts-1 {
			break
		}
		delay := backoff.Delay(policy, attempt+1)
		remaining = totalBudget - time.Since(start)
		if remaining <= delay+minDelayHeadroom {
			// Sleeping would eat the time the next attempt needs.
			continue
		}
		if err := backoff.Sleep(ctx, delay); err != nil {
			break
		}
	}

	return o.fallback(ctx, handle, lastErr)
}

// fallback synthesizes the exhaustion result: a user-appropriate reply plus
// a preserved or freshly minted handle, never an empty one if the remote
// service can still mint threads.
func (o *Orchestrator) fallback(ctx context.Context, handle string, lastErr error) runner.TurnResult {
	kind := observability.FallbackKindError
	reply := FallbackErrorReply
	// A turn that never got far enough to fail (budget gone before the first
	// attempt) reads as a timeout to the user.
	if lastErr == nil || errors.Is(lastErr, runner.ErrRunTimedOut) {
		kind = observability.FallbackKindTimeout
		reply = FallbackTimeoutReply
	}

	if handle == "" {
		minted, err := o.runner.EnsureThread(ctx, "")
		if err != nil {
			o.log.Error("fallback_thread_creation_failed", "error", err)
		} else {
			handle = minted
		}
	}

	o.mu.Lock()
	o.fallbacks++
	o.lastFallbackAt = time.Now()
	o.mu.Unlock()
	o.metrics.RecordFallback(kind)

	o.log.Warn("turn_fallback", "kind", kind, "thread_present", handle != "")
	return runner.TurnResult{ReplyText: reply, ThreadID: handle}
}

// OrchestratorMetrics is a point-in-time view for the health endpoint.
type OrchestratorMetrics struct {
	Turns          int64     `json:"turns"`
	Attempts       int64     `json:"attempts"`
	Fallbacks      int64     `json:"fallbacks"`
	LastFallbackAt time.Time `json:"last_fallback_at"`
}

// Metrics returns orchestrator counters.
func (o *Orchestrator) Metrics() OrchestratorMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OrchestratorMetrics{
		Turns:          o.turns,
		Attempts:       o.attempts,
		Fallbacks:      o.fallbacks,
		LastFallbackAt: o.lastFallbackAt,
	}
}
