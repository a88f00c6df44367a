package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/whatspr/whatspr/internal/backoff"
	"github.com/whatspr/whatspr/internal/config"
)

// Poller drives a single run to a terminal state. Each Run call owns its
// state machine exclusively; nothing is shared across attempts or turns.
type Poller struct {
	svc     Service
	acks    Acknowledger
	budgets *config.BudgetStore
	log     *slog.Logger
}

// NewPoller creates a run poller.
func NewPoller(svc Service, acks Acknowledger, budgets *config.BudgetStore, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{svc: svc, acks: acks, budgets: budgets, log: log}
}

// EnsureThread returns the given thread id, creating a fresh one when it is
// empty. The orchestrator uses this to mint a handle after exhausted retries
// so a first-time user is never left handle-less.
func (p *Poller) EnsureThread(ctx context.Context, threadID string) (string, error) {
	if threadID != "" {
		return threadID, nil
	}
	budget := p.budgets.Current()
	callCtx, cancel := context.WithTimeout(ctx, budget.PerRequestTimeout)
	defer cancel()
	created, err := p.svc.CreateThread(callCtx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return created, nil
}

// Run submits the user message on the thread (creating the thread lazily)
// and polls the resulting run until it completes, acknowledging tool calls
// whenever the run pauses for them. The calls themselves are accumulated on
// the TurnResult for the caller to execute once the turn resolves. The
// caller bounds the whole operation through ctx; expiry at any point
// surfaces as ErrRunTimedOut.
//
// On failure paths the returned TurnResult still carries the thread id so
// callers can preserve or reuse the handle.
func (p *Poller) Run(ctx context.Context, threadID, message string) (TurnResult, error) {
	budget := p.budgets.Current()

	threadID, err := p.EnsureThread(ctx, threadID)
	if err != nil {
		return TurnResult{}, p.classify(err)
	}
	result := TurnResult{ThreadID: threadID}

	if err := p.call(ctx, budget, func(callCtx context.Context) error {
		return p.svc.AddUserMessage(callCtx, threadID, message)
	}); err != nil {
		return result, p.classify(fmt.Errorf("add message: %w", err))
	}

	var runID string
	if err := p.call(ctx, budget, func(callCtx context.Context) error {
		var startErr error
		runID, startErr = p.svc.StartRun(callCtx, threadID)
		return startErr
	}); err != nil {
		return result, p.classify(fmt.Errorf("start run: %w", err))
	}

	// Submission acknowledged: queued -> in progress.
	state := StateInProgress
	pollPolicy := backoff.PollPolicy(budget.PollBaseDelay, budget.PollMaxDelay)
	started := time.Now()

	for attempt := 1; attempt <= budget.PollMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			p.logTimeout(runID, attempt, started)
			return result, ErrRunTimedOut
		}

		var poll Poll
		if err := p.call(ctx, budget, func(callCtx context.Context) error {
			var pollErr error
			poll, pollErr = p.svc.PollRun(callCtx, threadID, runID)
			return pollErr
		}); err != nil {
			return result, p.classify(fmt.Errorf("poll run: %w", err))
		}
		state = poll.State

		switch state {
		case StateCompleted:
			result.ReplyText = p.fetchReply(ctx, budget, threadID)
			p.log.Debug("run_completed",
				"run_id", runID, "polls", attempt,
				"tool_calls", len(result.ToolCalls),
				"elapsed", time.Since(started))
			return result, nil

		case StateFailed, StateCancelled:
			detail := poll.FailureDetail
			if detail == "" {
				detail = string(state)
			}
			p.log.Warn("run_failed", "run_id", runID, "state", state, "detail", detail)
			return result, fmt.Errorf("run %s %s: %s: %w", runID, state, detail, ErrRunFailed)

		case StateTimedOut:
			// Remote-declared expiry is terminal; re-polling a dead run
			// would burn the rest of the attempt budget for nothing.
			p.logTimeout(runID, attempt, started)
			return result, ErrRunTimedOut

		case StateNeedsToolOutput:
			outputs := p.acknowledgeAll(ctx, poll.ToolCalls)
			result.ToolCalls = append(result.ToolCalls, poll.ToolCalls...)
			if err := p.call(ctx, budget, func(callCtx context.Context) error {
				return p.svc.SubmitToolOutputs(callCtx, threadID, runID, outputs)
			}); err != nil {
				return result, p.classify(fmt.Errorf("submit tool outputs: %w", err))
			}
			// Back to in progress; poll again without sleeping, the remote
			// side resumes as soon as outputs land.

		default:
			// Still working: queued or in progress.
			if err := backoff.SleepBackoff(ctx, pollPolicy, attempt); err != nil {
				p.logTimeout(runID, attempt, started)
				return result, ErrRunTimedOut
			}
		}
	}

	p.logTimeout(runID, budget.PollMaxAttempts, started)
	return result, ErrRunTimedOut
}

// call runs one remote operation under the per-request timeout carved from
// the caller's deadline.
func (p *Poller) call(ctx context.Context, budget config.TimeoutBudget, op func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, budget.PerRequestTimeout)
	defer cancel()
	return op(callCtx)
}

// acknowledgeAll answers every requested tool call in order so the run can
// proceed. Unknown tool names get the acknowledger's neutral result; one bad
// name must not fail an otherwise-valid turn.
func (p *Poller) acknowledgeAll(ctx context.Context, calls []ToolCall) []ToolOutput {
	outputs := make([]ToolOutput, 0, len(calls))
	for _, call := range calls {
		output := p.acks.Acknowledge(ctx, call.Name, call.Arguments)
		outputs = append(outputs, ToolOutput{CallID: call.ID, Output: output})
	}
	return outputs
}

// fetchReply retrieves the newest assistant message, falling back to the
// placeholder when nothing is retrievable.
func (p *Poller) fetchReply(ctx context.Context, budget config.TimeoutBudget, threadID string) string {
	var reply string
	err := p.call(ctx, budget, func(callCtx context.Context) error {
		var fetchErr error
		reply, fetchErr = p.svc.LatestAssistantReply(callCtx, threadID)
		return fetchErr
	})
	if err != nil {
		p.log.Warn("reply_fetch_failed", "error", err)
		return PlaceholderReply
	}
	if strings.TrimSpace(reply) == "" {
		p.log.Warn("empty_assistant_reply")
		return PlaceholderReply
	}
	return reply
}

// classify maps transport-level errors onto the poller's two failure kinds:
// deadline expiry is a timeout, everything else is a run failure.
func (p *Poller) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrRunTimedOut
	}
	return fmt.Errorf("%w: %v", ErrRunFailed, err)
}

func (p *Poller) logTimeout(runID string, polls int, started time.Time) {
	p.log.Warn("run_timeout", "run_id", runID, "polls", polls, "elapsed", time.Since(started))
}
