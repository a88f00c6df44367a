// Package runner drives one submitted remote run to a terminal state,
// acknowledging requested tool calls along the way and accumulating them
// for execution after the turn resolves.
package runner

import (
	"context"
	"errors"
)

// RunState is the poller-side view of a run's lifecycle.
type RunState string

const (
	StateQueued          RunState = "queued"
	StateInProgress      RunState = "in_progress"
	StateNeedsToolOutput RunState = "needs_tool_output"
	StateCompleted       RunState = "completed"
	StateFailed          RunState = "failed"
	StateCancelled       RunState = "cancelled"
	StateTimedOut        RunState = "timed_out"
)

// Terminal reports whether the state ends the run.
func (s RunState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// Sentinel errors distinguishing the two failure flavors the orchestrator
// cares about.
var (
	// ErrRunTimedOut marks poll-cap or deadline exhaustion.
	ErrRunTimedOut = errors.New("run timed out")
	// ErrRunFailed marks a remote-reported failure or cancellation.
	ErrRunFailed = errors.New("run failed")
)

// PlaceholderReply is returned when a run completes without a retrievable
// assistant message. An empty-but-successful run is a valid outcome and must
// not be conflated with a hard failure.
const PlaceholderReply = "[No response]"

// ToolCall is one side-effect request observed during a run.
type ToolCall struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// ToolOutput is the result submitted back to the remote service for one call.
type ToolOutput struct {
	CallID string
	Output string
}

// TurnResult is the only value that crosses the core's upward boundary.
type TurnResult struct {
	ReplyText string
	ThreadID  string
	ToolCalls []ToolCall
}

// Poll is one observation of a run's remote status.
type Poll struct {
	State RunState
	// ToolCalls is populated when State is StateNeedsToolOutput.
	ToolCalls []ToolCall
	// FailureDetail carries the remote error description on failure states.
	FailureDetail string
}

// Service is the remote completion service at its interface boundary.
// Implemented by the assistant package; faked in tests.
type Service interface {
	// CreateThread mints a new conversation handle.
	CreateThread(ctx context.Context) (string, error)
	// AddUserMessage appends the user's message to the conversation.
	AddUserMessage(ctx context.Context, threadID, text string) error
	// StartRun submits a unit of work and returns its id.
	StartRun(ctx context.Context, threadID string) (string, error)
	// PollRun reports the run's current status.
	PollRun(ctx context.Context, threadID, runID string) (Poll, error)
	// SubmitToolOutputs returns tool results so a paused run can proceed.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error
	// LatestAssistantReply fetches the newest assistant-authored message.
	LatestAssistantReply(ctx context.Context, threadID string) (string, error)
}

// DispatchResult is the outcome of one local tool execution. Dispatch never
// fails from the poller's point of view; unhandled names yield a neutral
// result with Handled false.
type DispatchResult struct {
	// Output is the JSON payload submitted back to the remote service.
	Output string
	// Handled reports whether a registered tool processed the call.
	Handled bool
}

// Dispatcher executes named side effects requested by the remote service.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]string) DispatchResult
}

// Acknowledger answers a paused run's tool calls so it can proceed, without
// executing side effects. Side effects run exactly once, after the turn
// resolves, against the Dispatcher; mid-run the remote service only needs a
// plausible output per call. Read-only tools may still compute their real
// result here.
type Acknowledger interface {
	Acknowledge(ctx context.Context, name string, args map[string]string) string
}
