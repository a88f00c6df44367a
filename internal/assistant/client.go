// Package assistant adapts the OpenAI Assistants API to the run lifecycle
// the poller drives: threads, messages, runs, and tool-output submission.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/whatspr/whatspr/internal/runner"
)

// Client implements runner.Service against a provisioned assistant.
type Client struct {
	api         *openai.Client
	assistantID string
	log         *slog.Logger
}

// NewClient wraps an OpenAI client bound to one assistant.
func NewClient(api *openai.Client, assistantID string, log *slog.Logger) *Client {
	return &Client{api: api, assistantID: assistantID, log: log}
}

// CreateThread starts a fresh conversation thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	c.log.Debug("thread_created", "thread_id", thread.ID)
	return thread.ID, nil
}

// AddUserMessage appends the user's message to the thread.
func (c *Client) AddUserMessage(ctx context.Context, threadID, message string) error {
	_, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: message,
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// StartRun submits a run against the thread and returns its id.
func (c *Client) StartRun(ctx context.Context, threadID string) (string, error) {
	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: c.assistantID,
	})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

// PollRun retrieves the run's current status, translating the remote
// status vocabulary into the local state machine.
func (c *Client) PollRun(ctx context.Context, threadID, runID string) (runner.Poll, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return runner.Poll{}, fmt.Errorf("retrieve run: %w", err)
	}

	switch run.Status {
	case openai.RunStatusQueued:
		return runner.Poll{State: runner.StateQueued}, nil
	case openai.RunStatusInProgress:
		return runner.Poll{State: runner.StateInProgress}, nil
	case openai.RunStatusCompleted:
		return runner.Poll{State: runner.StateCompleted}, nil
	case openai.RunStatusRequiresAction:
		calls, err := extractToolCalls(run)
		if err != nil {
			return runner.Poll{}, err
		}
		return runner.Poll{State: runner.StateNeedsToolOutput, ToolCalls: calls}, nil
	case openai.RunStatusFailed:
		return runner.Poll{State: runner.StateFailed, FailureDetail: lastErrorDetail(run)}, nil
	case openai.RunStatusCancelling, openai.RunStatusCancelled:
		return runner.Poll{State: runner.StateCancelled, FailureDetail: string(run.Status)}, nil
	case openai.RunStatusExpired:
		return runner.Poll{State: runner.StateTimedOut, FailureDetail: "run expired"}, nil
	default:
		return runner.Poll{State: runner.StateInProgress}, nil
	}
}

// SubmitToolOutputs feeds tool results back so the run can resume.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []runner.ToolOutput) error {
	req := openai.SubmitToolOutputsRequest{
		ToolOutputs: make([]openai.ToolOutput, 0, len(outputs)),
	}
	for _, out := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{
			ToolCallID: out.CallID,
			Output:     out.Output,
		})
	}
	if _, err := c.api.SubmitToolOutputs(ctx, threadID, runID, req); err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	return nil
}

// LatestAssistantReply returns the newest assistant-authored text in the
// thread, or empty when none exists yet.
func (c *Client) LatestAssistantReply(ctx context.Context, threadID string) (string, error) {
	limit := 5
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		for _, part := range msg.Content {
			if part.Text != nil && strings.TrimSpace(part.Text.Value) != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", nil
}

func extractToolCalls(run openai.Run) ([]runner.ToolCall, error) {
	action := run.RequiredAction
	if action == nil || action.SubmitToolOutputs == nil {
		return nil, fmt.Errorf("run %s requires action but carries no tool calls", run.ID)
	}
	calls := make([]runner.ToolCall, 0, len(action.SubmitToolOutputs.ToolCalls))
	for _, tc := range action.SubmitToolOutputs.ToolCalls {
		calls = append(calls, runner.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}
	return calls, nil
}

// decodeArguments flattens the JSON argument object into strings. Values
// the model sends as numbers or booleans are kept in their literal form.
func decodeArguments(raw string) map[string]string {
	args := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return args
	}
	for key, value := range decoded {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			args[key] = s
			continue
		}
		args[key] = string(value)
	}
	return args
}

func lastErrorDetail(run openai.Run) string {
	if run.LastError != nil {
		return fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
	}
	return "run failed"
}
