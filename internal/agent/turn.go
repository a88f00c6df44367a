// Package agent handles one inbound conversation turn end to end: reset
// commands, menu shortcuts, session lookup, and the retried run.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/whatspr/whatspr/internal/config"
	"github.com/whatspr/whatspr/internal/runner"
	"github.com/whatspr/whatspr/internal/sessions"
	"github.com/whatspr/whatspr/internal/storage"
	"github.com/whatspr/whatspr/internal/tools"
)

// MenuReply greets the user after a reset and lists the announcement types.
const MenuReply = "👋 Hi! What kind of announcement?\n" +
	"  Press 1 for Funding round\n" +
	"  Press 2 for Product launch\n" +
	"  Press 3 for Partnership / integration"

// resetVocabulary lists the commands that wipe the conversation, matched
// case-insensitively against the whole message.
var resetVocabulary = map[string]struct{}{
	"reset":      {},
	"restart":    {},
	"start over": {},
	"menu":       {},
	"start":      {},
}

// menuShortcuts maps numeric menu picks to the intent sentence the
// assistant expects.
var menuShortcuts = map[string]string{
	"1":  "I want to announce a funding round",
	"1️⃣": "I want to announce a funding round",
	"2":  "I want to announce a product launch",
	"2️⃣": "I want to announce a product launch",
	"3":  "I want to announce a partnership or integration",
	"3️⃣": "I want to announce a partnership or integration",
}

// TurnRunner is the retried-run entry point the handler drives.
type TurnRunner interface {
	RunWithRetry(ctx context.Context, threadID, message string, totalBudget time.Duration) runner.TurnResult
}

// TurnHandler resolves the session for an inbound message, runs the turn
// under the active time budget, and persists what came back.
type TurnHandler struct {
	sessions     *sessions.Store
	orchestrator TurnRunner
	budgets      *config.BudgetStore
	dispatcher   runner.Dispatcher
	answers      *storage.AnswerStore
	log          *slog.Logger
}

// NewTurnHandler wires the turn pipeline. answers may be nil when no answer
// store is configured; resets then only clear the session.
func NewTurnHandler(store *sessions.Store, orchestrator TurnRunner, budgets *config.BudgetStore, dispatcher runner.Dispatcher, answers *storage.AnswerStore, log *slog.Logger) *TurnHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TurnHandler{
		sessions:     store,
		orchestrator: orchestrator,
		budgets:      budgets,
		dispatcher:   dispatcher,
		answers:      answers,
		log:          log,
	}
}

// HandleTurn processes one user message and returns the reply to deliver.
// It never returns an error: every failure path inside resolves to a
// fallback reply.
func (h *TurnHandler) HandleTurn(ctx context.Context, userID, message string) runner.TurnResult {
	trimmed := strings.TrimSpace(message)

	if _, ok := resetVocabulary[strings.ToLower(trimmed)]; ok {
		existed := h.sessions.Remove(userID)
		deleted := h.clearAnswers(ctx, userID)
		h.log.Info("session_reset",
			"user", hashTail(userID), "existed", existed, "answers_deleted", deleted)
		return runner.TurnResult{ReplyText: MenuReply}
	}

	if intent, ok := menuShortcuts[trimmed]; ok {
		message = intent
	}

	threadID, _ := h.sessions.Get(userID)

	ctx = tools.WithSessionKey(ctx, userID)
	budget := h.budgets.Current()
	result := h.orchestrator.RunWithRetry(ctx, threadID, message, budget.TotalTurnTimeout)

	if result.ThreadID != "" {
		h.sessions.Set(userID, result.ThreadID)
	} else {
		// Never store an empty handle: a corrupted session is worse
		// than a missing one.
		h.log.Warn("empty_thread_handle", "user", hashTail(userID))
	}

	h.executeToolCalls(ctx, result.ToolCalls)
	return result
}

// clearAnswers drops the collected answers for a reset conversation so the
// next one starts from a blank slate.
func (h *TurnHandler) clearAnswers(ctx context.Context, userID string) int {
	if h.answers == nil {
		return 0
	}
	deleted, err := h.answers.DeleteSession(ctx, userID)
	if err != nil {
		h.log.Error("answer_cleanup_failed", "user", hashTail(userID), "error", err)
		return 0
	}
	return deleted
}

// executeToolCalls runs the turn's tool calls against the side-effect table.
// This is the single place side effects execute; mid-run the poller only
// acknowledged them. Each call is isolated: one failure logs and the rest
// still run.
func (h *TurnHandler) executeToolCalls(ctx context.Context, calls []runner.ToolCall) {
	for _, call := range calls {
		result := h.dispatcher.Dispatch(ctx, call.Name, call.Arguments)
		if !result.Handled {
			h.log.Warn("unknown_tool", "tool", call.Name)
			continue
		}
		h.log.Info("tool_executed", "tool", call.Name)
	}
}

// hashTail keeps logs correlatable without recording the full identity.
func hashTail(userID string) string {
	if len(userID) <= 4 {
		return userID
	}
	return userID[len(userID)-4:]
}
