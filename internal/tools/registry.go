// Package tools implements the side-effect table the assistant can invoke
// mid-run: slot persistence, local validation, and conversation completion.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/whatspr/whatspr/internal/observability"
	"github.com/whatspr/whatspr/internal/runner"
	"github.com/whatspr/whatspr/internal/storage"
)

type sessionKeyContext struct{}

// WithSessionKey attaches the conversation's session key to the context so
// slot saves land under the right conversation.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyContext{}, key)
}

// SessionKeyFromContext returns the session key attached by WithSessionKey,
// or "default" when none was attached.
func SessionKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(sessionKeyContext{}).(string); ok && key != "" {
		return key
	}
	return "default"
}

// AtomicFields are the press-release slots with dedicated save_* tools.
var AtomicFields = []string{
	"announcement_type",
	"headline",
	"key_facts",
	"quotes",
	"boilerplate",
	"media_contact",
}

// Registry dispatches assistant tool calls against the answer store. It
// never returns an error to the caller: unknown names produce an unhandled
// result and per-call failures produce an error payload, so one bad tool
// call cannot abort the run that requested it.
type Registry struct {
	store   *storage.AnswerStore
	log     *slog.Logger
	metrics *observability.Collectors

	handlers map[string]func(ctx context.Context, args map[string]string) (string, error)
}

// NewRegistry builds the dispatch table. metrics may be nil.
func NewRegistry(store *storage.AnswerStore, log *slog.Logger, metrics *observability.Collectors) *Registry {
	r := &Registry{store: store, log: log, metrics: metrics}
	r.handlers = map[string]func(ctx context.Context, args map[string]string) (string, error){
		"save_slot":      r.saveSlot,
		"get_slot":       r.getSlot,
		"finish":         r.finish,
		"validate_local": r.validateLocal,
	}
	for _, field := range AtomicFields {
		r.handlers["save_"+field] = r.atomicSaver(field)
	}
	return r
}

// Acknowledge implements runner.Acknowledger. It answers a paused run's
// tool call with a plausible output so the run proceeds, without touching
// the store: the real side effect runs exactly once, through Dispatch,
// after the turn resolves. validate_local is read-only and computes its
// real result so the assistant can react to a rejected value mid-run.
func (r *Registry) Acknowledge(ctx context.Context, name string, args map[string]string) string {
	switch name {
	case "validate_local":
		output, err := r.validateLocal(ctx, args)
		if err != nil {
			return `{"status":"error"}`
		}
		return output
	case "get_slot":
		return `{"value":""}`
	case "finish":
		return `{"status":"finished"}`
	default:
		if _, ok := r.handlers[name]; ok {
			return `{"status":"saved"}`
		}
		r.log.Warn("unhandled_tool", "tool", name)
		return `{"status":"unhandled"}`
	}
}

// Dispatch implements runner.Dispatcher.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]string) runner.DispatchResult {
	handler, ok := r.handlers[name]
	if !ok {
		r.log.Warn("unhandled_tool", "tool", name)
		r.metrics.RecordToolDispatch("unhandled")
		return runner.DispatchResult{Output: `{"status":"unhandled"}`, Handled: false}
	}

	output, err := handler(ctx, args)
	if err != nil {
		r.log.Error("tool_dispatch_failed", "tool", name, "error", err)
		r.metrics.RecordToolDispatch("failed")
		return runner.DispatchResult{Output: `{"status":"error"}`, Handled: true}
	}
	r.metrics.RecordToolDispatch("handled")
	return runner.DispatchResult{Output: output, Handled: true}
}

func (r *Registry) saveSlot(ctx context.Context, args map[string]string) (string, error) {
	name, value := args["name"], args["value"]
	if err := r.store.Upsert(ctx, SessionKeyFromContext(ctx), name, value); err != nil {
		return "", err
	}
	r.log.Info("save_slot", "name", name)
	return encode(map[string]string{"status": "saved", "name": name, "value": value})
}

func (r *Registry) getSlot(ctx context.Context, args map[string]string) (string, error) {
	name := args["name"]
	value, err := r.store.Get(ctx, SessionKeyFromContext(ctx), name)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	r.log.Info("get_slot", "name", name)
	return encode(map[string]string{"value": value, "name": name})
}

func (r *Registry) finish(ctx context.Context, _ map[string]string) (string, error) {
	r.log.Info("finish", "session", SessionKeyFromContext(ctx))
	return `{"status":"finished"}`, nil
}

func (r *Registry) validateLocal(_ context.Context, args map[string]string) (string, error) {
	name, value := args["name"], args["value"]
	accepted, hint := Validate(RuleForField(name), value)
	return encode(map[string]any{"accepted": accepted, "hint": hint})
}

func (r *Registry) atomicSaver(field string) func(ctx context.Context, args map[string]string) (string, error) {
	return func(ctx context.Context, args map[string]string) (string, error) {
		if err := r.store.Upsert(ctx, SessionKeyFromContext(ctx), field, args["value"]); err != nil {
			return "", err
		}
		r.log.Info("atomic_save", "field", field)
		return encode(map[string]string{"status": "saved", "field": field})
	}
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
