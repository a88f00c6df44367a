package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/whatspr/whatspr/internal/tools"
)

// ProvisionConfig controls assistant creation and id caching.
type ProvisionConfig struct {
	Model        string
	Name         string
	Instructions string
	// IDFile caches the created assistant id across restarts so deploys
	// do not pile up assistants.
	IDFile string
	// StagingIDFile, when present and non-empty, wins over IDFile.
	StagingIDFile string
}

// EnsureAssistant returns the id of the assistant to use, creating one
// when no cached id exists. The staging cache file is consulted first.
func EnsureAssistant(ctx context.Context, api *openai.Client, cfg ProvisionConfig, log *slog.Logger) (string, error) {
	if id := readCachedID(cfg.StagingIDFile); id != "" {
		log.Info("assistant_from_staging_cache", "assistant_id", id, "file", cfg.StagingIDFile)
		return id, nil
	}
	if id := readCachedID(cfg.IDFile); id != "" {
		log.Info("assistant_from_cache", "assistant_id", id, "file", cfg.IDFile)
		return id, nil
	}

	created, err := api.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        cfg.Model,
		Name:         &cfg.Name,
		Instructions: &cfg.Instructions,
		Tools:        ToolDefinitions(),
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	log.Info("assistant_created", "assistant_id", created.ID, "model", cfg.Model)

	if cfg.IDFile != "" {
		if err := os.WriteFile(cfg.IDFile, []byte(created.ID), 0o600); err != nil {
			log.Warn("assistant_cache_write_failed", "file", cfg.IDFile, "error", err)
		}
	}
	return created.ID, nil
}

func readCachedID(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ToolDefinitions declares the function tools the assistant may call:
// generic slot access, local validation, completion, and one dedicated
// save function per press-release field.
func ToolDefinitions() []openai.AssistantTool {
	nameValueParams := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string"},
			"value": map[string]any{"type": "string"},
		},
		"required": []string{"name", "value"},
	}

	defs := []openai.AssistantTool{
		functionTool("save_slot", nameValueParams),
		functionTool("get_slot", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
			"required": []string{"name"},
		}),
		functionTool("finish", map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}),
		functionTool("validate_local", nameValueParams),
	}

	valueOnlyParams := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{"type": "string"},
		},
		"required": []string{"value"},
	}
	for _, field := range tools.AtomicFields {
		defs = append(defs, functionTool("save_"+field, valueOnlyParams))
	}
	return defs
}

func functionTool(name string, params map[string]any) openai.AssistantTool {
	return openai.AssistantTool{
		Type: openai.AssistantToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:       name,
			Parameters: params,
		},
	}
}
