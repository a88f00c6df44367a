package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/whatspr/whatspr/internal/agent"
	"github.com/whatspr/whatspr/internal/assistant"
	"github.com/whatspr/whatspr/internal/config"
	"github.com/whatspr/whatspr/internal/gateway"
	"github.com/whatspr/whatspr/internal/observability"
	"github.com/whatspr/whatspr/internal/retry"
	"github.com/whatspr/whatspr/internal/runner"
	"github.com/whatspr/whatspr/internal/sessions"
	"github.com/whatspr/whatspr/internal/storage"
	"github.com/whatspr/whatspr/internal/tools"
)

const shutdownGrace = 10 * time.Second

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WhatsPR webhook server",
		Long: `Start the WhatsPR webhook server.

The server will:
1. Load configuration and the active timeout budget
2. Open the local answer database
3. Provision (or reuse) the OpenAI assistant
4. Serve the WhatsApp webhook, health, and metrics endpoints

The timeout budget section of the configuration file is hot-reloaded on
change. Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  whatspr serve

  # Start with custom config
  whatspr serve --config /etc/whatspr/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})

	// The default config carries the key as a literal ${OPENAI_API_KEY}
	// reference; expansion normally happens at file load time.
	apiKey := strings.TrimSpace(os.ExpandEnv(cfg.OpenAI.APIKey))
	if apiKey == "" {
		return fmt.Errorf("OpenAI API key is not configured (set OPENAI_API_KEY)")
	}

	budget, err := cfg.Budget()
	if err != nil {
		return fmt.Errorf("timeout budget: %w", err)
	}
	budgets, err := config.NewBudgetStore(budget, log)
	if err != nil {
		return fmt.Errorf("budget store: %w", err)
	}

	sessionStore := sessions.New(sessions.Options{
		TTL:             cfg.Session.TTL(),
		CleanupInterval: cfg.Session.CleanupInterval(),
		Logger:          log,
	})

	answers, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open answer store: %w", err)
	}
	defer func() {
		if err := answers.Close(); err != nil {
			log.Warn("answer_store_close_failed", "error", err)
		}
	}()

	registry := observability.NewRegistry()
	collectors := observability.NewCollectors(registry)

	api := openai.NewClient(apiKey)
	instructions, err := os.ReadFile(cfg.OpenAI.InstructionsFile)
	if err != nil {
		return fmt.Errorf("read assistant instructions: %w", err)
	}
	assistantID, err := assistant.EnsureAssistant(ctx, api, assistant.ProvisionConfig{
		Model:         cfg.OpenAI.Model,
		Name:          cfg.OpenAI.AssistantName,
		Instructions:  strings.TrimSpace(string(instructions)),
		IDFile:        cfg.OpenAI.AssistantIDFile,
		StagingIDFile: cfg.OpenAI.StagingIDFile,
	}, log)
	if err != nil {
		return fmt.Errorf("provision assistant: %w", err)
	}

	toolTable := tools.NewRegistry(answers, log, collectors)
	service := assistant.NewClient(api, assistantID, log)
	poller := runner.NewPoller(service, toolTable, budgets, log)
	orchestrator := retry.New(poller, budgets, log, collectors)
	handler := agent.NewTurnHandler(sessionStore, orchestrator, budgets, toolTable, answers, log)

	server := gateway.NewServer(gateway.Options{
		Addr:     cfg.Server.Addr,
		Handler:  handler,
		Sessions: sessionStore,
		Budgets:  budgets,
		Stats:    orchestrator,
		Registry: registry,
		Logger:   log,
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		go func() {
			if err := config.WatchBudget(runCtx, configPath, budgets, log); err != nil {
				log.Warn("budget_watch_stopped", "error", err)
			}
		}()
	}

	if err := server.Start(); err != nil {
		return err
	}
	log.Info("server_ready",
		"addr", cfg.Server.Addr,
		"assistant_id", assistantID,
		"profile", budget.Profile,
	)

	<-runCtx.Done()
	log.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
