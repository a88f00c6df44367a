package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whatspr/whatspr/internal/config"
	"github.com/whatspr/whatspr/internal/storage"
)

func buildAnswersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answers",
		Short: "Inspect collected press-release answers",
	}
	cmd.AddCommand(buildAnswersListCmd(), buildAnswersClearCmd())
	return cmd
}

func buildAnswersListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list <session-key>",
		Short: "Print the answers collected for one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("open answer store: %w", err)
			}
			defer store.Close()

			answers, err := store.List(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list answers: %w", err)
			}
			if len(answers) == 0 {
				fmt.Println("No answers recorded for this session.")
				return nil
			}
			for _, a := range answers {
				fmt.Printf("  %-20s %s  (updated %s)\n",
					a.Field, a.Value, a.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildAnswersClearCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clear <session-key>",
		Short: "Delete every answer collected for one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("open answer store: %w", err)
			}
			defer store.Close()

			deleted, err := store.DeleteSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("delete answers: %w", err)
			}
			fmt.Printf("Deleted %d answer(s).\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
