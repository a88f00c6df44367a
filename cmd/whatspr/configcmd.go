package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whatspr/whatspr/internal/config"
)

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	cmd.AddCommand(buildConfigCheckCmd())
	return cmd
}

func buildConfigCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file and print the resolved timeout budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			budget, err := cfg.Budget()
			if err != nil {
				return fmt.Errorf("timeout budget: %w", err)
			}

			fmt.Println("Configuration OK")
			fmt.Printf("  server addr:          %s\n", cfg.Server.Addr)
			fmt.Printf("  storage path:         %s\n", cfg.Storage.Path)
			fmt.Printf("  session ttl:          %s\n", cfg.Session.TTL())
			fmt.Printf("  profile:              %s\n", budget.Profile)
			fmt.Printf("  per-request timeout:  %s\n", budget.PerRequestTimeout)
			fmt.Printf("  total turn timeout:   %s\n", budget.TotalTurnTimeout)
			fmt.Printf("  retry attempts:       %d\n", budget.RetryMaxAttempts)
			fmt.Printf("  poll attempts:        %d\n", budget.PollMaxAttempts)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
