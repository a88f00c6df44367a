// Package main provides the CLI entry point for the WhatsPR agent server.
//
// WhatsPR collects press-release material over WhatsApp: inbound messages
// arrive on a Twilio webhook, an OpenAI assistant drives the conversation,
// and every collected field is persisted locally.
//
// # Basic Usage
//
// Start the server:
//
//	whatspr serve --config whatspr.yaml
//
// Validate a configuration file:
//
//	whatspr config check --config whatspr.yaml
//
// # Environment Variables
//
//   - OPENAI_API_KEY: OpenAI API key (required to serve)
//   - ENVIRONMENT: timeout profile selector (development|staging|production)
//   - OPENAI_REQUEST_TIMEOUT, AI_PROCESSING_TIMEOUT: per-request/total
//     timeout overrides in seconds
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "whatspr",
		Short:         "WhatsApp press-release assistant server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
		buildAnswersCmd(),
		buildVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("whatspr %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
