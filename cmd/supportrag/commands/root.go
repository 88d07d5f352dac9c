// Package commands defines all Cobra CLI commands for the supportrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/supportrag-go/internal/audit"
	"github.com/54b3r/supportrag-go/internal/config"
	"github.com/54b3r/supportrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "supportrag",
		Short: "Customer support answers from FAQs and resolved tickets",
		Long: `supportrag answers customer questions from a knowledge base of FAQs and
resolved support tickets.

A question is matched against the FAQ store first. If no FAQ is similar
enough it falls back to past tickets, and if that fails too the query is
escalated to a human agent with a fixed apology.

Backends are selected via environment variables or a YAML config file
(~/.supportrag/config.yaml). Run 'supportrag ingest' once before serving.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.supportrag/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewIngestCmd(),
		NewAddFAQCmd(),
		NewStatsCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return root
}
