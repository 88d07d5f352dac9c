package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/mcpserver"
	"github.com/54b3r/supportrag-go/internal/tracing"
)

// NewMCPCmd constructs the `supportrag mcp` command, which serves the
// support tools over the MCP stdio transport.
func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the support tools over MCP (stdio)",
		Long: `Serve the support engine as Model Context Protocol tools on stdin/stdout.

Tools:
  support_query     answer a customer question
  support_stats     query statistics and store sizes
  support_add_faq   add one FAQ without a rebuild

Logs go to stderr. Run 'supportrag ingest' first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			eng, err := buildEngine(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer func() { _ = eng.Close() }()

			srv := mcpserver.New(eng.svc, log)
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		},
	}
}
