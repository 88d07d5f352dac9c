package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/supportrag-go/internal/logging"
	"github.com/54b3r/supportrag-go/internal/tracing"
)

// NewAskCmd constructs the `supportrag ask` command, which answers one
// question and prints the answer with its citations.
func NewAskCmd() *cobra.Command {
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a customer question from the knowledge base",
		Long: `Answer a single customer question.

The question is matched against the FAQ store, then resolved tickets. When
neither is confident enough the escalation apology is printed and the
escalation reason is shown.

Examples:
  supportrag ask "How do I reset my password?"
  supportrag ask --top-k 5 "My order has not arrived"
  supportrag ask --json "Can I change my delivery address?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			eng, err := buildEngine(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = eng.Close() }()

			resp, err := eng.svc.Query(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			log.Debug("ask: answered", slog.String("query_id", resp.QueryID), slog.Float64("latency_ms", resp.LatencyMS))

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Fprintln(out, resp.Answer)
			fmt.Fprintf(out, "\nsource: %s  confidence: %.4f", resp.Source, resp.Confidence)
			if resp.Escalation != "" {
				fmt.Fprintf(out, "  escalation: %s", resp.Escalation)
			}
			fmt.Fprintln(out)
			for _, c := range resp.Citations {
				fmt.Fprintf(out, "  [%d] %s %s (%.4f) %s\n", c.Rank, c.Source, c.ID, c.Similarity, firstLine(c.Content))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Results per store, 1 to 10 (default: RETRIEVAL_TOP_K or 3)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")

	return cmd
}

// firstLine returns the first line of s.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
