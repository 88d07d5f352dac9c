package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/supportrag-go/internal/logging"
)

// NewIngestCmd constructs the `supportrag ingest` command, which loads the
// knowledge sources and builds the FAQ and ticket stores.
func NewIngestCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the FAQ and ticket stores from the knowledge sources",
		Long: `Load the knowledge sources and build the FAQ and ticket stores.

Without --rebuild, existing stores are reused and only built when empty.
With --rebuild, all sources are reloaded and both stores are replaced. A
failed rebuild leaves the previous stores in place.

Sources:
  FAQ_CSV        FAQ export: question,answer[,category]
                 (default: $SUPPORTRAG_DATA_DIR/support_faqs.csv)
  TICKET_CSV     Ticket export: user_question,agent_response[,resolution_status,category]
                 (default: $SUPPORTRAG_DATA_DIR/support_tickets.csv)
  HF_DATASETS    HuggingFace FAQ datasets, comma-separated, tried in order;
                 "none" disables (default: bitext, then MakTek)
  HF_MAX_RECORDS Row cap per dataset (default: 5000)

Examples:
  supportrag ingest
  supportrag ingest --rebuild
  HF_DATASETS=none FAQ_CSV=./faqs.csv supportrag ingest --rebuild`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			eng, err := buildEngine(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = eng.Close() }()

			fmt.Fprintln(cmd.ErrOrStderr(), "ingesting knowledge sources")
			res, err := eng.svc.Ingest(ctx, rebuild, progressPrinter)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Message)
			if len(res.Sources) > 0 {
				fmt.Fprintf(out, "sources: %s\n", strings.Join(res.Sources, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Reload all sources and replace both stores")

	return cmd
}
