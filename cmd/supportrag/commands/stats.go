package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/supportrag-go/internal/logging"
)

// NewStatsCmd constructs the `supportrag stats` command, which prints the
// query log summary and store sizes as JSON.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print query statistics and store sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			eng, err := buildEngine(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer func() { _ = eng.Close() }()

			st, err := eng.svc.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}
