package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/supportrag-go/internal/logging"
)

// NewAddFAQCmd constructs the `supportrag add-faq` command, which appends
// one FAQ to the live FAQ store.
func NewAddFAQCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:     "add-faq [question] [answer]",
		Short:   "Add one FAQ to the FAQ store without a rebuild",
		Example: `  supportrag add-faq "Do you ship internationally?" "Yes, to over 40 countries." --category Shipping`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			eng, err := buildEngine(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("add-faq: %w", err)
			}
			defer func() { _ = eng.Close() }()

			rec, err := eng.svc.AddFAQ(ctx, args[0], args[1], category)
			if err != nil {
				return fmt.Errorf("add-faq: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", rec.ID, rec.Category)
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "FAQ category (default: General)")

	return cmd
}
