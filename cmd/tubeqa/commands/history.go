package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/54b3r/tubeqa-go/internal/logging"
)

// NewHistoryCmd constructs the `tubeqa history` command, which lists the
// most recently answered questions.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if limit <= 0 {
				return fmt.Errorf("history: --limit must be positive")
			}

			db, _, err := openStore(logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer db.Close()

			recs, err := db.RecentQueries(ctx, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			rows := make([][]string, 0, len(recs))
			for _, r := range recs {
				rows = append(rows, []string{
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Question,
					strconv.Itoa(r.Confidence) + "%",
					strconv.FormatInt(r.ResponseTimeMs, 10) + "ms",
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
				{title: "When"},
				{title: "Question", maxWidth: 60},
				{title: "Confidence", right: true},
				{title: "Took", right: true},
			}, rows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of questions to show")

	return cmd
}
