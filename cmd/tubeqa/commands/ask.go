package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/tubeqa-go/internal/agent"
	"github.com/54b3r/tubeqa-go/internal/logging"
)

// NewAskCmd constructs the `tubeqa ask` command, which answers a single
// question from the indexed transcripts and prints the cited sources.
func NewAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed videos",
		Long: `Ask a natural language question about the indexed video transcripts.

The answer is followed by a table of the cited videos and timestamps.

Examples:
  tubeqa ask "how do goroutines differ from threads?"
  tubeqa ask --json "what did the speaker say about error wrapping?"
  MODEL_PROVIDER=openai tubeqa ask "summarise the talk on generics"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()

			resp, err := st.agent.Answer(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(out, resp.Response)
			fmt.Fprintln(out)
			fmt.Fprintln(out, sourcesTable(resp))
			fmt.Fprintf(out, "confidence %d%%, answered in %dms\n", resp.Confidence, resp.ResponseTimeMs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")

	return cmd
}

// sourcesTable renders the citations of resp.
func sourcesTable(resp *agent.Response) string {
	rows := make([][]string, 0, len(resp.SourceContexts))
	for i, s := range resp.SourceContexts {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			s.VideoTitle,
			s.Timestamp,
			string(s.Relevance),
			strconv.Itoa(s.Confidence) + "%",
			s.YouTubeURL,
		})
	}
	return renderTable([]column{
		{title: "#", right: true},
		{title: "Video", maxWidth: 40},
		{title: "At", right: true},
		{title: "Relevance"},
		{title: "Confidence", right: true},
		{title: "Link"},
	}, rows)
}
