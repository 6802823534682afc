package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/54b3r/tubeqa-go/internal/logging"
)

// NewVideosCmd constructs the `tubeqa videos` command, which lists every
// known video with its processing status.
func NewVideosCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List indexed videos and their processing status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, _, err := openStore(logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("videos: %w", err)
			}
			defer db.Close()

			videos, err := db.ListVideos(ctx)
			if err != nil {
				return fmt.Errorf("videos: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(videos)
			}
			if len(videos) == 0 {
				fmt.Fprintln(out, "no videos indexed yet; run 'tubeqa index'")
				return nil
			}

			rows := make([][]string, 0, len(videos))
			for _, v := range videos {
				rows = append(rows, []string{
					v.YouTubeID,
					v.Title,
					string(v.Status),
					strconv.Itoa(v.ChunkCount),
					v.UpdatedAt.Local().Format("2006-01-02 15:04"),
					v.LastError,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{title: "ID"},
				{title: "Title", maxWidth: 40},
				{title: "Status"},
				{title: "Chunks", right: true},
				{title: "Updated"},
				{title: "Error", maxWidth: 40},
			}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the list as JSON")

	return cmd
}
