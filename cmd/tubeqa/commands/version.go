package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/tubeqa-go/internal/version"
)

// NewVersionCmd constructs the `tubeqa version` subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tubeqa version, git commit, and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tubeqa %s\n", version.String())
		},
	}
}
