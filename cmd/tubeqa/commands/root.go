// Package commands defines all Cobra CLI commands for the tubeqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/tubeqa-go/internal/audit"
	"github.com/54b3r/tubeqa-go/internal/config"
	"github.com/54b3r/tubeqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tubeqa",
		Short: "tubeqa answers questions about YouTube videos from their transcripts",
		Long: `tubeqa indexes YouTube video transcripts and answers natural language
questions about them, citing the videos and timestamps it drew from.

The completion backend is selected via MODEL_PROVIDER (or a YAML config
file, ~/.tubeqa/config.yaml). With MODEL_PROVIDER=none every question gets
a fixed fallback answer.
See 'tubeqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			boot := logging.New()

			// Environment always wins over YAML, YAML over .env.
			path, err := config.Load(configPath, boot)
			if err != nil {
				return err
			}
			if err := config.LoadDotEnv(envFile, boot); err != nil {
				return err
			}

			// Rebuild so LOG_LEVEL / LOG_FORMAT from YAML or .env apply.
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.tubeqa/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; missing files are ignored")

	root.AddCommand(
		NewAskCmd(),
		NewIndexCmd(),
		NewVideosCmd(),
		NewHistoryCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
