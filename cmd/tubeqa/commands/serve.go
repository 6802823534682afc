package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/tubeqa-go/internal/logging"
	"github.com/54b3r/tubeqa-go/internal/server"
	"github.com/54b3r/tubeqa-go/internal/tracing"
)

// NewServeCmd constructs the `tubeqa serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tubeqa HTTP API server",
		Long: `Start the tubeqa HTTP API server.

Endpoints:
  POST /api/query    {"question": "..."} answers with source citations
  GET  /api/videos   indexed videos and their status
  GET  /api/queries  recently answered questions
  GET  /api/health   liveness
  GET  /api/ready    dependency readiness (store, vector backend, LLM)
  GET  /metrics      Prometheus metrics

Set TUBEQA_API_KEY to require "Authorization: Bearer <key>" on /api routes.

Examples:
  tubeqa serve
  tubeqa serve --port 9090
  MODEL_PROVIDER=azure tubeqa serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			log.Info("serve starting", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

			// Langfuse tracing is opt-in; Setup is a no-op without keys.
			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.Close()

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("TUBEQA_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("TUBEQA_PORT", port)
			}
			rateLimit, err := rateLimitFromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(st.agent, st.db, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   st.pingers,
				RateLimit: rateLimit,
				APIKey:    os.Getenv("TUBEQA_API_KEY"),
				History:   st.db,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env TUBEQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env TUBEQA_PORT)")

	return cmd
}

// rateLimitFromEnv reads TUBEQA_RATE_LIMIT (requests/second per IP).
// Zero selects the server default.
func rateLimitFromEnv() (float64, error) {
	v := os.Getenv("TUBEQA_RATE_LIMIT")
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("TUBEQA_RATE_LIMIT %q must be a non-negative number", v)
	}
	return f, nil
}
