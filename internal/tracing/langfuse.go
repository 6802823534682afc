// Package tracing wires optional Langfuse tracing into every chat model call.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/tubeqa-go/internal/version"
)

// Config holds the Langfuse connection settings.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY, and
// LANGFUSE_SECRET_KEY. Host defaults to http://localhost:3000.
func ConfigFromEnv() Config {
	c := Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if c.Host == "" {
		c.Host = "http://localhost:3000"
	}
	return c
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup registers a global Langfuse callback handler when cfg is enabled and
// returns a flush function that must run before process exit. When tracing
// is disabled the returned func is a no-op.
func Setup(cfg Config, log *slog.Logger) func() {
	if !cfg.Enabled() {
		log.Debug("tracing: langfuse disabled")
		return func() {}
	}
	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "tubeqa",
		Release:   version.Version,
	})
	callbacks.AppendGlobalHandlers(handler)
	log.Info("tracing: langfuse enabled", slog.String("host", cfg.Host))
	return flush
}
