package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/tubeqa-go/internal/agent"
	"github.com/54b3r/tubeqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// POST /api/query (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// History backs GET /api/queries. If nil the route is not registered.
	History store.QueryLog
}

// Answerer is the interface handleQuery calls to answer a question.
// *agent.Agent satisfies it; tests inject a fake.
type Answerer interface {
	// Answer returns the composed response for question.
	Answer(ctx context.Context, question string) (*agent.Response, error)
}

// VideoLister lists the known videos for GET /api/videos.
// *store.SQLiteStore satisfies it.
type VideoLister interface {
	// ListVideos returns every video with its chunk count.
	ListVideos(ctx context.Context) ([]store.VideoSummary, error)
}

// Server is the HTTP server that exposes the question-answering agent.
type Server struct {
	// answerer handles POST /api/query.
	answerer Answerer
	// videos backs GET /api/videos.
	videos VideoLister
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// errorResponse is the JSON body of every handler error.
type errorResponse struct {
	// Error is the user-facing message.
	Error string `json:"error"`
}

// videosResponse is the JSON response for GET /api/videos.
type videosResponse struct {
	// Videos lists every known video in registration order.
	Videos []store.VideoSummary `json:"videos"`
}

// queriesResponse is the JSON response for GET /api/queries.
type queriesResponse struct {
	// Queries lists the most recent answered questions, newest first.
	Queries []store.QueryRecord `json:"queries"`
}

// healthResponse is the JSON response for GET /api/health.
type healthResponse struct {
	// Status is always "ok" while the process is serving.
	Status string `json:"status"`
	// Version is the build version string.
	Version string `json:"version"`
}
