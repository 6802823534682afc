// Package server implements the HTTP API that exposes the question-answering
// agent. The server is started by the `tubeqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/tubeqa-go/internal/agent"
	"github.com/54b3r/tubeqa-go/internal/logging"
)

const (
	// maxQueryBody bounds the POST /api/query request body.
	maxQueryBody = 64 << 10
	// defaultQueriesLimit is the GET /api/queries page size when unspecified.
	defaultQueriesLimit = 20
	// maxQueriesLimit caps the ?limit parameter of GET /api/queries.
	maxQueriesLimit = 200
)

// New constructs a Server from the provided answerer, video lister and config.
func New(a Answerer, videos VideoLister, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: answerer must not be nil")
	}
	if videos == nil {
		return nil, fmt.Errorf("server: video lister must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast a slow completion call.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		answerer: a,
		videos:   videos,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: TUBEQA_API_KEY is not set, /api routes are unauthenticated")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	rl.onReject = s.metrics.rateLimited.Inc
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the request multiplexer. Health, readiness and metrics stay
// unauthenticated so probes and scrapers work without the API key.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	protect := func(h http.Handler) http.Handler { return authMiddleware(s.cfg.APIKey, h) }

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", protect(rl.middleware(http.HandlerFunc(s.handleQuery))))
	mux.Handle("GET /api/videos", protect(http.HandlerFunc(s.handleVideos)))
	if s.cfg.History != nil {
		mux.Handle("GET /api/queries", protect(http.HandlerFunc(s.handleQueries)))
	}
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return requestLogger(s.log, s.instrument(mux))
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. It answers the question synchronously
// and returns the composed response as JSON.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.answerer.Answer(r.Context(), req.Question)
	switch {
	case errors.Is(err, agent.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "question is required")
		return
	case err != nil:
		s.metrics.observeQuery(outcomeError, time.Since(start))
		log.Error("query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, agent.ErrCompletionFailed.Error())
		return
	}

	outcome := outcomeOK
	if resp.Fallback {
		outcome = outcomeFallback
	}
	s.metrics.observeQuery(outcome, time.Since(start))
	s.metrics.querySources.Observe(float64(len(resp.SourceContexts)))

	writeJSON(w, http.StatusOK, resp)
}

// handleVideos handles GET /api/videos.
func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.videos.ListVideos(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("list videos failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	writeJSON(w, http.StatusOK, videosResponse{Videos: videos})
}

// handleQueries handles GET /api/queries?limit=N.
func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	limit := defaultQueriesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxQueriesLimit)
	}

	recs, err := s.cfg.History.RecentQueries(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("list queries failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list queries")
		return
	}
	writeJSON(w, http.StatusOK, queriesResponse{Queries: recs})
}

// writeJSON encodes body as the JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
