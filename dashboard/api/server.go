// Package api serves the read-only trace and statistics endpoints consumed
// by the reliability dashboard. Settings are the only writable resource.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/PipeOpsHQ/airos/analytics"
	"github.com/PipeOpsHQ/airos/storage"
)

const (
	DefaultAddr   = "127.0.0.1:8000"
	DefaultOrigin = "http://localhost:3000"

	defaultTraceLimit = 100
	maxTraceLimit     = 1000
)

type Config struct {
	Addr           string
	Store          storage.Store
	AllowedOrigins []string
	// Window is the number of recent records behind the reliability score.
	Window int
	Logger *zerolog.Logger
}

type Server struct {
	cfg    Config
	logger zerolog.Logger
	router chi.Router
	http   *http.Server
	once   sync.Once
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{DefaultOrigin}
	}
	if cfg.Window <= 0 {
		cfg.Window = analytics.DefaultWindow
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	s := &Server{cfg: cfg, logger: logger.With().Str("component", "api").Logger()}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(s.router, "airos.api"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.router
}

func (s *Server) Addr() string { return s.cfg.Addr }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/traces", s.handleTraces)
		r.Get("/runs/{runID}/traces", s.handleRunTraces)
		r.Route("/stats", func(r chi.Router) {
			r.Get("/", s.handleStats)
			r.Get("/savings", s.handleSavings)
			r.Get("/reliability", s.handleReliability)
			r.Get("/root-causes", s.handleRootCauses)
		})
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})
	return r
}

// ListenAndServe blocks until ctx is done or the listener fails, then shuts
// the server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}
	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("dashboard api listening")

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown signal received, stopping")
		if err := s.Close(); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	var outErr error
	s.once.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outErr = s.http.Shutdown(shutdownCtx)
		if outErr != nil {
			s.logger.Warn().Err(outErr).Msg("http shutdown error")
		}
	})
	return outErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), defaultTraceLimit)
	if limit <= 0 {
		limit = defaultTraceLimit
	}
	if limit > maxTraceLimit {
		limit = maxTraceLimit
	}
	query := storage.ListQuery{
		RunID:  strings.TrimSpace(q.Get("run_id")),
		NodeID: strings.TrimSpace(q.Get("node_id")),
		Status: storage.Status(strings.TrimSpace(q.Get("status"))),
		Limit:  limit,
		Offset: parseInt(q.Get("offset"), 0),
	}
	if query.Status != "" && !query.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", query.Status))
		return
	}
	traces, err := s.cfg.Store.ListTraces(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(traces))
}

func (s *Server) handleRunTraces(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "runID"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("run id is required"))
		return
	}
	traces, err := s.cfg.Store.RunHistory(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(traces))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	traces, ok := s.traces(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analytics.CountStatuses(traces))
}

func (s *Server) handleSavings(w http.ResponseWriter, r *http.Request) {
	traces, ok := s.traces(w, r)
	if !ok {
		return
	}
	rates, err := analytics.LoadRates(r.Context(), s.cfg.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.ComputeSavings(traces, rates))
}

func (s *Server) handleReliability(w http.ResponseWriter, r *http.Request) {
	window := parseInt(r.URL.Query().Get("window"), s.cfg.Window)
	if window <= 0 {
		window = s.cfg.Window
	}
	traces, ok := s.traces(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analytics.Build(traces, analytics.Rates{}, window).Reliability)
}

func (s *Server) handleRootCauses(w http.ResponseWriter, r *http.Request) {
	traces, ok := s.traces(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analytics.RootCauses(traces))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := storage.EffectiveSettings(r.Context(), s.cfg.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePutSettings upserts every key in a flat JSON object. Numbers are
// stored in their literal form.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settings payload: %w", err))
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("settings payload is empty"))
		return
	}
	updates := make(map[string]string, len(body))
	for key, raw := range body {
		key = strings.TrimSpace(key)
		if key == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("setting key is required"))
			return
		}
		value, err := settingValue(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("setting %q: %w", key, err))
			return
		}
		updates[key] = value
	}
	for key, value := range updates {
		if err := s.cfg.Store.SetSetting(r.Context(), key, value); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.logger.Info().Int("count", len(updates)).Msg("settings updated")
	s.handleGetSettings(w, r)
}

func (s *Server) traces(w http.ResponseWriter, r *http.Request) ([]storage.Trace, bool) {
	traces, err := analytics.AllTraces(r.Context(), s.cfg.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return traces, true
}

func settingValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), nil
	}
	return "", fmt.Errorf("value must be a string or number")
}

func nonNil(traces []storage.Trace) []storage.Trace {
	if traces == nil {
		return []storage.Trace{}
	}
	return traces
}

func parseInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
