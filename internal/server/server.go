package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/healthcheck"
	"github.com/hazz-dev/healthgate/internal/storage"
	"github.com/hazz-dev/healthgate/internal/task"
)

// HistoryStore defines the storage queries the server needs. It may be nil
// when history is disabled.
type HistoryStore interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.Run, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	hc     *healthcheck.HealthCheck
	cfg    *config.Config
	store  HistoryStore
	router chi.Router
	logger *slog.Logger
}

// New creates a new Server and registers all routes. Pass nil logger to use
// the default logger.
func New(hc *healthcheck.HealthCheck, cfg *config.Config, store HistoryStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hc:     hc,
		cfg:    cfg,
		store:  store,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/healthcheck/internal", s.handleGetInternal)
	r.Post("/api/healthcheck/internal", s.handleRunInternal)
	r.Get("/api/healthcheck/config", s.handleGetConfig)
	r.Get("/api/healthcheck/history", s.handleGetHistory)
}

// --- Response helpers ---

type tasksResponse struct {
	Message string      `json:"message"`
	Tasks   []task.Info `json:"tasks"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// names parses the comma-separated name query parameter.
func names(r *http.Request) []string {
	raw := r.URL.Query().Get("name")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- Handlers ---

// handleGetInternal returns current task snapshots without forcing
// execution.
func (s *Server) handleGetInternal(w http.ResponseWriter, r *http.Request) {
	snap, err := s.hc.Fetch(names(r)...)
	if err != nil {
		var unknown *task.UnknownTaskError
		if errors.As(err, &unknown) {
			writeError(w, http.StatusBadRequest, "Invalid tasks: "+unknown.Name)
			return
		}
		s.logger.Error("fetching healthcheck tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "Error getting the internal healthcheck tasks: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasksResponse{
		Message: "All healthcheck tasks are returned.",
		Tasks:   snap.Checks,
	})
}

// handleRunInternal executes the named (or all) tasks and returns the
// executed subset's fresh results. The stream carries the merged state.
func (s *Server) handleRunInternal(w http.ResponseWriter, r *http.Request) {
	snap, err := s.hc.Run(r.Context(), names(r)...)
	if err != nil {
		var unknown *task.UnknownTaskError
		if errors.As(err, &unknown) {
			writeError(w, http.StatusBadRequest, "Invalid tasks: "+unknown.Name)
			return
		}
		s.logger.Error("running healthcheck tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "Error running the internal healthcheck tasks: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasksResponse{
		Message: "All healthcheck tasks are returned.",
		Tasks:   snap.Checks,
	})
}

type configResponse struct {
	Enabled          bool     `json:"enabled"`
	ChecksEnabled    []string `json:"checks_enabled"`
	ScheduleInterval string   `json:"schedule_interval"`
	RetriesDelay     string   `json:"retries_delay"`
	MaxRetries       int      `json:"max_retries"`
}

// handleGetConfig returns the effective configuration for client polling
// setup.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	hc := s.cfg.HealthCheck
	writeJSON(w, http.StatusOK, configResponse{
		Enabled:          hc.Enabled,
		ChecksEnabled:    hc.ChecksEnabled,
		ScheduleInterval: hc.ScheduleInterval.Duration.String(),
		RetriesDelay:     hc.RetriesDelay.Duration.String(),
		MaxRetries:       hc.MaxRetries,
	})
}

type historyResponse struct {
	Runs []storage.Run `json:"runs"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}

	const maxLimit = 100
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}

	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("querying run history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Runs: runs})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
