// Package api provides the HTTP surface of the sync server: health and
// readiness probes, version info, and a status view of the job table.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pigeonpool/pigeonpool-sync-server/internal/scheduler"
	"github.com/pigeonpool/pigeonpool-sync-server/internal/store"
	"github.com/pigeonpool/pigeonpool-sync-server/pkg/versions"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// Deps carries the collaborators the handlers read from.
type Deps struct {
	Pool     *pgxpool.Pool
	Store    *store.Store
	Ledger   scheduler.JobLedger
	JobNames []string
}

// NewServer creates and configures the HTTP router
func NewServer(deps Deps, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	routes := &routes{deps: deps}

	r.Get("/health", healthHandler)
	r.Get("/readiness", routes.readinessHandler)
	r.Get("/version", versionHandler)
	r.Get("/status", routes.statusHandler)

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// JobStatus is one row of the status view.
type JobStatus struct {
	Name      string     `json:"name"`
	LastRunAt *time.Time `json:"last_run_at"`
}

// StatusResponse reports the pool's scheduling state.
type StatusResponse struct {
	CurrentWeek  *int32      `json:"current_week"`
	UpcomingWeek *int32      `json:"upcoming_week"`
	Jobs         []JobStatus `json:"jobs"`
}

type routes struct {
	deps Deps
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler reports ready only when the database answers.
func (rr *routes) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if err := rr.deps.Pool.Ping(r.Context()); err != nil {
		writeError(w, "database not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	response := map[string]string{
		"version":    info.Version,
		"commit":     info.Commit,
		"build_date": info.BuildDate,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode version info", "error", err)
	}
}

func (rr *routes) statusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current, err := rr.deps.Store.CurrentWeek(ctx)
	if err != nil {
		slog.Error("failed to resolve current week", "error", err)
		writeError(w, "failed to read pool state", http.StatusInternalServerError)
		return
	}
	upcoming, err := rr.deps.Store.UpcomingWeek(ctx)
	if err != nil {
		slog.Error("failed to resolve upcoming week", "error", err)
		writeError(w, "failed to read pool state", http.StatusInternalServerError)
		return
	}

	jobs := make([]JobStatus, 0, len(rr.deps.JobNames))
	for _, name := range rr.deps.JobNames {
		lastRun, err := rr.deps.Ledger.LastRun(ctx, name)
		if err != nil {
			slog.Error("failed to read run ledger", "job", name, "error", err)
			writeError(w, "failed to read run ledger", http.StatusInternalServerError)
			return
		}
		jobs = append(jobs, JobStatus{Name: name, LastRunAt: lastRun})
	}

	response := StatusResponse{
		CurrentWeek:  current,
		UpcomingWeek: upcoming,
		Jobs:         jobs,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode status response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
