// Package api is the thin HTTP veneer over the orchestrator.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mixelka/provisor/internal/config"
	"github.com/mixelka/provisor/internal/orchestrator"
)

// Server wires the admin API routes
type Server struct {
	orch     *orchestrator.Orchestrator
	cfg      *config.Config
	settings *config.Settings
	logger   *slog.Logger
}

// NewServer creates the API server
func NewServer(orch *orchestrator.Orchestrator, cfg *config.Config, settings *config.Settings, logger *slog.Logger) *Server {
	return &Server{
		orch:     orch,
		cfg:      cfg,
		settings: settings,
		logger:   logger.With("component", "api"),
	}
}

// Router builds the route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Post("/api/login", s.handleLogin)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/accounts", s.handleCreate)
		r.Get("/accounts", s.handleList)
		r.Get("/accounts/export", s.handleExport)
		r.Post("/accounts/refresh-all", s.handleRefreshAll)
		r.Post("/accounts/stop-all", s.handleStopAll)
		r.Delete("/accounts/{email}", s.handleDelete)
		r.Post("/accounts/{email}/refresh", s.handleRefresh)
		r.Post("/accounts/{email}/retry", s.handleRetry)
		r.Post("/accounts/{email}/stop", s.handleStop)

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleUpdateSettings)

		r.Get("/email-configs", s.handleListProviders)
		r.Post("/email-configs", s.handleAddProvider)
		r.Put("/email-configs/{index}", s.handleUpdateProvider)
		r.Delete("/email-configs/{index}", s.handleDeleteProvider)

		r.Get("/status", s.handleStatus)
	})

	return r
}

// requireAuth accepts HTTP basic credentials or the admin token as a
// bearer / X-API-Key header
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); ok {
			if equal(user, s.cfg.AdminUsername) && equal(pass, s.cfg.AdminPassword) {
				next.ServeHTTP(w, r)
				return
			}
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.Header.Get("X-API-Key")
		}
		if s.cfg.AdminToken != "" && equal(token, s.cfg.AdminToken) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="Admin Area"`)
		s.writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "authentication required",
		})
	})
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps the orchestrator's error taxonomy onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrCapacityExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrNotFound), errors.Is(err, config.ErrProviderIndex):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidState):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
