package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mixelka/provisor/internal/config"
	"github.com/mixelka/provisor/pkg/models"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	if !equal(body.Username, s.cfg.AdminUsername) || !equal(body.Password, s.cfg.AdminPassword) {
		s.writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "invalid username or password",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   uuid.NewString(),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	// Empty body means a generated mailbox name
	_ = decodeBody(r, &body)

	email, err := s.orch.Create(r.Context(), body.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"email":   email,
		"message": "account creation started",
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if email := q.Get("email"); email != "" {
		account, err := s.orch.Get(email)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "account": account})
		return
	}

	page := intParam(q.Get("page"), 1)
	perPage := intParam(q.Get("per_page"), 20)
	accounts, total, stats := s.orch.List(q.Get("status"), q.Get("search"), page, perPage)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"accounts":    accounts,
		"total":       total,
		"page":        page,
		"per_page":    perPage,
		"total_pages": (total + perPage - 1) / perPage,
		"stats":       stats,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Delete(chi.URLParam(r, "email")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "account deleted"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := s.orch.Refresh(email); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"email":   email,
		"message": "refresh started",
	})
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	started, queued, err := s.orch.RefreshAll()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"started": started,
		"queued":  queued,
	})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Retry(chi.URLParam(r, "email")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "retry started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Stop(chi.URLParam(r, "email")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "stopped"})
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	stopped := s.orch.StopAll()
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "stopped": stopped})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"accounts": s.orch.Export()})
}

type maskedProvider struct {
	WorkerDomain  string `json:"worker_domain"`
	EmailDomain   string `json:"email_domain"`
	AdminPassword string `json:"admin_password"`
}

func (s *Server) maskedProviders() []maskedProvider {
	providers := s.settings.Providers()
	out := make([]maskedProvider, 0, len(providers))
	for _, p := range providers {
		out = append(out, maskedProvider{
			WorkerDomain:  p.WorkerDomain,
			EmailDomain:   p.MailDomain,
			AdminPassword: "***",
		})
	}
	return out
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"settings": map[string]any{
			"user_agent":          s.settings.UserAgent(),
			"max_workers":         s.settings.MaxWorkers(),
			"headless":            s.settings.Headless(),
			"email_configs":       s.maskedProviders(),
			"browser_fingerprint": s.settings.Fingerprint(),
		},
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserAgent   *string             `json:"user_agent"`
		MaxWorkers  *int                `json:"max_workers"`
		Headless    *bool               `json:"headless"`
		Fingerprint *config.Fingerprint `json:"browser_fingerprint"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	if body.UserAgent != nil {
		s.settings.SetUserAgent(*body.UserAgent)
	}
	if body.MaxWorkers != nil {
		s.settings.SetMaxWorkers(*body.MaxWorkers)
	}
	if body.Headless != nil {
		s.settings.SetHeadless(*body.Headless)
	}
	if body.Fingerprint != nil {
		s.settings.SetFingerprint(*body.Fingerprint)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "settings updated"})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"configs": s.maskedProviders(),
	})
}

type providerBody struct {
	WorkerDomain  string `json:"worker_domain"`
	EmailDomain   string `json:"email_domain"`
	AdminPassword string `json:"admin_password"`
}

func (b providerBody) toProvider() models.Provider {
	return models.Provider{
		WorkerDomain: b.WorkerDomain,
		MailDomain:   b.EmailDomain,
		AdminSecret:  b.AdminPassword,
	}
}

func (s *Server) handleAddProvider(w http.ResponseWriter, r *http.Request) {
	var body providerBody
	if err := decodeBody(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if body.WorkerDomain == "" || body.EmailDomain == "" || body.AdminPassword == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "worker_domain, email_domain and admin_password are required",
		})
		return
	}

	s.settings.AddProvider(body.toProvider())
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "provider added"})
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid index"})
		return
	}

	var body providerBody
	if err := decodeBody(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	if err := s.settings.UpdateProvider(index, body.toProvider()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "provider updated"})
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid index"})
		return
	}

	if err := s.settings.DeleteProvider(index); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "provider deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  s.orch.GetStatus(),
	})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
