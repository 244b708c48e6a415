package gateway

import (
	"net/http"
	"slices"
	"time"

	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/session"
	"github.com/go-chi/chi/v5"
)

// sessionJSON is a serializable session snapshot.
type sessionJSON struct {
	Principal    string `json:"principal"`
	WorkingDir   string `json:"cwd"`
	HistoryLen   int    `json:"history_len"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

// handleListSessions returns all sessions as JSON.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := []sessionJSON{}

		if g.deps.Sessions != nil {
			list, err := g.deps.Sessions.List(r.Context())
			if err != nil {
				g.logger.Error("gateway: list sessions failed", "error", err)
				http.Error(w, "failed to list sessions", http.StatusInternalServerError)
				return
			}
			for _, s := range list {
				sessions = append(sessions, sessionJSON{
					Principal:    s.Principal,
					WorkingDir:   s.WorkingDir,
					HistoryLen:   len(s.History),
					CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
					LastActivity: s.LastActivity.UTC().Format(time.RFC3339),
				})
			}
		}

		writeJSON(w, http.StatusOK, sessions)
	}
}

// handleClearHistory drops one principal's conversation history.
func (g *Gateway) handleClearHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := chi.URLParam(r, "principal")
		if principal == "" {
			http.Error(w, "missing principal", http.StatusBadRequest)
			return
		}
		if g.deps.Sessions == nil {
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}

		// ClearHistory would create a missing session; look first.
		list, err := g.deps.Sessions.List(r.Context())
		if err != nil {
			g.logger.Error("gateway: list sessions failed", "error", err)
			http.Error(w, "failed to list sessions", http.StatusInternalServerError)
			return
		}
		if !slices.ContainsFunc(list, func(s session.Session) bool { return s.Principal == principal }) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		if err := g.deps.Sessions.ClearHistory(r.Context(), principal); err != nil {
			g.logger.Error("gateway: clear history failed", "principal", principal, "error", err)
			http.Error(w, "failed to clear history", http.StatusInternalServerError)
			return
		}

		g.deps.Audit.Log(security.AuditEvent{
			Type:      security.EventSessionReset,
			Principal: principal,
			Detail:    "history cleared via gateway",
		})
		g.logger.Info("session history cleared via gateway", "principal", principal)
		w.WriteHeader(http.StatusNoContent)
	}
}
