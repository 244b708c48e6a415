package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status           string `json:"status"` // "ok" or "degraded"
	Sessions         int    `json:"sessions"`
	PendingApprovals int    `json:"pending_approvals"`
	Uptime           int64  `json:"uptime"` // seconds
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 503 when the session store cannot be read.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: int64(g.now().Sub(g.startedAt) / time.Second),
		}

		if g.deps.Sessions != nil {
			n, err := g.deps.Sessions.Len(r.Context())
			if err != nil {
				g.logger.Warn("health: session count failed", "error", err)
				resp.Status = "degraded"
			}
			resp.Sessions = n
		}
		if g.deps.Approvals != nil {
			resp.PendingApprovals = g.deps.Approvals.Len()
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
