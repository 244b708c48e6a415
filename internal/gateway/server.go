package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.deps.Metrics != nil {
		r.Handle("/metrics", g.deps.Metrics.Handler())
	}

	// Session API. Not mounted without a bearer token.
	if g.config.BearerToken != "" {
		r.Route("/api", func(r chi.Router) {
			r.Use(authMiddleware(g.config.BearerToken, g.deps.Audit))
			r.Get("/sessions", g.handleListSessions())
			r.Delete("/sessions/{principal}/history", g.handleClearHistory())
		})
	}

	return r
}
