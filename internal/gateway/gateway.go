// Package gateway provides the HTTP surface for monitoring and
// administration: health, Prometheus metrics and a bearer-protected session
// API. It binds to whatever gateway.bind names; loopback is recommended.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/session"
	"github.com/flemzord/deskclaw/internal/telemetry"
)

// PendingCounter reports how many confirmations are waiting.
type PendingCounter interface {
	Len() int
}

// Deps are the components the gateway reports on.
type Deps struct {
	Sessions  session.Store
	Approvals PendingCounter
	Metrics   *telemetry.Metrics
	Audit     *security.AuditLogger
	Logger    *slog.Logger
}

// Gateway is the HTTP gateway.
type Gateway struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	now       func() time.Time
}

// New creates a Gateway. Call Start to listen.
func New(cfg Config, deps Deps) *Gateway {
	cfg.Defaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:    cfg,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Handler returns the routed handler without starting a server.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured address and serves in the background.
// The returned error covers bind failures only.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.config.Enabled() {
		return errors.New("gateway: bind address is empty")
	}

	g.startedAt = g.now()
	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadTimeout:       g.config.ReadTimeout,
		ReadHeaderTimeout: g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
