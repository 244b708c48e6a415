// Package bot is the chat front end: it admits inbound updates, routes
// commands, runs conversation turns one at a time per principal and sends
// the replies back through the transport. Approval button presses bypass
// the per-principal lane and go straight to the confirmation gate, since
// the turn holding the lane is the one waiting on them.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/deskclaw/internal/agent"
	"github.com/flemzord/deskclaw/internal/approval"
	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/quota"
	"github.com/flemzord/deskclaw/internal/sandbox"
	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/session"
	"github.com/flemzord/deskclaw/internal/telemetry"
)

const (
	defaultInboxSize      = 256
	defaultMaxMessageSize = security.MaxInboundBytes
	callbackTimeout       = 10 * time.Second
)

// Callback answers shown to the principal.
const (
	answerApproved = "✅ Approved"
	answerRejected = "❌ Rejected"
	answerExpired  = "This request has expired or was already handled."
)

// Conversation runs one turn. *agent.Orchestrator implements it.
type Conversation interface {
	Converse(ctx context.Context, principal, text string) (agent.Reply, error)
	ModelName() string
}

// Resolver delivers a decision to a pending confirmation. *approval.Gate
// implements it.
type Resolver interface {
	Resolve(id string, d approval.Decision) bool
}

// Config holds the collaborators of a Bot.
type Config struct {
	Transport Transport
	Agent     Conversation
	Approvals Resolver
	Sessions  session.Store
	Policy    *sandbox.Policy
	Quota     *quota.Tracker
	Lanes     *session.LaneLock
	AllowList *AllowList

	// Tools is the catalogue shown by /help.
	Tools []provider.ToolDefinition

	Workers        int
	InboxSize      int
	MaxMessageSize int

	// BacklogSize bounds the messages a principal may have queued or
	// running. Further messages are dropped until the backlog drains.
	BacklogSize int

	Logger  *slog.Logger
	Audit   *security.AuditLogger
	Metrics *telemetry.Metrics
}

// withDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.Lanes == nil {
		c.Lanes = session.NewLaneLock()
	}
	if c.Policy == nil {
		c.Policy = sandbox.MustPolicy()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Bot dispatches inbound updates to a worker pool.
type Bot struct {
	config   Config
	inbox    chan Update
	inboxMu  sync.RWMutex
	pool     *WorkerPool
	backlog  *backlog
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  atomic.Bool
	logger   *slog.Logger
}

// New creates a Bot.
func New(cfg Config) (*Bot, error) {
	cfg = cfg.withDefaults()

	switch {
	case cfg.Transport == nil:
		return nil, missing("transport")
	case cfg.Agent == nil:
		return nil, missing("agent")
	case cfg.Approvals == nil:
		return nil, missing("approvals")
	case cfg.Sessions == nil:
		return nil, missing("sessions")
	case cfg.Quota == nil:
		return nil, missing("quota")
	}

	return &Bot{
		config:  cfg,
		inbox:   make(chan Update, cfg.InboxSize),
		pool:    NewWorkerPool(cfg.Workers),
		backlog: newBacklog(cfg.BacklogSize),
		logger:  cfg.Logger,
	}, nil
}

// Lanes returns the per-principal lock, for maintenance jobs.
func (b *Bot) Lanes() *session.LaneLock { return b.config.Lanes }

// Start launches the worker pool.
func (b *Bot) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.inboxMu.Lock()
	if b.stopped.Load() {
		b.inboxMu.Unlock()
		cancel()
		b.logger.Warn("bot: start ignored, bot already stopped")
		return
	}
	b.cancel = cancel
	b.inboxMu.Unlock()

	b.pool.Start(ctx, b.inbox, b.dispatch)
	b.logger.Info("bot: started", "workers", b.pool.Size(), "allowed_users", b.config.AllowList.Len())
}

// Submit admits an update. Button presses are resolved synchronously;
// messages are queued for a worker. If the inbox is full the message is
// dropped.
func (b *Bot) Submit(ctx context.Context, u Update) error {
	b.inboxMu.RLock()
	defer b.inboxMu.RUnlock()

	if b.stopped.Load() {
		return ErrBotStopped
	}

	if !b.config.AllowList.IsAllowed(u.Principal) {
		b.logger.Warn("bot: update from unknown principal ignored", "principal", u.Principal)
		b.config.Audit.Log(security.AuditEvent{
			Type:      security.EventAuthFailure,
			Principal: u.Principal,
			ChatID:    u.ChatID,
		})
		if u.IsCallback() {
			b.answerCallback(ctx, u, "Access denied.")
		}
		return ErrNotAllowed
	}

	if u.IsCallback() {
		b.resolveCallback(ctx, u)
		return nil
	}

	if err := security.CheckInbound(u.Text, b.config.MaxMessageSize); err != nil {
		b.logger.Warn("bot: inbound message rejected", "principal", u.Principal, "size", len(u.Text), "error", err)
		return err
	}

	select {
	case b.inbox <- u:
		return nil
	default:
		b.logger.Warn("bot: inbox full, message dropped", "principal", u.Principal)
		return ErrInboxFull
	}
}

// resolveCallback hands an approve/reject press to the gate. A token whose
// id was not issued for this principal is treated as expired.
func (b *Bot) resolveCallback(ctx context.Context, u Update) {
	id, approve, ok := approval.ParseToken(u.CallbackData)
	if !ok {
		b.logger.Debug("bot: ignoring unknown callback", "data", u.CallbackData)
		b.answerCallback(ctx, u, "")
		return
	}

	decision, answer := approval.Reject("rejected by user"), answerRejected
	if approve {
		decision, answer = approval.Approve(), answerApproved
	}

	resolved := strings.HasPrefix(id, u.Principal+"_") && b.config.Approvals.Resolve(id, decision)
	if !resolved {
		b.logger.Info("bot: approval not found or already resolved", "id", id, "principal", u.Principal)
		answer = answerExpired
	}

	b.answerCallback(ctx, u, answer)
	if u.MessageID != 0 {
		cctx, cancel := context.WithTimeout(ctx, callbackTimeout)
		defer cancel()
		if err := b.config.Transport.ClearButtons(cctx, u.ChatID, u.MessageID); err != nil {
			b.logger.Debug("bot: removing buttons failed", "error", err)
		}
	}
}

func (b *Bot) answerCallback(ctx context.Context, u Update, text string) {
	ctx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()
	if err := b.config.Transport.AnswerCallback(ctx, u.CallbackID, text); err != nil {
		b.logger.Debug("bot: answering callback failed", "error", err)
	}
}

// Stop closes the inbox, cancels in-flight turns and waits for the workers.
func (b *Bot) Stop(_ context.Context) {
	b.stopOnce.Do(func() {
		b.logger.Info("bot: stopping")

		b.inboxMu.Lock()
		b.stopped.Store(true)
		close(b.inbox)
		cancel := b.cancel
		b.inboxMu.Unlock()

		if cancel != nil {
			cancel()
		}

		b.pool.Wait()
		b.logger.Info("bot: stopped")
	})
}

func missing(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingDependency, name)
}
