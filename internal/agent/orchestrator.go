package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/session"
	"github.com/flemzord/deskclaw/internal/telemetry"
	"github.com/flemzord/deskclaw/internal/tool"
)

// Sentinel errors for turn-level failures.
var (
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")
	ErrLoopDetected         = errors.New("agent: loop detected")
)

// OrchestratorConfig holds the collaborators of an Orchestrator.
type OrchestratorConfig struct {
	Provider provider.Provider
	Registry *tool.Registry
	Sessions session.Store
	Executor *Executor
	Config   Config
	Logger   *slog.Logger
	Audit    *security.AuditLogger
	Metrics  *telemetry.Metrics
}

// Orchestrator runs conversation turns. It holds no per-turn state and is
// safe for concurrent use; callers serialize turns per principal.
type Orchestrator struct {
	provider provider.Provider
	registry *tool.Registry
	sessions session.Store
	executor *Executor
	config   Config
	logger   *slog.Logger
	audit    *security.AuditLogger
	metrics  *telemetry.Metrics
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		provider: cfg.Provider,
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		executor: cfg.Executor,
		config:   cfg.Config.withDefaults(),
		logger:   cfg.Logger,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.executor == nil {
		o.executor = NewExecutor(ExecutorConfig{
			Registry: cfg.Registry,
			Logger:   o.logger,
			Audit:    cfg.Audit,
			Metrics:  cfg.Metrics,
		})
	}
	return o
}

// ModelName returns the provider's model identifier.
func (o *Orchestrator) ModelName() string { return o.provider.ModelName() }

// Converse runs one turn for principal. The session history is replaced
// only when the turn succeeds.
func (o *Orchestrator) Converse(ctx context.Context, principal, text string) (reply Reply, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.TurnTimeout)
	defer cancel()

	ctx, span := telemetry.Tracer("agent").Start(ctx, "agent.converse")
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, ErrMaxIterationsReached):
			outcome = "max_iterations"
		case errors.Is(err, ErrLoopDetected):
			outcome = "loop_detected"
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		case err != nil:
			outcome = "error"
		}
		span.SetAttributes(
			attribute.String("outcome", outcome),
			attribute.Int("iterations", reply.Iterations),
			attribute.Int("tool_calls", len(reply.ToolCalls)),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil && len(reply.Attachments) > 0 {
			o.logger.Warn("agent: turn failed, attachments not delivered",
				"principal", principal,
				"attachments", attachmentNames(reply.Attachments),
				"error", err)
		}
		o.metrics.ObserveTurn(outcome, time.Since(start))
		o.metrics.AddTokens(reply.Usage.TotalTokens)
	}()

	sess, err := o.sessions.Get(ctx, principal)
	if err != nil {
		return Reply{}, fmt.Errorf("agent: loading session: %w", err)
	}
	env := tool.Env{Principal: principal, Scope: sess.Scope()}

	o.audit.Log(security.AuditEvent{Type: security.EventMessage, Principal: principal, Detail: text})

	userMsg := provider.LLMMessage{Role: provider.MessageRoleUser, Content: text}
	messages := append(append(make([]provider.LLMMessage, 0, len(sess.History)+8), sess.History...), userMsg)
	turnStart := len(sess.History)

	detector := newLoopDetector(o.config.LoopThreshold)
	defs := o.registry.Declarations()

	for i := 0; i < o.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			reply.Iterations = i
			return reply, err
		}

		resp, err := o.provider.Complete(ctx, provider.CompletionRequest{
			SystemPrompt: o.config.SystemPrompt,
			Messages:     messages,
			Tools:        defs,
			MaxTokens:    o.config.MaxOutputTokens,
			Temperature:  o.config.Temperature,
		})
		reply.Iterations = i + 1
		if err != nil {
			return reply, err
		}
		reply.Usage = reply.Usage.Add(resp.Usage)

		// No tool calls: the model is done.
		if len(resp.ToolCalls) == 0 {
			reply.Text = resp.Content
			messages = append(messages, provider.LLMMessage{
				Role:    provider.MessageRoleAssistant,
				Content: resp.Content,
			})
			o.persist(ctx, principal, messages, turnStart)
			o.logger.Info("agent: turn finished",
				"principal", principal,
				"iterations", reply.Iterations,
				"tool_calls", len(reply.ToolCalls),
				"tokens", reply.Usage.TotalTokens,
				"new_messages", len(messages)-turnStart)
			return reply, nil
		}

		// Check for loops before appending the assistant message so no
		// orphan tool request is left behind.
		if detector.recordAll(resp.ToolCalls) {
			return reply, ErrLoopDetected
		}

		messages = append(messages, provider.LLMMessage{
			Role:      provider.MessageRoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		records := o.executor.Execute(ctx, env, resp.ToolCalls)
		reply.ToolCalls = append(reply.ToolCalls, records...)
		for _, rec := range records {
			reply.Attachments = append(reply.Attachments, rec.Result.Attachments...)
		}
		messages = append(messages, toolMessages(records)...)
	}

	return reply, ErrMaxIterationsReached
}

func attachmentNames(atts []tool.Attachment) []string {
	names := make([]string, len(atts))
	for i, a := range atts {
		names[i] = a.Name
	}
	return names
}

func (o *Orchestrator) persist(ctx context.Context, principal string, messages []provider.LLMMessage, turnStart int) {
	history := trimHistory(messages, o.config.MaxHistory, turnStart)
	if _, err := o.sessions.Update(context.WithoutCancel(ctx), principal, session.Patch{History: &history}); err != nil {
		o.logger.Warn("agent: persisting history failed", "principal", principal, "error", err)
	}
}
