package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/deskclaw/internal/approval"
	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/telemetry"
	"github.com/flemzord/deskclaw/internal/tool"
)

// Confirmer asks the principal to approve one invocation.
// *approval.Gate implements it.
type Confirmer interface {
	Await(ctx context.Context, principal, toolName string, args json.RawMessage, timeout time.Duration) approval.Decision
}

// ExecutorConfig holds the dependencies for tool execution.
type ExecutorConfig struct {
	Registry        *tool.Registry
	Confirmer       Confirmer
	ApprovalTimeout time.Duration
	MaxParallel     int
	Logger          *slog.Logger
	Audit           *security.AuditLogger
	Metrics         *telemetry.Metrics
}

// Executor runs the tool calls of one round with bounded parallelism.
// Each call is validated against its schema, confirmed when privileged and
// guarded against panics; it always yields a Result.
type Executor struct {
	registry        *tool.Registry
	confirmer       Confirmer
	approvalTimeout time.Duration
	maxParallel     int
	logger          *slog.Logger
	audit           *security.AuditLogger
	metrics         *telemetry.Metrics
}

// NewExecutor creates an Executor from the given configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		registry:        cfg.Registry,
		confirmer:       cfg.Confirmer,
		approvalTimeout: cfg.ApprovalTimeout,
		maxParallel:     cfg.MaxParallel,
		logger:          cfg.Logger,
		audit:           cfg.Audit,
		metrics:         cfg.Metrics,
	}
	if e.maxParallel <= 0 {
		e.maxParallel = DefaultMaxParallelTools
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute runs all calls and returns records in input order.
func (e *Executor) Execute(ctx context.Context, env tool.Env, calls []provider.ToolCall) []ToolCallRecord {
	records := make([]ToolCallRecord, len(calls))

	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for i, call := range calls {
		g.Go(func() error {
			records[i] = e.executeSingle(ctx, env, call)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

func (e *Executor) executeSingle(ctx context.Context, env tool.Env, tc provider.ToolCall) (record ToolCallRecord) {
	record.ID = tc.ID
	record.Name = tc.Name
	record.Arguments = tc.Arguments

	ctx, span := telemetry.Tracer("agent").Start(ctx, "agent.tool")
	span.SetAttributes(attribute.String("tool", tc.Name))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("agent: tool panicked", "tool", tc.Name, "panic", r)
			record.Result = tool.Failure(tool.CodePanic, fmt.Sprintf("tool panicked: %v", r))
		}
		record.Duration = time.Since(start)

		outcome := record.Outcome()
		span.SetAttributes(attribute.String("outcome", outcome))
		if !record.Result.OK {
			span.SetStatus(codes.Error, record.Result.Message)
		}
		span.End()

		e.metrics.ObserveToolCall(tc.Name, outcome, record.Duration)
		if record.Result.Code == tool.CodeSandboxDenied {
			e.audit.Log(security.AuditEvent{
				Type:      security.EventSandboxDenied,
				Principal: env.Principal,
				ToolName:  tc.Name,
				Detail:    record.Result.Message,
			})
		}
		e.logger.Info("agent: tool call finished",
			"tool", tc.Name, "principal", env.Principal, "outcome", outcome, "duration", record.Duration)
	}()

	record.Result = e.run(ctx, env, tc)
	return record
}

func (e *Executor) run(ctx context.Context, env tool.Env, tc provider.ToolCall) tool.Result {
	t, ok := e.registry.Lookup(tc.Name)
	if !ok {
		return tool.Failure(tool.CodeNotFound, "tool not found: "+tc.Name)
	}

	if err := tool.ValidateArgs(t.Schema(), tc.Arguments); err != nil {
		return tool.Failure(tool.CodeInvalidArguments, err.Error())
	}

	if t.RequiresConfirmation() {
		if res, denied := e.confirm(ctx, env, tc); denied {
			return res
		}
	}

	res, err := e.registry.Invoke(ctx, tc.Name, tc.Arguments, env)
	if errors.Is(err, tool.ErrToolNotFound) {
		return tool.Failure(tool.CodeNotFound, "tool not found: "+tc.Name)
	}
	if err != nil {
		return tool.Failure(tool.CodeExecution, err.Error())
	}
	return res
}

// confirm returns a failure and true when the call may not proceed.
func (e *Executor) confirm(ctx context.Context, env tool.Env, tc provider.ToolCall) (tool.Result, bool) {
	if e.confirmer == nil {
		return tool.Failure(tool.CodeDenied, "denied: no confirmation channel"), true
	}

	d := e.confirmer.Await(ctx, env.Principal, tc.Name, tc.Arguments, e.approvalTimeout)
	e.metrics.ObserveApproval(string(d.Outcome))

	switch d.Outcome {
	case approval.OutcomeApproved:
		return tool.Result{}, false
	case approval.OutcomeTimedOut:
		return tool.Failure(tool.CodeTimeout, "approval timed out: denied"), true
	case approval.OutcomeRejected:
		if d.Reason != "" {
			return tool.Failure(tool.CodeDenied, "denied: "+d.Reason), true
		}
		return tool.Failure(tool.CodeDenied, "denied by user"), true
	default:
		return tool.Failure(tool.CodeDenied, "approval cancelled: denied"), true
	}
}
