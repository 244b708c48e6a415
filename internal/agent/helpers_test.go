package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/flemzord/deskclaw/internal/approval"
	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/provider/providertest"
	"github.com/flemzord/deskclaw/internal/session"
	"github.com/flemzord/deskclaw/internal/tool"
)

// fixedConfirmer answers every confirmation with the same decision.
type fixedConfirmer struct {
	decision approval.Decision
	calls    int
}

func (f *fixedConfirmer) Await(context.Context, string, string, json.RawMessage, time.Duration) approval.Decision {
	f.calls++
	return f.decision
}

type harness struct {
	provider *providertest.MockProvider
	registry *tool.Registry
	store    *session.MemoryStore
	orch     *Orchestrator
}

func newHarness(t *testing.T, confirmer Confirmer, cfg Config, responses []provider.CompletionResponse, tools ...tool.Tool) *harness {
	t.Helper()

	reg := tool.NewRegistry()
	reg.MustRegister(tools...)

	p := &providertest.MockProvider{CompleteFunc: providertest.Sequence(responses...)}
	store := session.NewMemoryStore(session.Defaults{WorkingDir: "/sandbox", AllowedRoots: []string{"/sandbox"}})

	exec := NewExecutor(ExecutorConfig{Registry: reg, Confirmer: confirmer, MaxParallel: cfg.MaxParallelTools})
	orch := NewOrchestrator(OrchestratorConfig{
		Provider: p,
		Registry: reg,
		Sessions: store,
		Executor: exec,
		Config:   cfg,
	})
	return &harness{provider: p, registry: reg, store: store, orch: orch}
}

func text(content string) provider.CompletionResponse {
	return provider.CompletionResponse{
		Content:      content,
		FinishReason: provider.FinishReasonStop,
		Usage:        provider.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func calls(tcs ...provider.ToolCall) provider.CompletionResponse {
	return provider.CompletionResponse{
		ToolCalls:    tcs,
		FinishReason: provider.FinishReasonToolUse,
		Usage:        provider.TokenUsage{PromptTokens: 20, CompletionTokens: 2, TotalTokens: 22},
	}
}

func call(id, name, args string) provider.ToolCall {
	return provider.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// toolMessagesOf returns the tool messages of the request at index i.
func toolMessagesOf(t *testing.T, p *providertest.MockProvider, i int) []provider.LLMMessage {
	t.Helper()
	if len(p.Requests) <= i {
		t.Fatalf("provider got %d requests, want > %d", len(p.Requests), i)
	}
	var out []provider.LLMMessage
	for _, m := range p.Requests[i].Messages {
		if m.Role == provider.MessageRoleTool {
			out = append(out, m)
		}
	}
	return out
}

func decode(t *testing.T, content string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		t.Fatalf("tool message is not JSON: %v (%s)", err, content)
	}
	return m
}
