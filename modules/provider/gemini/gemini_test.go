package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"

	"github.com/flemzord/deskclaw/internal/provider"
)

type fakeGenerator struct {
	resp *genai.GenerateContentResponse
	err  error

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
		FinishReason: genai.FinishReasonStop,
	}}}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: textResponse("Hello!")}
	temp := 0.2
	g := newWithGenerator(Config{Temperature: &temp, MaxOutputTokens: 512}, gen, nil)

	resp, err := g.Complete(context.Background(), provider.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "Hi"}},
		Tools:        []provider.ToolDefinition{{Name: "read_file", Description: "read"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("content = %q", resp.Content)
	}

	if gen.model != defaultModel {
		t.Errorf("model = %q, want %q", gen.model, defaultModel)
	}
	cfg := gen.config
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.2) {
		t.Errorf("temperature = %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 512 {
		t.Errorf("max output tokens = %d", cfg.MaxOutputTokens)
	}
	if len(cfg.Tools) != 1 {
		t.Errorf("tools = %d", len(cfg.Tools))
	}
}

func TestComplete_RequestOverrides(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: textResponse("ok")}
	def := 0.9
	g := newWithGenerator(Config{Model: "gemini-2.5-pro", Temperature: &def, MaxOutputTokens: 100}, gen, nil)

	req := 0.1
	if _, err := g.Complete(context.Background(), provider.CompletionRequest{
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "x"}},
		MaxTokens:   50,
		Temperature: &req,
	}); err != nil {
		t.Fatal(err)
	}
	if *gen.config.Temperature != float32(0.1) || gen.config.MaxOutputTokens != 50 {
		t.Errorf("config = %+v", gen.config)
	}
	if gen.config.Tools != nil || gen.config.SystemInstruction != nil {
		t.Error("unset fields should stay nil")
	}
	if g.ModelName() != "gemini-2.5-pro" {
		t.Errorf("ModelName = %q", g.ModelName())
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "rate limit", err: genai.APIError{Code: 429, Message: "quota"}, want: provider.ErrRateLimit},
		{name: "unavailable", err: genai.APIError{Code: 503, Message: "overloaded"}, want: provider.ErrProviderDown},
		{name: "pointer", err: &genai.APIError{Code: 500}, want: provider.ErrProviderDown},
		{name: "context length", err: genai.APIError{Code: 400, Message: "The input token count exceeds the maximum"}, want: provider.ErrContextLength},
		{name: "wrapped", err: fmt.Errorf("call: %w", genai.APIError{Code: 429}), want: provider.ErrRateLimit},
		{name: "canceled", err: context.Canceled, want: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newWithGenerator(Config{}, &fakeGenerator{err: tt.err}, nil)
			_, err := g.Complete(context.Background(), provider.CompletionRequest{
				Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "x"}},
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_AuthErrorNotRetryable(t *testing.T) {
	t.Parallel()

	g := newWithGenerator(Config{}, &fakeGenerator{err: genai.APIError{Code: 403, Message: "bad key"}}, nil)
	_, err := g.Complete(context.Background(), provider.CompletionRequest{})
	if err == nil || provider.IsRetryable(err) {
		t.Errorf("err = %v, retryable = %v", err, provider.IsRetryable(err))
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{}, nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}
