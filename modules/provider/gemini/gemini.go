// Package gemini bridges deskclaw to the Gemini API for function-calling
// completions.
package gemini

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/telemetry"
)

// Interface guard.
var _ provider.Provider = (*Gemini)(nil)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("gemini: api key must not be empty")

// generator is the subset of *genai.Models used by the provider.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements provider.Provider on top of the genai SDK.
type Gemini struct {
	config Config
	models generator
	logger *slog.Logger
}

// New creates a Gemini provider. cfg.Defaults is applied to a copy.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Gemini, error) {
	cfg.Defaults()
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	return newWithGenerator(cfg, client.Models, logger), nil
}

func newWithGenerator(cfg Config, models generator, logger *slog.Logger) *Gemini {
	cfg.Defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{config: cfg, models: models, logger: logger}
}

// ModelName implements provider.Provider.
func (g *Gemini) ModelName() string {
	return g.config.Model
}

// Complete implements provider.Provider.
func (g *Gemini) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	ctx, span := telemetry.Tracer("gemini").Start(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", g.config.Model),
		attribute.Int("messages", len(req.Messages)),
		attribute.Int("tools", len(req.Tools)),
	)

	contents, err := convertMessages(req.Messages)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return provider.CompletionResponse{}, err
	}

	resp, err := g.models.GenerateContent(ctx, g.config.Model, contents, g.generateConfig(req))
	if err != nil {
		err = mapError(err)
		span.SetStatus(codes.Error, err.Error())
		return provider.CompletionResponse{}, err
	}

	out, err := convertResponse(resp)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return provider.CompletionResponse{}, err
	}

	span.SetAttributes(
		attribute.Int("tool_calls", len(out.ToolCalls)),
		attribute.Int("total_tokens", out.Usage.TotalTokens),
	)
	g.logger.Debug("gemini: completion",
		"model", g.config.Model,
		"finish_reason", out.FinishReason,
		"tool_calls", len(out.ToolCalls),
		"tokens", out.Usage.TotalTokens)

	return out, nil
}

// generateConfig merges request-level settings over the configured defaults.
func (g *Gemini) generateConfig(req provider.CompletionRequest) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}

	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	temp := g.config.Temperature
	if req.Temperature != nil {
		temp = req.Temperature
	}
	if temp != nil {
		gc.Temperature = genai.Ptr(float32(*temp))
	}

	maxTokens := g.config.MaxOutputTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		gc.MaxOutputTokens = int32(maxTokens)
	}

	if len(req.Tools) > 0 {
		gc.Tools = convertTools(req.Tools)
	}
	return gc
}
