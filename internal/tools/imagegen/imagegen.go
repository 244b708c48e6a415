// Package imagegen implements generate_image on top of an MCP image server
// (nanobanana by default).
package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/deskclaw/internal/tool"
)

// MaxPromptLength is the longest prompt accepted, in characters.
const MaxPromptLength = 1000

// minRawBase64 is the shortest text block treated as a bare base64 image.
const minRawBase64 = 100

// Config configures the image generation server.
type Config struct {
	Enabled bool          `yaml:"enabled"`
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Env     []string      `yaml:"env"`
	Tool    string        `yaml:"tool"`
	Timeout time.Duration `yaml:"timeout"`
}

// Defaults fills in zero-value fields.
func (c *Config) Defaults() {
	if c.Command == "" {
		c.Command = "npx"
		if len(c.Args) == 0 {
			c.Args = []string{"-y", "nanobanana"}
		}
	}
	if c.Tool == "" {
		c.Tool = "generate_image"
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
}

var errNoImage = errors.New("no image in response")

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/=\s]+$`)

type generateImage struct {
	tool.Base
	caller Caller
	cfg    Config
	logger *slog.Logger
}

// New returns the generate_image tool backed by caller.
func New(caller Caller, cfg Config, logger *slog.Logger) tool.Tool {
	cfg.Defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &generateImage{
		caller: caller,
		cfg:    cfg,
		logger: logger,
		Base: tool.Base{
			ToolName:        "generate_image",
			ToolDescription: "Generate an image from a text prompt and send it to the user. Requires the user's approval.",
			Privileged:      true,
			ToolSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"prompt": {"type": "string", "maxLength": 1000, "description": "Detailed description of the image: subject, style, colors, composition"}
				},
				"required": ["prompt"]
			}`),
		},
	}
}

type args struct {
	Prompt string `json:"prompt"`
}

// ImageResult is the payload of a successful generate_image call.
type ImageResult struct {
	Prompt   string `json:"prompt"`
	MIMEType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
	Message  string `json:"message"`
}

func (t *generateImage) Execute(ctx context.Context, raw json.RawMessage, _ tool.Env) (tool.Result, error) {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return tool.Failure(tool.CodeInvalidArguments, "invalid arguments: "+err.Error()), nil
	}
	if strings.TrimSpace(a.Prompt) == "" {
		return tool.Failure(tool.CodeInvalidArguments, "prompt must be a non-empty string"), nil
	}
	if utf8.RuneCountInString(a.Prompt) > MaxPromptLength {
		return tool.Failure(tool.CodeInvalidArguments, fmt.Sprintf("prompt too long: maximum %d characters", MaxPromptLength)), nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	start := time.Now()
	content, err := t.caller.CallTool(ctx, t.cfg.Tool, map[string]any{"prompt": a.Prompt})
	if err != nil {
		t.logger.Warn("imagegen: generation failed", "error", err, "duration", time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return tool.Failure(tool.CodeTimeout, "image generation timed out, try a simpler prompt"), nil
		}
		return tool.Failure(tool.CodeExecution, "image generation service unavailable"), nil
	}

	data, mime, err := extractImage(content)
	if err != nil {
		t.logger.Warn("imagegen: unusable response", "error", err, "blocks", len(content))
		return tool.Failure(tool.CodeExecution, "failed to extract image data from response"), nil
	}
	t.logger.Info("imagegen: image generated", "bytes", len(data), "duration", time.Since(start))

	res := tool.Success(ImageResult{
		Prompt:   a.Prompt,
		MIMEType: mime,
		Bytes:    len(data),
		Message:  "Image generated and sent to the user.",
	})
	return res.WithAttachment(tool.Attachment{Name: "image" + extension(mime), MIMEType: mime, Data: data}), nil
}

// extractImage finds the first image in an MCP response: an image block,
// a data: URL, or a long bare base64 text block.
func extractImage(content []mcp.Content) ([]byte, string, error) {
	for _, c := range content {
		if img, ok := asImage(c); ok {
			data, err := decodeBase64(img.Data)
			if err != nil {
				return nil, "", fmt.Errorf("image block: %w", err)
			}
			mime := img.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return data, mime, nil
		}

		text, ok := asText(c)
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if rest, found := strings.CutPrefix(text, "data:image/"); found {
			meta, payload, ok := strings.Cut(rest, ",")
			if !ok {
				continue
			}
			data, err := decodeBase64(payload)
			if err != nil {
				return nil, "", fmt.Errorf("data url: %w", err)
			}
			return data, "image/" + strings.TrimSuffix(meta, ";base64"), nil
		}
		if len(text) > minRawBase64 && base64Pattern.MatchString(text) {
			if data, err := decodeBase64(text); err == nil {
				return data, "image/png", nil
			}
		}
	}
	return nil, "", errNoImage
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func asImage(c mcp.Content) (mcp.ImageContent, bool) {
	switch v := c.(type) {
	case mcp.ImageContent:
		return v, true
	case *mcp.ImageContent:
		if v != nil {
			return *v, true
		}
	}
	return mcp.ImageContent{}, false
}

func asText(c mcp.Content) (string, bool) {
	switch v := c.(type) {
	case mcp.TextContent:
		return v.Text, true
	case *mcp.TextContent:
		if v != nil {
			return v.Text, true
		}
	}
	return "", false
}

func extension(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
