package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/deskclaw/internal/config"
	"github.com/flemzord/deskclaw/internal/security"
)

// NewRedactor returns a redactor that masks the secrets found in cfg in
// addition to the known key shapes.
func NewRedactor(cfg *config.Config) *security.Redactor {
	return security.NewRedactor(cfg.Telegram.Token, cfg.Gemini.APIKey, cfg.Gateway.BearerToken)
}

// NewLogger builds the process logger: a text handler on w wrapped in a
// redacting handler so secrets never reach the output.
func NewLogger(w io.Writer, level string, redactor *security.Redactor) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// ParseLevel maps debug|info|warn|error to a slog.Level. Unknown values
// mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openAuditFile opens path for appending JSONL audit events.
func openAuditFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return f, nil
}
