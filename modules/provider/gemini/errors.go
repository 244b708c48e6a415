package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/flemzord/deskclaw/internal/provider"
)

// mapError converts a genai error into the matching provider sentinel.
// Non-API errors are returned as-is.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return err
		}
		apiErr = *ptr
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, apiErr.Message)
	case apiErr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", provider.ErrProviderDown, apiErr.Message)
	case apiErr.Code == http.StatusBadRequest && isContextLength(apiErr.Message):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, apiErr.Message)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("gemini auth error (HTTP %d): %w", apiErr.Code, err)
	default:
		return fmt.Errorf("gemini error (HTTP %d): %w", apiErr.Code, err)
	}
}

func isContextLength(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "token count") ||
		strings.Contains(msg, "too many tokens") ||
		strings.Contains(msg, "context length")
}
