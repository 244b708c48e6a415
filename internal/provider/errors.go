package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrBlocked indicates the model refused to answer (safety filters).
	ErrBlocked = errors.New("response blocked by provider")

	// ErrEmptyResponse indicates the provider returned no candidate.
	ErrEmptyResponse = errors.New("provider returned no candidates")
)

// IsRetryable reports whether the error is transient and the request
// can be retried after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
