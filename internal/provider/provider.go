// Package provider defines the model collaborator used by the agent loop:
// an ordered message history plus tool declarations go in, either a final
// text or a batch of tool calls comes out.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live under modules/provider.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}
