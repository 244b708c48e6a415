// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/deskclaw/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset CompleteFunc panics on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc  func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	ModelNameFunc func() string

	mu       sync.Mutex
	Requests []provider.CompletionRequest
}

// Complete records the request and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc, defaulting to "mock-model".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock-model"
	}
	return m.ModelNameFunc()
}

// Calls returns the number of Complete calls so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Sequence returns a CompleteFunc that replays responses in order and
// repeats the last one once exhausted.
func Sequence(responses ...provider.CompletionResponse) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	var mu sync.Mutex
	idx := 0
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		resp := responses[idx]
		if idx < len(responses)-1 {
			idx++
		}
		return resp, nil
	}
}

// Interface guard.
var _ provider.Provider = (*MockProvider)(nil)
