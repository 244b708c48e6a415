// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/deskclaw/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	NameValue        string
	DescriptionValue string
	SchemaValue      json.RawMessage
	Privileged       bool
	ExecuteFunc      func(ctx context.Context, args json.RawMessage, env tool.Env) (tool.Result, error)

	mu    sync.Mutex
	calls []json.RawMessage
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock_tool"
}

// Description implements tool.Tool.
func (m *MockTool) Description() string {
	if m.DescriptionValue != "" {
		return m.DescriptionValue
	}
	return "a mock tool"
}

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	if m.SchemaValue != nil {
		return m.SchemaValue
	}
	return json.RawMessage(`{"type":"object"}`)
}

// RequiresConfirmation implements tool.Tool.
func (m *MockTool) RequiresConfirmation() bool { return m.Privileged }

// Execute implements tool.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage, env tool.Env) (tool.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args, env)
	}
	return tool.Success("ok"), nil
}

// Calls returns the arguments of every Execute call so far.
func (m *MockTool) Calls() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.calls...)
}

// SimpleTool creates a minimal tool that echoes its name.
func SimpleTool(name string, privileged bool) *MockTool {
	return &MockTool{
		NameValue:        name,
		DescriptionValue: "simple test tool: " + name,
		Privileged:       privileged,
		ExecuteFunc: func(context.Context, json.RawMessage, tool.Env) (tool.Result, error) {
			return tool.Success("executed: " + name), nil
		},
	}
}

// Interface guard.
var _ tool.Tool = (*MockTool)(nil)
