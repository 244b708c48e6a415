package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// clientName identifies deskclaw to MCP servers.
const clientName = "deskclaw"

// Caller invokes a tool on an MCP server and returns its content blocks.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) ([]mcp.Content, error)
	Close() error
}

// StdioCaller runs an MCP server as a child process and talks to it over
// stdio. The process is started on first use and restarted after a failed
// call.
type StdioCaller struct {
	command string
	args    []string
	env     []string
	version string
	logger  *slog.Logger

	mu     sync.Mutex
	client *client.Client
}

var _ Caller = (*StdioCaller)(nil)

// NewStdioCaller returns a caller for command with args. env entries are
// KEY=VALUE pairs passed to the server.
func NewStdioCaller(command string, args, env []string, version string, logger *slog.Logger) *StdioCaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioCaller{command: command, args: args, env: env, version: version, logger: logger}
}

func (s *StdioCaller) connect(ctx context.Context) (*client.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	c, err := client.NewStdioMCPClient(s.command, s.env, s.args...)
	if err != nil {
		return nil, fmt.Errorf("imagegen: start %s: %w", s.command, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: s.version}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imagegen: initialize: %w", err)
	}

	s.logger.Info("imagegen: mcp server started", "command", s.command)
	s.client = c
	return c, nil
}

// CallTool implements Caller. Calls are serialized over the single stdio
// connection.
func (s *StdioCaller) CallTool(ctx context.Context, name string, args map[string]any) ([]mcp.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.CallTool(ctx, req)
	if err != nil {
		s.resetLocked()
		return nil, fmt.Errorf("imagegen: call %s: %w", name, err)
	}
	if res.IsError {
		return nil, fmt.Errorf("imagegen: %s reported an error: %s", name, firstText(res.Content))
	}
	return res.Content, nil
}

// Close implements Caller.
func (s *StdioCaller) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *StdioCaller) resetLocked() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func firstText(content []mcp.Content) string {
	for _, c := range content {
		if t, ok := asText(c); ok {
			return t
		}
	}
	return "no details"
}
