package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/security"
)

// Registry holds registered tools. It is built once at startup and read
// concurrently afterwards.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	auditLogger *security.AuditLogger
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// SetAuditLogger configures audit logging for tool executions.
func (r *Registry) SetAuditLogger(logger *security.AuditLogger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditLogger = logger
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}
	if !isObject(t.Schema()) {
		return fmt.Errorf("%w: %s", ErrInvalidSchema, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	r.tools[name] = t
	return nil
}

// MustRegister registers every tool and panics on the first error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Declarations returns the model-facing view of every tool, sorted by name.
func (r *Registry) Declarations() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]provider.ToolDefinition, 0, len(r.tools))
	for name, t := range r.tools {
		defs = append(defs, provider.ToolDefinition{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	slices.SortFunc(defs, func(a, b provider.ToolDefinition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke runs the named tool. It performs no sandboxing and no confirmation;
// callers are expected to have done both. A handler error is folded into a
// CodeExecution failure so the model can see it.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage, env Env) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	al := r.auditLogger
	r.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if al != nil {
		al.Log(security.AuditEvent{
			Type:      security.EventToolCall,
			Principal: env.Principal,
			ToolName:  name,
			Detail:    truncateForAudit(string(args)),
		})
	}

	res, err := t.Execute(ctx, args, env)
	if err != nil {
		res = Failure(CodeExecution, err.Error())
	}

	if al != nil {
		detail := "ok"
		if !res.OK {
			detail = string(res.Code) + ": " + res.Message
		}
		al.Log(security.AuditEvent{
			Type:      security.EventToolResult,
			Principal: env.Principal,
			ToolName:  name,
			Detail:    truncateForAudit(detail),
			Metadata: map[string]string{
				"ok":          fmt.Sprintf("%v", res.OK),
				"attachments": fmt.Sprintf("%d", len(res.Attachments)),
			},
		})
	}

	return res, nil
}

func isObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(raw, &m) == nil && m != nil
}

// maxAuditDetailLen is the maximum length of audit detail strings.
const maxAuditDetailLen = 4096

// truncateForAudit cuts s at maxAuditDetailLen on a rune boundary.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
