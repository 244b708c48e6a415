// Package tool defines the tool descriptor, the tagged result variant and
// the registry that maps tool names to handlers. Tools are the only way the
// model can reach outside the conversation, so every handler receives the
// caller's sandbox scope and nothing else.
package tool

import (
	"context"
	"encoding/json"

	"github.com/flemzord/deskclaw/internal/sandbox"
)

// Tool is the interface that all deskclaw tools must implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description shown to the model.
	Description() string

	// Schema returns a JSON Schema object describing the tool's arguments.
	Schema() json.RawMessage

	// RequiresConfirmation reports whether each invocation must be approved
	// by the principal before it runs.
	RequiresConfirmation() bool

	// Execute runs the tool with already-validated arguments.
	Execute(ctx context.Context, args json.RawMessage, env Env) (Result, error)
}

// Env is the runtime environment handed to a tool. It carries no secrets and
// no process environment.
type Env struct {
	// Principal is the id of the user the call is made for.
	Principal string

	// Scope is the principal's working directory and allowed roots.
	Scope sandbox.Scope
}

// FailureCode classifies a failed tool result.
type FailureCode string

// Failure codes reported back to the model.
const (
	CodeInvalidArguments FailureCode = "invalid_arguments"
	CodeSandboxDenied    FailureCode = "sandbox_denied"
	CodeNotFound         FailureCode = "not_found"
	CodeDenied           FailureCode = "denied"
	CodeTimeout          FailureCode = "timeout"
	CodeExecution        FailureCode = "execution_failed"
	CodePanic            FailureCode = "panic"
)

// Attachment is binary output (a screenshot, a generated image) delivered to
// the principal but never sent back to the model.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Result is the outcome of a tool call. When OK is true Data holds the
// payload; otherwise Code and Message describe the failure.
type Result struct {
	OK          bool
	Data        any
	Code        FailureCode
	Message     string
	Attachments []Attachment
}

// Success returns a successful result carrying data.
func Success(data any) Result {
	return Result{OK: true, Data: data}
}

// Failure returns a failed result.
func Failure(code FailureCode, msg string) Result {
	return Result{Code: code, Message: msg}
}

// WithAttachment returns a copy of r with a appended.
func (r Result) WithAttachment(a Attachment) Result {
	r.Attachments = append(append([]Attachment(nil), r.Attachments...), a)
	return r
}

// Base carries the static parts of a tool descriptor. Concrete tools embed
// it and implement Execute.
type Base struct {
	ToolName        string
	ToolDescription string
	ToolSchema      json.RawMessage
	Privileged      bool
}

// Name implements Tool.
func (b Base) Name() string { return b.ToolName }

// Description implements Tool.
func (b Base) Description() string { return b.ToolDescription }

// Schema implements Tool.
func (b Base) Schema() json.RawMessage { return b.ToolSchema }

// RequiresConfirmation implements Tool.
func (b Base) RequiresConfirmation() bool { return b.Privileged }
