// Package agent implements the function-calling loop that turns one user
// message into a reply: the model is called with the session history and
// the tool declarations, requested tools run (with confirmation when they
// are privileged), their results go back to the model, and the loop ends
// when the model answers in plain text.
package agent

import (
	"encoding/json"
	"time"

	"github.com/flemzord/deskclaw/internal/provider"
	"github.com/flemzord/deskclaw/internal/tool"
)

// ToolCallRecord tracks one tool invocation during a turn.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Result    tool.Result
	Duration  time.Duration
}

// Outcome is the metric label for the record: "ok" or the failure code.
func (r ToolCallRecord) Outcome() string {
	if r.Result.OK {
		return "ok"
	}
	return string(r.Result.Code)
}

// Reply is the result of a completed turn.
type Reply struct {
	Text        string
	Attachments []tool.Attachment
	Usage       provider.TokenUsage
	Iterations  int
	ToolCalls   []ToolCallRecord
}
