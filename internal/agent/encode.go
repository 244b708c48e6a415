package agent

import (
	"encoding/json"

	"github.com/flemzord/deskclaw/internal/provider"
)

type attachmentRef struct {
	Attachment string `json:"attachment"`
}

type successPayload struct {
	Success     bool            `json:"success"`
	Data        any             `json:"data,omitempty"`
	Attachments []attachmentRef `json:"attachments,omitempty"`
}

type failurePayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// encodeResult renders a tool result for the model. Attachment bytes are
// replaced by their names.
func encodeResult(rec ToolCallRecord) string {
	r := rec.Result
	var v any
	if r.OK {
		p := successPayload{Success: true, Data: r.Data}
		for _, a := range r.Attachments {
			p.Attachments = append(p.Attachments, attachmentRef{Attachment: a.Name})
		}
		v = p
	} else {
		v = failurePayload{Error: r.Message, Code: string(r.Code)}
	}

	out, err := json.Marshal(v)
	if err != nil {
		out, _ = json.Marshal(failurePayload{Error: "result could not be encoded: " + err.Error(), Code: "execution_failed"})
	}
	return string(out)
}

// toolMessages turns a round's records into tool messages, one per call.
func toolMessages(records []ToolCallRecord) []provider.LLMMessage {
	msgs := make([]provider.LLMMessage, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, provider.LLMMessage{
			Role:    provider.MessageRoleTool,
			Content: encodeResult(rec),
			Name:    rec.Name,
			ToolID:  rec.ID,
			IsError: !rec.Result.OK,
		})
	}
	return msgs
}
