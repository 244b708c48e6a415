package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/flemzord/deskclaw/internal/provider"
)

// convertMessages maps deskclaw history onto Gemini contents. Consecutive
// tool results are grouped into one user turn, the way Gemini expects
// function responses for a single model turn. System messages are carried
// by SystemInstruction and skipped here.
func convertMessages(msgs []provider.LLMMessage) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))

	for i := 0; i < len(msgs); {
		msg := msgs[i]

		switch msg.Role {
		case provider.MessageRoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
			i++

		case provider.MessageRoleAssistant:
			c, err := convertAssistant(msg)
			if err != nil {
				return nil, err
			}
			contents = append(contents, c)
			i++

		case provider.MessageRoleTool:
			c := &genai.Content{Role: string(genai.RoleUser)}
			for i < len(msgs) && msgs[i].Role == provider.MessageRoleTool {
				c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					Name:     msgs[i].Name,
					Response: responsePayload(msgs[i].Content),
				}})
				i++
			}
			contents = append(contents, c)

		default:
			i++
		}
	}

	return contents, nil
}

func convertAssistant(msg provider.LLMMessage) (*genai.Content, error) {
	c := &genai.Content{Role: string(genai.RoleModel)}
	if msg.Content != "" {
		c.Parts = append(c.Parts, &genai.Part{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if len(tc.Arguments) > 0 {
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				return nil, fmt.Errorf("gemini: tool call %s has invalid arguments: %w", tc.Name, err)
			}
		}
		c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			Name: tc.Name,
			Args: args,
		}})
	}
	if len(c.Parts) == 0 {
		c.Parts = append(c.Parts, &genai.Part{Text: ""})
	}
	return c, nil
}

// responsePayload decodes a tool result into the object Gemini requires.
// Non-object payloads are wrapped under "result".
func responsePayload(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": content}
}

func convertTools(defs []provider.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if len(d.Parameters) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(d.Parameters, &schema); err == nil {
				fd.ParametersJsonSchema = schema
			}
		}
		decls = append(decls, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertResponse extracts text and function calls from the first candidate.
func convertResponse(resp *genai.GenerateContentResponse) (provider.CompletionResponse, error) {
	if resp == nil {
		return provider.CompletionResponse{}, provider.ErrEmptyResponse
	}

	var out provider.CompletionResponse
	if u := resp.UsageMetadata; u != nil {
		out.Usage = provider.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return out, fmt.Errorf("%w: prompt blocked (%s)", provider.ErrBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out, provider.ErrEmptyResponse
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, convertCall(part.FunctionCall))
				continue
			}
			text.WriteString(part.Text)
		}
	}
	out.Content = text.String()

	switch {
	case len(out.ToolCalls) > 0:
		out.FinishReason = provider.FinishReasonToolUse
	case isBlocked(cand.FinishReason):
		if out.Content == "" {
			return out, fmt.Errorf("%w: response blocked (%s)", provider.ErrBlocked, cand.FinishReason)
		}
		out.FinishReason = provider.FinishReasonFiltering
	case cand.FinishReason == genai.FinishReasonMaxTokens:
		out.FinishReason = provider.FinishReasonLength
	default:
		out.FinishReason = provider.FinishReasonStop
	}

	if out.Content == "" && len(out.ToolCalls) == 0 {
		return out, provider.ErrEmptyResponse
	}
	return out, nil
}

func convertCall(fc *genai.FunctionCall) provider.ToolCall {
	id := fc.ID
	if id == "" {
		id = uuid.NewString()
	}
	args, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		args = []byte("{}")
	}
	return provider.ToolCall{ID: id, Name: fc.Name, Arguments: args}
}

func isBlocked(r genai.FinishReason) bool {
	switch r {
	case genai.FinishReasonSafety,
		genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII:
		return true
	}
	return false
}
