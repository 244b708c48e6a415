package agent

import (
	"encoding/json"

	"github.com/flemzord/deskclaw/internal/provider"
)

// loopDetector tracks repeated identical tool calls within one turn.
type loopDetector struct {
	threshold int
	counts    map[string]int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

// normalizeArgs returns a canonical JSON form so that payloads differing
// only in key order produce the same key.
func normalizeArgs(args json.RawMessage) string {
	var m any
	if err := json.Unmarshal(args, &m); err != nil {
		return string(args)
	}
	normalized, err := json.Marshal(m)
	if err != nil {
		return string(args)
	}
	return string(normalized)
}

// recordAll registers every call of a round and reports whether any call
// signature went over the threshold.
func (d *loopDetector) recordAll(calls []provider.ToolCall) bool {
	tripped := false
	for _, tc := range calls {
		key := tc.Name + ":" + normalizeArgs(tc.Arguments)
		d.counts[key]++
		if d.counts[key] > d.threshold {
			tripped = true
		}
	}
	return tripped
}

// trimHistory keeps at most limit messages, cutting only at a user message
// so no tool exchange is split. Messages from turnStart on belong to the
// turn being saved and are never dropped, even when they alone exceed
// limit. A limit of zero or less keeps everything.
func trimHistory(history []provider.LLMMessage, limit, turnStart int) []provider.LLMMessage {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	turnStart = max(0, min(turnStart, len(history)))
	start := len(history) - limit
	for start < turnStart && history[start].Role != provider.MessageRoleUser {
		start++
	}
	return history[min(start, turnStart):]
}
