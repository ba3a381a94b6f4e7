package orchestrator

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/halcyon-ai/halcyon/pkg/models"
)

// rawToolCall accepts the field spellings used across provider APIs.
// OpenAI nests name/arguments under "function"; others flatten them.
type rawToolCall struct {
	ID         string          `json:"id"`
	ToolCallID string          `json:"tool_call_id"`
	CallID     string          `json:"call_id"`
	Name       string          `json:"name"`
	ToolName   string          `json:"tool_name"`
	Function   *rawFunction    `json:"function"`
	Arguments  json.RawMessage `json:"arguments"`
	Args       json.RawMessage `json:"args"`
	Parameters json.RawMessage `json:"parameters"`
	Input      json.RawMessage `json:"input"`
}

type rawFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// NormalizeToolCalls converts raw provider tool-call payloads into the
// uniform shape the executor consumes. Unparseable entries are dropped
// rather than failing the whole batch; a call with no usable name is
// likewise dropped. Missing ids are filled in so results can still be
// correlated.
func NormalizeToolCalls(raw []json.RawMessage) []models.ToolCall {
	calls := make([]models.ToolCall, 0, len(raw))
	for _, entry := range raw {
		var rc rawToolCall
		if err := json.Unmarshal(entry, &rc); err != nil {
			continue
		}

		name := firstNonEmpty(rc.Name, rc.ToolName)
		args := firstRaw(rc.Arguments, rc.Args, rc.Parameters, rc.Input)
		if rc.Function != nil {
			name = firstNonEmpty(name, rc.Function.Name)
			args = firstRaw(args, rc.Function.Arguments)
		}
		if name == "" {
			continue
		}

		id := firstNonEmpty(rc.ID, rc.ToolCallID, rc.CallID)
		if id == "" {
			id = uuid.NewString()
		}

		calls = append(calls, models.ToolCall{
			ID:        id,
			Name:      name,
			Arguments: normalizeArguments(args),
		})
	}
	return calls
}

// normalizeArguments unwraps the "arguments as a JSON-encoded string"
// convention some providers use, returning an object either way.
func normalizeArguments(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage(`{}`)
	}
	var encoded string
	if err := json.Unmarshal(args, &encoded); err == nil {
		if json.Valid([]byte(encoded)) {
			return json.RawMessage(encoded)
		}
		return json.RawMessage(`{}`)
	}
	return args
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}
