package models

import (
	"encoding/json"
	"time"
)

// AccessLevel classifies how much autonomy a tool is granted.
type AccessLevel string

const (
	// AccessReadOnly marks tools that never mutate state.
	AccessReadOnly AccessLevel = "read_only"

	// AccessReadWriteApproval marks mutating tools that require
	// out-of-band approval before invocation.
	AccessReadWriteApproval AccessLevel = "read_write_approval"

	// AccessAutonomous marks tools the orchestrator may invoke freely.
	AccessAutonomous AccessLevel = "autonomous"
)

// ToolDefinition is the declarative description of a tool: schemas,
// permissions, and metadata. Definitions never hold executable code;
// handlers live in a separate registry keyed by name.
// A definition is immutable once registered.
type ToolDefinition struct {
	// Name is the unique registry key and LLM function name.
	Name string `json:"name"`

	// Description tells the model what the tool does.
	Description string `json:"description"`

	// Category groups related tools for listing.
	Category string `json:"category,omitempty"`

	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema json.RawMessage `json:"input_schema"`

	// OutputSchema is the JSON Schema for the tool's result payload.
	// Empty means the output is not validated.
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`

	// AccessLevel classifies the tool's autonomy.
	AccessLevel AccessLevel `json:"access_level"`

	// RequiredPermissions must all be held by the caller.
	RequiredPermissions []string `json:"required_permissions,omitempty"`

	// Version is the tool's semantic version, recorded in audit blocks.
	Version string `json:"version"`

	// Metadata holds free-form definition metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExecutionContext is the capability envelope passed to every tool
// invocation. It is never persisted beyond the call.
type ExecutionContext struct {
	OrgID          string    `json:"org_id"`
	UserID         string    `json:"user_id"`
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ToolCall is a normalized tool execution request from a provider.
type ToolCall struct {
	// ID correlates the call with its result.
	ID string `json:"id"`

	// Name is the tool to invoke.
	Name string `json:"name"`

	// Arguments is the raw JSON argument payload.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallResult pairs a tool call with its resolved outcome inside an
// orchestrator response or a conversation turn.
type ToolCallResult struct {
	CallID   string        `json:"call_id"`
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Result   any           `json:"result,omitempty"`
	Error    *ToolError    `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ToolError describes a tool failure as data. Failures never escape the
// executor as raised errors.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// AuditInfo records who executed which tool version, when, and under
// what context. Every ToolResult carries one.
type AuditInfo struct {
	ToolName    string           `json:"tool_name"`
	ToolVersion string           `json:"tool_version"`
	ExecutedAt  time.Time        `json:"executed_at"`
	ExecutedBy  string           `json:"executed_by"`
	Context     ExecutionContext `json:"context"`
}

// ToolResult is the uniform envelope returned by the tool executor.
// On success Data holds the handler's payload; on failure Error is set.
type ToolResult struct {
	Success  bool          `json:"success"`
	Data     any           `json:"data,omitempty"`
	Error    *ToolError    `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Audit    AuditInfo     `json:"audit"`
}
