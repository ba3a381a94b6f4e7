package models

import "time"

// Session is a long-lived conversational identity for one user.
// Sessions own their conversation history and are mutated only through
// the sessions.Manager API.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// UserID identifies the owning user.
	UserID string `json:"user_id"`

	// OrgID identifies the owning organization, if any.
	OrgID string `json:"org_id,omitempty"`

	// CreatedAt is when the session was allocated.
	CreatedAt time.Time `json:"created_at"`

	// LastActivityAt is bumped on every load, turn append, and update.
	// It is monotonically non-decreasing.
	LastActivityAt time.Time `json:"last_activity_at"`

	// Metadata holds free-form session state.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Preferences holds user-scoped preferences consulted when
	// assembling prompt context.
	Preferences map[string]any `json:"preferences,omitempty"`
}

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleTool      TurnRole = "tool"
	RoleSystem    TurnRole = "system"
)

// Valid reports whether the role is one of the known turn roles.
func (r TurnRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	default:
		return false
	}
}

// ConversationTurn is one message exchange unit within a session's history.
type ConversationTurn struct {
	// ID is the unique turn identifier.
	ID string `json:"id"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// Role indicates who produced the turn.
	Role TurnRole `json:"role"`

	// Content is the turn's text content.
	Content string `json:"content"`

	// Timestamp is when the turn was recorded.
	Timestamp time.Time `json:"timestamp"`

	// ToolCalls contains tool execution requests attached to this turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains resolved tool call results attached to this turn.
	ToolResults []ToolCallResult `json:"tool_results,omitempty"`
}
