// Package audit provides structured audit logging for tool
// invocations, session lifecycle, and orchestrator events. Records are
// structured key-value entries; durable storage is the consumer's
// concern.
package audit

import (
	"time"

	"github.com/halcyon-ai/halcyon/pkg/models"
)

// EventType categorizes audit events.
type EventType string

const (
	// Tool events
	EventToolInvocation EventType = "tool.invocation"
	EventToolCompletion EventType = "tool.completion"
	EventToolDenied     EventType = "tool.denied"

	// Session events
	EventSessionCreate EventType = "session.create"
	EventSessionDelete EventType = "session.delete"
	EventSessionPrune  EventType = "session.prune"

	// Orchestrator events
	EventRequestReceived   EventType = "orchestrator.request_received"
	EventProviderSelected  EventType = "orchestrator.provider_selected"
	EventResponseGenerated EventType = "orchestrator.response_generated"
	EventErrorOccurred     EventType = "orchestrator.error_occurred"
	EventShutdown          EventType = "orchestrator.shutdown"
)

// Event is a single audit record.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// SessionID identifies the session context, if any.
	SessionID string `json:"session_id,omitempty"`

	// UserID identifies the acting user, if known.
	UserID string `json:"user_id,omitempty"`

	// OrgID identifies the organization, if any.
	OrgID string `json:"org_id,omitempty"`

	// ToolName identifies the tool for tool events.
	ToolName string `json:"tool_name,omitempty"`

	// ToolVersion is the registered version for tool events.
	ToolVersion string `json:"tool_version,omitempty"`

	// Duration is the elapsed time for timed operations.
	Duration time.Duration `json:"duration,omitempty"`

	// Success reports the outcome for completion events.
	Success bool `json:"success"`

	// ErrorCode carries the machine-readable failure code, if any.
	ErrorCode string `json:"error_code,omitempty"`

	// Details holds event-specific structured data.
	Details map[string]any `json:"details,omitempty"`
}

// Config configures the audit logger.
type Config struct {
	// Enabled determines if audit logging is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// BufferSize is the size of the async write buffer. Events are
	// dropped (and counted) when the buffer is full rather than
	// blocking the execution path.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// IncludeDetails controls whether Details payloads are written.
	// Disable in privacy-sensitive environments.
	IncludeDetails bool `json:"include_details" yaml:"include_details"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		BufferSize:     1024,
		IncludeDetails: true,
	}
}

func contextFields(e *Event, execCtx models.ExecutionContext) {
	e.SessionID = execCtx.SessionID
	e.UserID = execCtx.UserID
	e.OrgID = execCtx.OrgID
}
