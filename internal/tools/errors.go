package tools

import (
	"errors"
	"strings"
)

// Error codes carried inside ToolResult envelopes. The executor never
// raises; every failure is reported as one of these.
const (
	CodeToolNotFound     = "TOOL_NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeExecutionTimeout = "EXECUTION_TIMEOUT"
	CodeExecutionError   = "EXECUTION_ERROR"
)

// Sentinel errors for registry operations.
var (
	// ErrDuplicateTool indicates a registration under an existing name.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrToolNotFound indicates a lookup for an unregistered name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrHandlerNotFound indicates a definition with no bound handler.
	ErrHandlerNotFound = errors.New("tool handler not found")
)

// classifyHandlerError maps an uncaught handler error onto an executor
// error code from its message content.
func classifyHandlerError(err error) string {
	if err == nil {
		return CodeExecutionError
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "context deadline") {
		return CodeExecutionTimeout
	}

	if strings.Contains(msg, "permission") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "access denied") {
		return CodePermissionDenied
	}

	if strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "validation") ||
		strings.Contains(msg, "required") ||
		strings.Contains(msg, "missing") {
		return CodeValidationError
	}

	if strings.Contains(msg, "not found") {
		return CodeToolNotFound
	}

	return CodeExecutionError
}
