package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-ai/halcyon/pkg/models"
)

// Logger writes audit events asynchronously through a buffered channel
// so the execution path never blocks on the sink. A nil *Logger is
// safe to call; every method is a no-op.
type Logger struct {
	cfg    Config
	out    *slog.Logger
	events chan Event

	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	drained   chan struct{}
}

// NewLogger creates an audit logger writing through out. Returns nil
// when auditing is disabled, which callers treat as "no audit sink".
func NewLogger(cfg Config, out *slog.Logger) *Logger {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if out == nil {
		out = slog.Default()
	}
	l := &Logger{
		cfg:     cfg,
		out:     out,
		events:  make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go l.run()
	return l
}

// Close stops the writer after draining buffered events.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		close(l.done)
		<-l.drained
	})
}

// Dropped returns the number of events discarded due to a full buffer.
func (l *Logger) Dropped() int64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

func (l *Logger) run() {
	defer close(l.drained)
	for {
		select {
		case e := <-l.events:
			l.write(e)
		case <-l.done:
			for {
				select {
				case e := <-l.events:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(e Event) {
	attrs := []any{
		"audit_id", e.ID,
		"event", string(e.Type),
		"timestamp", e.Timestamp.Format(time.RFC3339Nano),
		"success", e.Success,
	}
	if e.SessionID != "" {
		attrs = append(attrs, "session_id", e.SessionID)
	}
	if e.UserID != "" {
		attrs = append(attrs, "user_id", e.UserID)
	}
	if e.OrgID != "" {
		attrs = append(attrs, "org_id", e.OrgID)
	}
	if e.ToolName != "" {
		attrs = append(attrs, "tool", e.ToolName)
	}
	if e.ToolVersion != "" {
		attrs = append(attrs, "tool_version", e.ToolVersion)
	}
	if e.Duration > 0 {
		attrs = append(attrs, "duration_ms", e.Duration.Milliseconds())
	}
	if e.ErrorCode != "" {
		attrs = append(attrs, "error_code", e.ErrorCode)
	}
	if l.cfg.IncludeDetails && len(e.Details) > 0 {
		attrs = append(attrs, "details", e.Details)
	}
	l.out.Info("audit", attrs...)
}

func (l *Logger) emit(e Event) {
	if l == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case l.events <- e:
	default:
		l.dropped.Add(1)
	}
}

// ToolInvocation records a tool call entering execution.
func (l *Logger) ToolInvocation(_ context.Context, name, version string, execCtx models.ExecutionContext) {
	e := Event{Type: EventToolInvocation, ToolName: name, ToolVersion: version, Success: true}
	contextFields(&e, execCtx)
	l.emit(e)
}

// ToolCompletion records a finished tool call, successful or not.
func (l *Logger) ToolCompletion(_ context.Context, name string, execCtx models.ExecutionContext, duration time.Duration, success bool, errorCode string) {
	e := Event{
		Type:      EventToolCompletion,
		ToolName:  name,
		Duration:  duration,
		Success:   success,
		ErrorCode: errorCode,
	}
	contextFields(&e, execCtx)
	l.emit(e)
}

// ToolDenied records a permission rejection before handler invocation.
func (l *Logger) ToolDenied(_ context.Context, name string, execCtx models.ExecutionContext, missing []string) {
	e := Event{
		Type:     EventToolDenied,
		ToolName: name,
		Details:  map[string]any{"missing_permissions": missing},
	}
	contextFields(&e, execCtx)
	l.emit(e)
}

// SessionCreated records a new session allocation.
func (l *Logger) SessionCreated(_ context.Context, sessionID, userID, orgID string) {
	l.emit(Event{
		Type:      EventSessionCreate,
		SessionID: sessionID,
		UserID:    userID,
		OrgID:     orgID,
		Success:   true,
	})
}

// SessionsPruned records an idle-TTL sweep.
func (l *Logger) SessionsPruned(_ context.Context, count int, maxAge time.Duration) {
	l.emit(Event{
		Type:    EventSessionPrune,
		Success: true,
		Details: map[string]any{"pruned": count, "max_age_ms": maxAge.Milliseconds()},
	})
}

// Lifecycle records an orchestrator lifecycle event.
func (l *Logger) Lifecycle(_ context.Context, typ EventType, sessionID string, details map[string]any) {
	l.emit(Event{
		Type:      typ,
		SessionID: sessionID,
		Success:   typ != EventErrorOccurred,
		Details:   details,
	})
}
