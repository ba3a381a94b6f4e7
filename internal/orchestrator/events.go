package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"
)

// Lifecycle event types emitted while a request moves through the
// state machine.
const (
	EventRequestReceived   = "request_received"
	EventProviderSelected  = "provider_selected"
	EventToolsExecuted     = "tools_executed"
	EventResponseGenerated = "response_generated"
	EventErrorOccurred     = "error_occurred"
	EventShutdown          = "shutdown"
)

// LifecycleEvent is a sequenced record of an orchestrator state
// transition. Seq is monotonically increasing per emitter, so external
// observers can order events without relying on timestamps.
type LifecycleEvent struct {
	Seq       uint64         `json:"seq"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Listener receives lifecycle events. Listeners run synchronously on
// the emitting goroutine and must not block.
type Listener func(LifecycleEvent)

// Emitter fans lifecycle events out to registered listeners.
type Emitter struct {
	mu        sync.RWMutex
	seq       atomic.Uint64
	listeners []Listener
}

func NewEmitter() *Emitter { return &Emitter{} }

// Subscribe registers a listener for all subsequent events.
func (e *Emitter) Subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Emit delivers an event to every listener. Nil emitters are silent,
// so callers can skip the nil check.
func (e *Emitter) Emit(eventType, sessionID string, payload map[string]any) {
	if e == nil {
		return
	}
	event := LifecycleEvent{
		Seq:       e.seq.Add(1),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()

	for _, l := range listeners {
		l(event)
	}
}
