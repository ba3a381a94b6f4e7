package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/halcyon-ai/halcyon/pkg/models"
)

// Handler is the executable implementation of a tool. Arguments have
// already passed input-schema validation when the handler runs. The
// returned payload is validated against the tool's output schema when
// one is declared.
type Handler func(ctx context.Context, args json.RawMessage, execCtx models.ExecutionContext) (any, error)

// HandlerRegistry maps tool names to executable handlers. It is kept
// separate from the declarative Registry so metadata can be exported,
// imported, and inspected without ever touching code.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Bind associates a handler with a tool name. Rebinding a name is an
// error; unlike definitions, there is no legitimate reason to shadow a
// live handler.
func (h *HandlerRegistry) Bind(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("handler name is required")
	}
	if handler == nil {
		return fmt.Errorf("handler for %q is nil", name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlers[name]; exists {
		return fmt.Errorf("handler already bound for %s", name)
	}
	h.handlers[name] = handler
	return nil
}

// Get returns the handler bound to a name.
func (h *HandlerRegistry) Get(name string) (Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[name]
	return handler, ok
}
