package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is one provider-facing chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions are the generation knobs forwarded to a provider.
type CompletionOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Usage reports token counts for one provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a provider's response to a single completion call.
// ToolCalls are raw provider payloads; field naming varies by vendor
// and is normalized downstream.
type Completion struct {
	Text      string            `json:"text"`
	ToolCalls []json.RawMessage `json:"tool_calls,omitempty"`
	Usage     Usage             `json:"usage"`
	Model     string            `json:"model"`
}

// StreamChunk is one increment of a streaming completion.
type StreamChunk struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Provider is the language-model capability consumed by the
// orchestrator. Implementations live outside this core.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*Completion, error)
	Stream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan StreamChunk, error)
}

// Chain selects providers by fallback order: first available wins.
// Richer selection policies (cost, latency, health scoring) are
// deliberately not implemented here.
type Chain struct {
	mu        sync.Mutex
	providers []Provider
	failures  map[string]int
	logger    *slog.Logger
}

// NewChain builds a fallback chain in priority order.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		failures:  map[string]int{},
		logger:    logger,
	}
}

// Select returns the first provider reporting availability. When none
// is available the returned error carries NO_PROVIDERS_AVAILABLE.
func (c *Chain) Select(ctx context.Context) (Provider, error) {
	c.mu.Lock()
	candidates := make([]Provider, len(c.providers))
	copy(candidates, c.providers)
	c.mu.Unlock()

	for _, p := range candidates {
		if p.Available(ctx) {
			return p, nil
		}
		c.logger.Debug("provider unavailable, trying next", "provider", p.Name())
	}
	return nil, &Error{
		Code:    CodeNoProvidersAvailable,
		Message: "no healthy provider in the fallback chain",
	}
}

// RecordFailure counts a provider failure for health reporting.
func (c *Chain) RecordFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[name]++
}

// Failures returns a copy of the per-provider failure counts.
func (c *Chain) Failures() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.failures))
	for k, v := range c.failures {
		out[k] = v
	}
	return out
}
