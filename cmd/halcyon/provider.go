package main

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/halcyon-ai/halcyon/internal/orchestrator"
)

// scriptedProvider is a deterministic local provider. It pattern-
// matches the last user message against the inventory vocabulary and
// either answers directly or emits a tool call, which keeps the whole
// pipeline exercisable without remote credentials.
type scriptedProvider struct {
	name  string
	model string
}

func newScriptedProvider(name, model string) *scriptedProvider {
	return &scriptedProvider{name: name, model: model}
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Available(_ context.Context) bool { return true }

var skuPattern = regexp.MustCompile(`\b([A-Z]{3}-\d{3})\b`)

func (p *scriptedProvider) Complete(_ context.Context, messages []orchestrator.Message, _ orchestrator.CompletionOptions) (*orchestrator.Completion, error) {
	prompt := lastUserMessage(messages)
	completion := &orchestrator.Completion{Model: p.model}

	lower := strings.ToLower(prompt)
	sku := skuPattern.FindString(strings.ToUpper(prompt))

	switch {
	case sku != "" && (strings.Contains(lower, "check") || strings.Contains(lower, "stock") || strings.Contains(lower, "inventory")):
		completion.Text = fmt.Sprintf("Looking up current stock for %s.", sku)
		completion.ToolCalls = append(completion.ToolCalls, toolCall("check_inventory", map[string]any{"sku": sku}))
	case strings.Contains(lower, "search") || strings.Contains(lower, "find"):
		completion.Text = "Searching the catalog."
		completion.ToolCalls = append(completion.ToolCalls, toolCall("searchInventory", map[string]any{"query": lastWord(prompt)}))
	case strings.Contains(lower, "report") || strings.Contains(lower, "analytics"):
		completion.Text = "Summarizing inventory analytics."
		completion.ToolCalls = append(completion.ToolCalls, toolCall("query_analytics", map[string]any{}))
	default:
		completion.Text = fmt.Sprintf("Acknowledged: %s", prompt)
	}

	promptTokens := tokenEstimate(messages)
	completionTokens := len(strings.Fields(completion.Text))
	completion.Usage = orchestrator.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	return completion, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, messages []orchestrator.Message, opts orchestrator.CompletionOptions) (<-chan orchestrator.StreamChunk, error) {
	completion, err := p.Complete(ctx, messages, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan orchestrator.StreamChunk)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(completion.Text) {
			select {
			case out <- orchestrator.StreamChunk{Text: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- orchestrator.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// toolCall encodes a call in the OpenAI function-call shape; the
// orchestrator normalizer accepts several vendor spellings and this is
// the most common one.
func toolCall(name string, args map[string]any) json.RawMessage {
	arguments, _ := json.Marshal(args)
	payload, _ := json.Marshal(map[string]any{
		"id": uuid.New().String(),
		"function": map[string]any{
			"name":      name,
			"arguments": string(arguments),
		},
	})
	return payload
}

func lastUserMessage(messages []orchestrator.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return strings.TrimRight(fields[len(fields)-1], ".!?")
}

func tokenEstimate(messages []orchestrator.Message) int {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n
}
