package orchestrator

import (
	"fmt"
	"strings"

	"github.com/halcyon-ai/halcyon/pkg/models"
)

// DefaultMaxHistoryTurns bounds how many trailing conversation turns
// are replayed into the provider message list.
const DefaultMaxHistoryTurns = 50

// buildSystemPrompt embeds the session identity, any retrieved
// context, and the descriptions of the tools enabled for this request.
func buildSystemPrompt(session *models.Session, toolDefs []models.ToolDefinition, relevantContext string) string {
	var b strings.Builder
	b.WriteString("You are an operations assistant for inventory and supplier management.\n")
	fmt.Fprintf(&b, "Session: %s (user %s", session.ID, session.UserID)
	if session.OrgID != "" {
		fmt.Fprintf(&b, ", org %s", session.OrgID)
	}
	b.WriteString(")\n")

	if relevantContext != "" {
		b.WriteString("\n")
		b.WriteString(relevantContext)
	}

	if len(toolDefs) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, def := range toolDefs {
			fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		}
	}
	return b.String()
}

// buildMessages assembles the provider message list: system prompt,
// the trailing user/assistant turns up to maxTurns, then the new user
// message. Tool and system turns are filtered out of the replayed
// history.
func buildMessages(systemPrompt string, history []models.ConversationTurn, userMessage string, maxTurns int) []Message {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxHistoryTurns
	}

	conversational := make([]models.ConversationTurn, 0, len(history))
	for _, turn := range history {
		if turn.Role == models.RoleUser || turn.Role == models.RoleAssistant {
			conversational = append(conversational, turn)
		}
	}
	if len(conversational) > maxTurns {
		conversational = conversational[len(conversational)-maxTurns:]
	}

	messages := make([]Message, 0, len(conversational)+2)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	for _, turn := range conversational {
		messages = append(messages, Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, Message{Role: "user", Content: userMessage})
	return messages
}
