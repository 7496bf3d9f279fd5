package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a single chat-completion backend. Implementations return
// *CompletionError for failures they can classify.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
