// Package provider defines the language-model interface behind the assistant.
package provider

import "context"

// Role identifies the sender of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response is a completed provider response.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider is a chat-completion backend.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "mock").
	Name() string

	// Chat sends the conversation and returns the model's reply. Transport
	// failures, non-success statuses and empty replies are all errors.
	Chat(ctx context.Context, messages []Message) (*Response, error)
}
