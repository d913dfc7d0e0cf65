// Package chat implements the chat-completion backends behind the LLM
// client: an OpenAI-compatible adapter for every hosted provider and a
// local Ollama adapter, selected by the configured model source.
package chat

import (
	"context"
	"fmt"

	"github.com/marginalia-labs/marginalia/internal/types"
)

// Message is one turn of the conversation sent to a chat backend.
type Message struct {
	Role    string
	Content string
}

// ChatOptions tunes a single completion call.
type ChatOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ChatConfig selects and authenticates a backend.
type ChatConfig struct {
	Source    types.ModelSource
	BaseURL   string
	APIKey    string
	ModelName string
	ModelID   string
}

// Chat is implemented by every chat-completion backend.
type Chat interface {
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*types.ChatResponse, error)
	ChatStream(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan types.StreamResponse, error)
	GetModelName() string
	GetModelID() string
}

// NewChat builds a Chat backend from config, routing local sources to Ollama
// and everything else to the OpenAI-compatible client.
func NewChat(config *ChatConfig) (Chat, error) {
	if config == nil {
		return nil, fmt.Errorf("chat config is required")
	}
	switch config.Source {
	case types.ModelSourceLocal:
		return NewOllamaChat(config)
	case types.ModelSourceRemote:
		return NewOpenAIChat(config)
	default:
		return nil, fmt.Errorf("unsupported chat source: %s", config.Source)
	}
}
