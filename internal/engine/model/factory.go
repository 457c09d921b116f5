package model

import (
	"fmt"

	"github.com/toolforge/agentgraph/internal/engine/model/anthropic"
	"github.com/toolforge/agentgraph/internal/engine/model/google"
	"github.com/toolforge/agentgraph/internal/engine/model/openai"
)

// New builds the configured provider's ChatModel. provider is one of
// "anthropic", "openai", "google"; defaultModel may be empty to take the
// provider's own default.
func New(provider, apiKey, defaultModel string) (ChatModel, error) {
	switch provider {
	case "anthropic", "":
		return anthropic.NewChatModel(apiKey, defaultModel), nil
	case "openai":
		return openai.NewChatModel(apiKey, defaultModel), nil
	case "google":
		return google.NewChatModel(apiKey, defaultModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
