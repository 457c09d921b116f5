// Package anthropic adapts Anthropic's Messages API to model.ChatModel,
// adapted from the teacher's graph/model/anthropic package.
package anthropic

import (
	"errors"
	"fmt"

	"context"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/toolforge/agentgraph/internal/engine/model"
)

// ChatModel implements model.ChatModel for Claude.
type ChatModel struct {
	apiKey       string
	defaultModel string
}

func NewChatModel(apiKey, defaultModel string) *ChatModel {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-5-20250929"
	}
	return &ChatModel{apiKey: apiKey, defaultModel: defaultModel}
}

func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	if m.apiKey == "" {
		return model.ChatOut{}, errors.New("anthropic API key is required")
	}
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = m.defaultModel
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	systemPrompt, turns := extractSystemPrompt(messages)

	client := anthropicsdk.NewClient(option.WithAPIKey(m.apiKey))
	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(modelName),
		Messages:    convertMessages(turns),
		MaxTokens:   maxTokens,
		Temperature: anthropicsdk.Float(opts.Temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return model.ChatOut{Text: text}, nil
}

func extractSystemPrompt(messages []model.Message) (string, []model.Message) {
	var system string
	var rest []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

func convertMessages(messages []model.Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			out[i] = anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content))
		default:
			out[i] = anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content))
		}
	}
	return out
}
