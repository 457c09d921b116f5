// Package openai adapts OpenAI's chat completions API to model.ChatModel,
// adapted from the teacher's graph/model/openai package.
package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/toolforge/agentgraph/internal/engine/model"
)

// ChatModel implements model.ChatModel for GPT models.
type ChatModel struct {
	apiKey       string
	defaultModel string
}

func NewChatModel(apiKey, defaultModel string) *ChatModel {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &ChatModel{apiKey: apiKey, defaultModel: defaultModel}
}

func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	if m.apiKey == "" {
		return model.ChatOut{}, errors.New("openai API key is required")
	}
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = m.defaultModel
	}

	client := openaisdk.NewClient(option.WithAPIKey(m.apiKey))
	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(modelName),
		Messages:    convertMessages(messages),
		Temperature: openaisdk.Float(opts.Temperature),
	}
	if opts.JSONOutput {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openaisdk.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai: empty choices in response")
	}
	return model.ChatOut{Text: resp.Choices[0].Message.Content}, nil
}

func convertMessages(messages []model.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out[i] = openaisdk.SystemMessage(msg.Content)
		case model.RoleAssistant:
			out[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			out[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return out
}
