// Package google adapts Gemini's generateContent API to model.ChatModel,
// adapted from the teacher's graph/model/google package.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/toolforge/agentgraph/internal/engine/model"
)

// ChatModel implements model.ChatModel for Gemini models.
type ChatModel struct {
	apiKey       string
	defaultModel string
}

func NewChatModel(apiKey, defaultModel string) *ChatModel {
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}
	return &ChatModel{apiKey: apiKey, defaultModel: defaultModel}
}

func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	if m.apiKey == "" {
		return model.ChatOut{}, errors.New("google API key is required")
	}
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: new client: %w", err)
	}
	defer func() { _ = client.Close() }()

	modelName := opts.Model
	if modelName == "" {
		modelName = m.defaultModel
	}
	genModel := client.GenerativeModel(modelName)
	temp := float32(opts.Temperature)
	genModel.Temperature = &temp
	if opts.JSONOutput {
		genModel.ResponseMIMEType = "application/json"
	}

	system, parts := convertMessages(messages)
	if system != "" {
		genModel.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: %w", err)
	}
	return convertResponse(resp), nil
}

func convertMessages(messages []model.Message) (string, []genai.Part) {
	var system string
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	return system, parts
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	var text string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return model.ChatOut{Text: text}
}
