package openai

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/ThatCatDev/slusha/server/internal/generator"
	"github.com/ThatCatDev/slusha/server/internal/store"
)

// Generator calls an OpenAI-compatible chat completions endpoint.
type Generator struct {
	options generator.Options
	client  *openai.Client
}

func New(opts ...generator.Option) *Generator {
	options := generator.NewOptions(opts...)
	if options.Model == "" {
		options.Model = openai.GPT4oMini
	}

	cfg := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		cfg.BaseURL = options.BaseURL
	}

	return &Generator{
		options: options,
		client:  openai.NewClientWithConfig(cfg),
	}
}

func (g *Generator) Generate(ctx context.Context, req generator.Request) (string, error) {
	rsp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.options.Model,
		Messages: messages(req, g.options.MaxHistory),
	})
	if err != nil {
		return "", err
	}

	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return "", generator.ErrEmptyResponse
	}
	return rsp.Choices[0].Message.Content, nil
}

func messages(req generator.Request, maxHistory int) []openai.ChatCompletionMessage {
	history := generator.Trim(req.History, maxHistory)
	out := make([]openai.ChatCompletionMessage, 0, len(history)+2)

	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range history {
		r := openai.ChatMessageRoleAssistant
		if m.Role == store.RoleUser {
			r = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: r, Content: m.Content})
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
}
