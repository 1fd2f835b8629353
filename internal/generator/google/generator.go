package google

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"

	"github.com/ThatCatDev/slusha/server/internal/generator"
	"github.com/ThatCatDev/slusha/server/internal/store"
)

// Generator talks to Gemini through a chat session seeded with history.
type Generator struct {
	options generator.Options
	client  *genai.Client
}

func New(ctx context.Context, opts ...generator.Option) (*Generator, error) {
	options := generator.NewOptions(opts...)
	if options.Model == "" {
		options.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, genaiopt.WithAPIKey(options.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Generator{options: options, client: client}, nil
}

func (g *Generator) Generate(ctx context.Context, req generator.Request) (string, error) {
	model := g.client.GenerativeModel(g.options.Model)
	model.SystemInstruction = systemInstruction(req.System)

	cs := model.StartChat()
	cs.History = history(generator.Trim(req.History, g.options.MaxHistory))

	rsp, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return "", err
	}

	if len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil {
		return "", generator.ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range rsp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", generator.ErrEmptyResponse
	}
	return b.String(), nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

// systemInstruction carries the prompt as role-less content; nil when blank.
func systemInstruction(prompt string) *genai.Content {
	if prompt == "" {
		return nil
	}
	return &genai.Content{Parts: []genai.Part{genai.Text(prompt)}}
}

func history(msgs []store.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		out = append(out, &genai.Content{
			Role:  role(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return out
}

// role maps stored roles onto Gemini's user/model pair.
func role(r string) string {
	if r == store.RoleUser {
		return "user"
	}
	return "model"
}
