package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ThatCatDev/slusha/server/internal/embedding"
)

const maxBatch = 256

// Embedder calls an OpenAI-compatible /embeddings endpoint. With a base URL
// it also serves local llama.cpp or vLLM embedding servers.
type Embedder struct {
	options embedding.Options
	client  *openai.Client
}

func New(opts ...embedding.Option) *Embedder {
	options := embedding.NewOptions(opts...)
	if options.Model == "" {
		options.Model = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		cfg.BaseURL = options.BaseURL
	}

	return &Embedder{
		options: options,
		client:  openai.NewClientWithConfig(cfg),
	}
}

func (e *Embedder) Dimension() int {
	return e.options.Dimensions
}

// Embed ignores intent; OpenAI embedding models are symmetric.
func (e *Embedder) Embed(ctx context.Context, text string, intent embedding.Intent) ([]float32, error) {
	if text == "" {
		return nil, embedding.ErrEmptyText
	}
	vecs, err := e.create(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, intent embedding.Intent) ([][]float32, error) {
	if err := embedding.CheckTexts(texts); err != nil {
		return nil, err
	}
	return embedding.Chunked(ctx, texts, maxBatch, 4, e.create)
}

func (e *Embedder) create(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.options.Model),
	}
	// Only the v3 models accept a shortened output size.
	if e.options.Dimensions > 0 && strings.HasPrefix(e.options.Model, "text-embedding-3") {
		req.Dimensions = e.options.Dimensions
	}

	rsp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", embedding.ErrProvider, err)
	}
	if len(rsp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %w", embedding.ErrProvider, errors.New("no response from OpenAI"))
	}

	out := make([][]float32, len(texts))
	for i, d := range rsp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		v, err := embedding.Finalize(d.Embedding, e.options.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", idx, err)
		}
		out[idx] = v
	}
	return out, nil
}
