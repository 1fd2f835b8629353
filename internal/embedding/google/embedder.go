package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"

	"github.com/ThatCatDev/slusha/server/internal/embedding"
)

// maxBatch is the per-request limit of batchEmbedContents.
const maxBatch = 100

// Embedder calls the Gemini embedding API.
type Embedder struct {
	options embedding.Options
	client  *genai.Client
}

// New creates a Gemini embedder. Vectors longer than the configured
// dimension are truncated and renormalized; gemini-embedding-001 is trained
// so that its leading components stand on their own.
func New(ctx context.Context, opts ...embedding.Option) (*Embedder, error) {
	options := embedding.NewOptions(opts...)
	if options.Model == "" {
		options.Model = "models/gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, genaiopt.WithAPIKey(options.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Embedder{options: options, client: client}, nil
}

func (e *Embedder) Dimension() int {
	return e.options.Dimensions
}

func (e *Embedder) Embed(ctx context.Context, text string, intent embedding.Intent) ([]float32, error) {
	if text == "" {
		return nil, embedding.ErrEmptyText
	}

	rsp, err := e.model(intent).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", embedding.ErrProvider, err)
	}
	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: %w", embedding.ErrProvider, errors.New("no response from Google"))
	}

	return embedding.Finalize(rsp.Embedding.Values, e.options.Dimensions)
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, intent embedding.Intent) ([][]float32, error) {
	if err := embedding.CheckTexts(texts); err != nil {
		return nil, err
	}

	model := e.model(intent)
	return embedding.Chunked(ctx, texts, maxBatch, 4, func(ctx context.Context, chunk []string) ([][]float32, error) {
		batch := model.NewBatch()
		for _, t := range chunk {
			batch.AddContent(genai.Text(t))
		}

		rsp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", embedding.ErrProvider, err)
		}
		if rsp == nil || len(rsp.Embeddings) != len(chunk) {
			return nil, fmt.Errorf("%w: %w", embedding.ErrProvider, errors.New("incomplete batch response from Google"))
		}

		out := make([][]float32, len(chunk))
		for i, emb := range rsp.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("text %d: %w", i, embedding.ErrZeroVector)
			}
			v, err := embedding.Finalize(emb.Values, e.options.Dimensions)
			if err != nil {
				return nil, fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	})
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	return e.client.Close()
}

func (e *Embedder) model(intent embedding.Intent) *genai.EmbeddingModel {
	model := e.client.EmbeddingModel(e.options.Model)
	model.TaskType = taskType(intent)
	return model
}

func taskType(intent embedding.Intent) genai.TaskType {
	if intent == embedding.IntentQuery {
		return genai.TaskTypeRetrievalQuery
	}
	return genai.TaskTypeRetrievalDocument
}
