// Package embedding turns message text into unit-length vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ThatCatDev/slusha/server/internal/vecmath"
)

// Intent tells the provider how the vector will be used. Retrieval models
// embed stored documents and search queries asymmetrically.
type Intent int

const (
	IntentDocument Intent = iota
	IntentQuery
)

func (i Intent) String() string {
	if i == IntentQuery {
		return "query"
	}
	return "document"
}

var (
	// ErrProvider wraps any failure of the upstream embedding service.
	ErrProvider = errors.New("embedding provider error")
	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("embedding text is empty")
	// ErrZeroVector is returned when the provider produced an all-zero vector.
	ErrZeroVector = errors.New("embedding is the zero vector")
)

// Provider maps text to fixed-dimension vectors.
type Provider interface {
	Embed(ctx context.Context, text string, intent Intent) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, intent Intent) ([][]float32, error)
	Dimension() int
}

// IsZero reports whether v is the all-zero failure sentinel.
func IsZero(v []float32) bool {
	return vecmath.IsZero(v)
}

// Finalize truncates v to dim components (when dim > 0 and v is longer),
// rejects the zero vector and normalizes the result to unit length.
func Finalize(v []float32, dim int) ([]float32, error) {
	if dim > 0 && len(v) > dim {
		v = v[:dim]
	}
	if vecmath.IsZero(v) {
		return nil, ErrZeroVector
	}
	return vecmath.Normalized(v), nil
}

// Chunked splits texts into chunks of at most size, embeds them with up to
// limit concurrent calls to fn and returns vectors in input order. Under
// WithTimeout each chunk gets its own deadline.
func Chunked(ctx context.Context, texts []string, size, limit int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if size < 1 {
		size = len(texts)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		g.Go(func() error {
			cctx, cancel := chunkContext(gctx)
			defer cancel()
			vecs, err := fn(cctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("%w: got %d vectors for %d texts", ErrProvider, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckTexts rejects a batch containing blank input.
func CheckTexts(texts []string) error {
	for i, t := range texts {
		if t == "" {
			return fmt.Errorf("text %d: %w", i, ErrEmptyText)
		}
	}
	return nil
}
