// Package embeddingtest provides deterministic embedding providers for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/ThatCatDev/slusha/server/internal/embedding"
	"github.com/ThatCatDev/slusha/server/internal/vecmath"
)

// Fake embeds text by hashing it, unless a fixed vector is registered for
// that exact text. Set Err to make every call fail.
type Fake struct {
	Dim int

	mu      sync.Mutex
	vectors map[string][]float32
	err     error

	calls      atomic.Int64
	batchCalls atomic.Int64
}

// New returns a Fake producing dim-dimensional vectors.
func New(dim int) *Fake {
	return &Fake{Dim: dim, vectors: make(map[string][]float32)}
}

// Set pins the vector returned for text.
func (f *Fake) Set(text string, v []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[text] = v
}

// Fail makes subsequent calls return err. Pass nil to recover.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls returns the number of single Embed calls that reached the fake.
func (f *Fake) Calls() int64 { return f.calls.Load() }

// BatchCalls returns the number of EmbedBatch calls.
func (f *Fake) BatchCalls() int64 { return f.batchCalls.Load() }

func (f *Fake) Dimension() int { return f.Dim }

func (f *Fake) Embed(ctx context.Context, text string, intent embedding.Intent) ([]float32, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.vector(text)
}

func (f *Fake) EmbedBatch(ctx context.Context, texts []string, intent embedding.Intent) ([][]float32, error) {
	f.batchCalls.Add(1)
	if err := embedding.CheckTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.vector(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *Fake) vector(text string) ([]float32, error) {
	f.mu.Lock()
	err := f.err
	fixed, ok := f.vectors[text]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, embedding.ErrEmptyText
	}
	if ok {
		return embedding.Finalize(fixed, 0)
	}
	return Hash(text, f.Dim), nil
}

// Hash returns a deterministic unit vector derived from the FNV hash of text.
func Hash(text string, dim int) []float32 {
	vec := make([]float32, dim)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	for i := range vec {
		bits := seed ^ (uint64(i) * 0x9E3779B97F4A7C15)
		vec[i] = float32(bits%1000)/1000.0 + 0.001
	}

	vecmath.Normalize(vec)
	return vec
}
