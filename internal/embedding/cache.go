package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider memoizes document embeddings. Query embeddings are always
// computed fresh since user messages rarely repeat verbatim.
type CachedProvider struct {
	Provider
	cache *ristretto.Cache
}

// Cached wraps p with a cache holding up to size document vectors.
func Cached(p Provider, size int) (*CachedProvider, error) {
	if size < 1 {
		size = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedProvider{Provider: p, cache: cache}, nil
}

func (c *CachedProvider) Embed(ctx context.Context, text string, intent Intent) ([]float32, error) {
	if intent != IntentDocument {
		return c.Provider.Embed(ctx, text, intent)
	}
	if v, ok := c.get(text); ok {
		return v, nil
	}

	v, err := c.Provider.Embed(ctx, text, intent)
	if err != nil {
		return nil, err
	}
	c.set(text, v)
	return v, nil
}

func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string, intent Intent) ([][]float32, error) {
	if intent != IntentDocument {
		return c.Provider.EmbedBatch(ctx, texts, intent)
	}

	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.Provider.EmbedBatch(ctx, missing, intent)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProvider, len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.set(missing[j], v)
	}
	return out, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedProvider) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *CachedProvider) Close() {
	c.cache.Close()
}

func (c *CachedProvider) get(text string) ([]float32, bool) {
	v, ok := c.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return clone(vec), true
}

func (c *CachedProvider) set(text string, v []float32) {
	c.cache.Set(text, clone(v), 1)
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
