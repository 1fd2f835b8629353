package embedding

import (
	"context"
	"time"
)

type timeoutProvider struct {
	Provider
	d time.Duration
}

// WithTimeout bounds every call to p by d. Batches split by Chunked get d
// per chunk rather than for the whole batch. A non-positive d returns p.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{Provider: p, d: d}
}

func (t *timeoutProvider) Embed(ctx context.Context, text string, intent Intent) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Provider.Embed(ctx, text, intent)
}

func (t *timeoutProvider) EmbedBatch(ctx context.Context, texts []string, intent Intent) ([][]float32, error) {
	return t.Provider.EmbedBatch(withChunkTimeout(ctx, t.d), texts, intent)
}

type chunkTimeoutKey struct{}

func withChunkTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, chunkTimeoutKey{}, d)
}

// chunkContext applies the per-chunk deadline set by WithTimeout, if any.
func chunkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d, ok := ctx.Value(chunkTimeoutKey{}).(time.Duration); ok && d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}
