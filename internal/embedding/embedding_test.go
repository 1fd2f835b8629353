package embedding_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThatCatDev/slusha/server/internal/embedding"
	"github.com/ThatCatDev/slusha/server/internal/embedding/embeddingtest"
)

func TestFinalize(t *testing.T) {
	v, err := embedding.Finalize([]float32{3, 4, 100}, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, v, 1e-6)

	_, err = embedding.Finalize([]float32{0, 0, 5}, 2)
	assert.ErrorIs(t, err, embedding.ErrZeroVector)

	_, err = embedding.Finalize(nil, 0)
	assert.ErrorIs(t, err, embedding.ErrZeroVector)
}

func TestChunkedPreservesOrder(t *testing.T) {
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	var calls atomic.Int32
	out, err := embedding.Chunked(context.Background(), texts, 4, 2, func(_ context.Context, chunk []string) ([][]float32, error) {
		calls.Add(1)
		vecs := make([][]float32, len(chunk))
		for i, c := range chunk {
			var n int
			fmt.Sscanf(c, "t%d", &n)
			vecs[i] = []float32{float32(n)}
		}
		return vecs, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 25)
	for i, v := range out {
		assert.Equal(t, float32(i), v[0])
	}
	assert.Equal(t, int32(7), calls.Load())
}

func TestChunkedError(t *testing.T) {
	boom := errors.New("boom")
	_, err := embedding.Chunked(context.Background(), []string{"a", "b", "c"}, 1, 0, func(_ context.Context, chunk []string) ([][]float32, error) {
		if chunk[0] == "b" {
			return nil, boom
		}
		return [][]float32{{1}}, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestChunkedShortResponse(t *testing.T) {
	_, err := embedding.Chunked(context.Background(), []string{"a", "b"}, 2, 0, func(_ context.Context, chunk []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	})
	assert.ErrorIs(t, err, embedding.ErrProvider)
}

type slowProvider struct {
	*embeddingtest.Fake
}

func (s slowProvider) Embed(ctx context.Context, text string, intent embedding.Intent) ([]float32, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", embedding.ErrProvider, ctx.Err())
}

func TestWithTimeout(t *testing.T) {
	p := embedding.WithTimeout(slowProvider{embeddingtest.New(4)}, 20*time.Millisecond)

	start := time.Now()
	_, err := p.Embed(context.Background(), "hello", embedding.IntentQuery)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// chunkedProvider embeds one text per chunk, taking delay for each.
type chunkedProvider struct {
	*embeddingtest.Fake
	delay time.Duration
}

func (p chunkedProvider) EmbedBatch(ctx context.Context, texts []string, intent embedding.Intent) ([][]float32, error) {
	return embedding.Chunked(ctx, texts, 1, 1, func(ctx context.Context, chunk []string) ([][]float32, error) {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", embedding.ErrProvider, ctx.Err())
		}
		return p.Fake.EmbedBatch(ctx, chunk, intent)
	})
}

func TestWithTimeoutAppliesPerChunk(t *testing.T) {
	p := embedding.WithTimeout(chunkedProvider{Fake: embeddingtest.New(4), delay: 20 * time.Millisecond}, 100*time.Millisecond)
	texts := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	start := time.Now()
	vecs, err := p.EmbedBatch(context.Background(), texts, embedding.IntentDocument)
	require.NoError(t, err)
	assert.Len(t, vecs, len(texts))
	// The batch as a whole outlived the timeout.
	assert.Greater(t, time.Since(start), 100*time.Millisecond)
}

func TestWithTimeoutSlowChunkFails(t *testing.T) {
	p := embedding.WithTimeout(chunkedProvider{Fake: embeddingtest.New(4), delay: time.Second}, 20*time.Millisecond)

	start := time.Now()
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"}, embedding.IntentDocument)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestWithTimeoutZeroIsPassthrough(t *testing.T) {
	f := embeddingtest.New(4)
	assert.Same(t, f, embedding.WithTimeout(f, 0))
}

func TestCachedDocumentIntent(t *testing.T) {
	f := embeddingtest.New(8)
	c, err := embedding.Cached(f, 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, "the dragon sleeps", embedding.IntentDocument)
	require.NoError(t, err)
	c.Wait()

	second, err := c.Embed(ctx, "the dragon sleeps", embedding.IntentDocument)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), f.Calls())

	// Mutating a returned vector must not poison the cache.
	second[0] = 42
	third, err := c.Embed(ctx, "the dragon sleeps", embedding.IntentDocument)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestCachedQueryIntentBypasses(t *testing.T) {
	f := embeddingtest.New(8)
	c, err := embedding.Cached(f, 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	for range 3 {
		_, err := c.Embed(ctx, "where is the sword?", embedding.IntentQuery)
		require.NoError(t, err)
		c.Wait()
	}
	assert.Equal(t, int64(3), f.Calls())
}

func TestCachedBatchOnlyEmbedsMisses(t *testing.T) {
	f := embeddingtest.New(8)
	c, err := embedding.Cached(f, 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	warm, err := c.Embed(ctx, "b", embedding.IntentDocument)
	require.NoError(t, err)
	c.Wait()

	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"}, embedding.IntentDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, warm, vecs[1])
	assert.Equal(t, embeddingtest.Hash("a", 8), vecs[0])
	assert.Equal(t, embeddingtest.Hash("c", 8), vecs[2])
	assert.Equal(t, int64(1), f.BatchCalls())
}

func TestCachedErrorsAreNotCached(t *testing.T) {
	f := embeddingtest.New(8)
	c, err := embedding.Cached(f, 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	f.Fail(embedding.ErrProvider)
	_, err = c.Embed(ctx, "x", embedding.IntentDocument)
	require.ErrorIs(t, err, embedding.ErrProvider)
	c.Wait()

	f.Fail(nil)
	v, err := c.Embed(ctx, "x", embedding.IntentDocument)
	require.NoError(t, err)
	assert.False(t, embedding.IsZero(v))
}

func TestIntentString(t *testing.T) {
	assert.Equal(t, "document", embedding.IntentDocument.String())
	assert.Equal(t, "query", embedding.IntentQuery.String())
}
