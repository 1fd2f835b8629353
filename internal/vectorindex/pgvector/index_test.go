package pgvector

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThatCatDev/slusha/server/internal/vectorindex"
)

func TestSchemaUsesDimension(t *testing.T) {
	x := New(nil, 768, nil)
	schema := x.Schema()
	require.Len(t, schema, 2)
	assert.Contains(t, schema[1], "embedding vector(768)")
	assert.Contains(t, schema[1], "PRIMARY KEY (conversation_id, message_id)")
}

func TestUpsertReplacesOnConflict(t *testing.T) {
	assert.Contains(t, upsertQuery, "ON CONFLICT (conversation_id, message_id) DO UPDATE")
	assert.True(t, strings.Contains(searchQuery, "WHERE conversation_id = $1"))
}

// Validation happens before the database is touched, so a nil connection is
// never dereferenced on these paths.
func TestRejectsBadVectorsBeforeQuerying(t *testing.T) {
	x := New(nil, 3, nil)
	ctx := context.Background()

	err := x.Insert(ctx, vectorindex.NewEntry(1, 1, "user", "hi", []float32{0, 0, 0}, time.Now()))
	assert.ErrorIs(t, err, vectorindex.ErrZeroVector)

	err = x.Insert(ctx, vectorindex.NewEntry(1, 1, "user", "hi", []float32{1, 0}, time.Now()))
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)

	_, err = x.Search(ctx, 1, []float32{0, 0, 0}, 5, 0)
	assert.ErrorIs(t, err, vectorindex.ErrZeroVector)

	err = x.Rebuild(ctx, 1, []vectorindex.Entry{
		vectorindex.NewEntry(1, 1, "user", "hi", []float32{1, 0, 0}, time.Now()),
		vectorindex.NewEntry(1, 2, "user", "yo", []float32{0, 0, 0}, time.Now()),
	})
	assert.ErrorIs(t, err, vectorindex.ErrZeroVector)
}

func TestSearchZeroTopK(t *testing.T) {
	x := New(nil, 3, nil)
	results, err := x.Search(context.Background(), 1, []float32{1, 0, 0}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEntriesQueryIsChronological(t *testing.T) {
	assert.Contains(t, entriesQuery, "WHERE conversation_id = $1")
	assert.Contains(t, entriesQuery, "ORDER BY created_at, message_id")
	assert.NotContains(t, entriesQuery, "embedding")
}
