package vectorindex

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	assert.Equal(t, strings.Repeat("a", PreviewLength), Preview(strings.Repeat("a", 250)))

	// Counted in characters, not bytes.
	long := strings.Repeat("ж", 120)
	assert.Equal(t, strings.Repeat("ж", PreviewLength), Preview(long))
}

func TestNewEntryTrimsPreview(t *testing.T) {
	e := NewEntry(1, 2, "user", strings.Repeat("b", 300), []float32{1}, time.Now())
	assert.Len(t, e.ContentPreview, PreviewLength)
	assert.Equal(t, int64(1), e.ConversationID)
	assert.Equal(t, int64(2), e.MessageID)
}

func TestPrepare(t *testing.T) {
	v, err := Prepare([]float32{0, 3, 4}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.6, 0.8}, v, 1e-6)

	_, err = Prepare([]float32{0, 0, 0}, 3)
	assert.ErrorIs(t, err, ErrZeroVector)

	_, err = Prepare([]float32{1, 0}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// Input is not modified.
	in := []float32{2, 0}
	_, err = Prepare(in, 0)
	require.NoError(t, err)
	assert.Equal(t, float32(2), in[0])
}

func TestPrepareAllLastDuplicateWins(t *testing.T) {
	out, err := PrepareAll(9, []Entry{
		{MessageID: 1, Role: "user", Embedding: []float32{1, 0}},
		{MessageID: 2, Role: "assistant", Embedding: []float32{0, 1}},
		{MessageID: 1, Role: "assistant", Embedding: []float32{0, 2}},
	}, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].MessageID)
	assert.Equal(t, "assistant", out[0].Role)
	assert.Equal(t, int64(9), out[0].ConversationID)
	assert.InDeltaSlice(t, []float32{0, 1}, out[0].Embedding, 1e-6)
}

func TestFilter(t *testing.T) {
	in := []Result{
		{Entry: Entry{MessageID: 1}, Score: 0.4},
		{Entry: Entry{MessageID: 2}, Score: 0.9},
		{Entry: Entry{MessageID: 3}, Score: 0.7},
		{Entry: Entry{MessageID: 4}, Score: 0.7},
	}

	out := Filter(in, 2, 0.5)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].Entry.MessageID)
	assert.Equal(t, int64(3), out[1].Entry.MessageID)

	assert.Empty(t, Filter(in, 5, 0.95))
	assert.Len(t, Filter(in, 10, -1), 4)
}

func TestStatsAdd(t *testing.T) {
	var s Stats
	s.Add("user")
	s.Add("assistant")
	s.Add("user")
	s.Add("system")
	assert.Equal(t, Stats{TotalVectors: 4, UserCount: 2, AssistantCount: 1}, s)
}

func TestKeyedMutex(t *testing.T) {
	var k KeyedMutex
	assert.Same(t, k.Get(1), k.Get(1))
	assert.NotSame(t, k.Get(1), k.Get(2))
}

func TestSortEntries(t *testing.T) {
	base := time.Unix(1700000000, 0)
	entries := []Entry{
		{MessageID: 3, CreatedAt: base.Add(time.Second)},
		{MessageID: 2, CreatedAt: base},
		{MessageID: 1, CreatedAt: base},
	}
	SortEntries(entries)

	got := make([]int64, len(entries))
	for i, e := range entries {
		got[i] = e.MessageID
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}
