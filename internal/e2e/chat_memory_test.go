package e2e

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThatCatDev/slusha/server/internal/chat"
	"github.com/ThatCatDev/slusha/server/internal/chatctx"
	"github.com/ThatCatDev/slusha/server/internal/embedding/embeddingtest"
	"github.com/ThatCatDev/slusha/server/internal/generator"
	"github.com/ThatCatDev/slusha/server/internal/memory"
	"github.com/ThatCatDev/slusha/server/internal/store"
	"github.com/ThatCatDev/slusha/server/internal/store/memstore"
	"github.com/ThatCatDev/slusha/server/internal/vectorindex/chromem"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const embedDim = 64

type recordingGenerator struct {
	mu       sync.Mutex
	requests []generator.Request
}

func (g *recordingGenerator) Generate(ctx context.Context, req generator.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return "*nods* " + req.Message, nil
}

func (g *recordingGenerator) last() generator.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

// stack is one process lifetime of the chat pipeline over a shared store
// and an on-disk index directory.
type stack struct {
	index *chromem.Registry
	coord *memory.Coordinator
	gen   *recordingGenerator
	svc   *chat.Service
}

func newStack(t *testing.T, st *memstore.Store, embed *embeddingtest.Fake, dir string) *stack {
	t.Helper()
	index, err := chromem.NewRegistry(dir, embedDim, nil)
	require.NoError(t, err)

	s := &stack{index: index, gen: &recordingGenerator{}}
	s.coord = memory.New(true, st, embed, index, nil)
	retriever := chatctx.NewRetriever(chatctx.Config{
		MemoryEnabled:       true,
		TopK:                3,
		SimilarityThreshold: 0.95,
		RecentMessages:      2,
	}, st, st, embed, index, nil)
	s.svc = chat.NewService(st, retriever, s.coord, s.gen, 20, nil)
	return s
}

func (s *stack) close() {
	s.coord.Wait()
	s.index.Close()
}

func (s *stack) send(t *testing.T, conv int64, text string) *chat.Turn {
	t.Helper()
	turn, err := s.svc.SendMessage(context.Background(), conv, text)
	require.NoError(t, err)
	s.coord.Wait()
	return turn
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestLongTermMemoryAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	st := memstore.New()
	embed := embeddingtest.New(embedDim)

	const fact = "My sword is called Frostbite."
	const question = "What was my sword called again?"
	embed.Set(question, embeddingtest.Hash(fact, embedDim))

	conv := st.CreateConversation(store.Conversation{
		UserName:        "Ann",
		CharacterName:   "Bob",
		CharacterPrompt: "You are {{char}}, a blacksmith.",
	}).ID

	s := newStack(t, st, embed, dir)
	first := s.send(t, conv, fact)
	s.send(t, conv, "The weather is nice today.")
	s.send(t, conv, "Let's get lunch.")

	stats, err := s.coord.Stats(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalMessages)
	assert.Equal(t, 6, stats.TotalVectors)
	s.close()

	// A fresh process reads the same index from disk.
	s = newStack(t, st, embed, dir)
	defer s.close()

	turn := s.send(t, conv, question)
	assert.InDelta(t, 1.0, turn.RetrievalScores[first.UserMessage.ID], 1e-4)

	req := s.gen.last()
	assert.Contains(t, req.System, "You are Bob, a blacksmith.")
	assert.Contains(t, req.System, "User: "+fact)

	// The old fact leads, followed by the two-message recency window.
	require.Len(t, req.History, 3)
	assert.Equal(t, fact, req.History[0].Content)
	assert.Equal(t, "Let's get lunch.", req.History[1].Content)
	assert.Equal(t, "*nods* Let's get lunch.", req.History[2].Content)
}

func TestForgetMessage(t *testing.T) {
	st := memstore.New()
	embed := embeddingtest.New(embedDim)
	const question = "Do you remember the secret?"
	embed.Set(question, embeddingtest.Hash("The secret is 42.", embedDim))

	conv := st.CreateConversation(store.Conversation{UserName: "Ann", CharacterName: "Bob"}).ID
	s := newStack(t, st, embed, t.TempDir())
	defer s.close()

	secret := s.send(t, conv, "The secret is 42.")
	s.send(t, conv, "Anyway.")
	s.send(t, conv, "Moving on.")

	found, err := s.coord.DeleteMessageMemory(context.Background(), conv, secret.UserMessage.ID)
	require.NoError(t, err)
	assert.True(t, found)

	turn := s.send(t, conv, question)
	assert.NotContains(t, turn.RetrievalScores, secret.UserMessage.ID)
	assert.NotContains(t, s.gen.last().System, "The secret is 42.")

	// Reindexing from history brings it back.
	n, err := s.coord.Reindex(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	turn = s.send(t, conv, question)
	assert.Contains(t, turn.RetrievalScores, secret.UserMessage.ID)
}
