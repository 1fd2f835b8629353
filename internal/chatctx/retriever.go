// Package chatctx assembles the memory context for a chat turn: recent
// history, semantically related older messages and triggered lorebook
// entries.
package chatctx

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/embedding"
	"github.com/ThatCatDev/slusha/server/internal/logging"
	"github.com/ThatCatDev/slusha/server/internal/store"
	"github.com/ThatCatDev/slusha/server/internal/vectorindex"
)

// Config configures retrieval.
type Config struct {
	MemoryEnabled       bool
	TopK                int     // semantic matches to fetch (default 5)
	SimilarityThreshold float64 // minimum cosine similarity
	RecentMessages      int     // size of the recency window
}

// RetrievedContext is the memory context built for a single turn.
type RetrievedContext struct {
	RecentMessages   []store.Message // oldest first
	RelevantMessages []store.Message // most similar first
	CombinedMessages []store.Message // relevant, then recent, deduplicated
	LorebookContext  []string
	RetrievalScores  map[int64]float64 // message id -> similarity
	MemoryEnabled    bool
}

// Retriever owns the read path of conversation memory.
type Retriever struct {
	cfg       Config
	messages  store.MessageStore
	lorebooks store.LorebookStore
	embedder  embedding.Provider
	index     vectorindex.Index
	log       logrus.FieldLogger
}

// NewRetriever creates a Retriever. embedder and index may be nil when
// memory is disabled.
func NewRetriever(cfg Config, messages store.MessageStore, lorebooks store.LorebookStore, embedder embedding.Provider, index vectorindex.Index, log logrus.FieldLogger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.RecentMessages < 0 {
		cfg.RecentMessages = 0
	}
	if embedder == nil || index == nil {
		cfg.MemoryEnabled = false
	}
	return &Retriever{
		cfg:       cfg,
		messages:  messages,
		lorebooks: lorebooks,
		embedder:  embedder,
		index:     index,
		log:       logging.OrDiscard(log).WithField("component", "retriever"),
	}
}

// GetContext gathers the context for message in a conversation. Lorebook
// and semantic search failures only shrink the result; an error is returned
// only when the recent history itself cannot be read.
func (r *Retriever) GetContext(ctx context.Context, conversationID int64, message string, names Names) (*RetrievedContext, error) {
	log := r.log.WithField("conversation_id", conversationID)

	rc := &RetrievedContext{
		RetrievalScores: make(map[int64]float64),
		MemoryEnabled:   r.cfg.MemoryEnabled,
	}

	entries, err := r.lorebooks.LorebookEntries(ctx, conversationID)
	if err != nil {
		log.WithError(err).Warn("Skipping lorebook: failed to load entries")
	}
	for _, content := range MatchLorebook(message, entries) {
		rc.LorebookContext = append(rc.LorebookContext, ReplacePlaceholders(content, names))
	}

	recent, err := r.messages.RecentMessages(ctx, conversationID, r.cfg.RecentMessages)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	rc.RecentMessages = substitute(recent, names)

	if !r.cfg.MemoryEnabled {
		rc.CombinedMessages = rc.RecentMessages
		return rc, nil
	}

	relevant, scores, err := r.search(ctx, conversationID, message)
	if err != nil {
		log.WithError(err).Warn("Semantic search failed, using recent messages only")
		relevant, scores = nil, nil
	}
	rc.RelevantMessages = substitute(relevant, names)
	for id, s := range scores {
		rc.RetrievalScores[id] = s
	}

	rc.CombinedMessages = merge(rc.RelevantMessages, rc.RecentMessages)
	return rc, nil
}

// search finds stored messages similar to message, most similar first.
func (r *Retriever) search(ctx context.Context, conversationID int64, message string) ([]store.Message, map[int64]float64, error) {
	if message == "" {
		return nil, nil, nil
	}

	q, err := r.embedder.Embed(ctx, message, embedding.IntentQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	if embedding.IsZero(q) {
		return nil, nil, embedding.ErrZeroVector
	}

	results, err := r.index.Search(ctx, conversationID, q, r.cfg.TopK, r.cfg.SimilarityThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("search index: %w", err)
	}
	if len(results) == 0 {
		return nil, nil, nil
	}

	ids := make([]int64, len(results))
	for i, res := range results {
		ids[i] = res.Entry.MessageID
	}
	byID, err := r.messages.MessagesByID(ctx, conversationID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve messages: %w", err)
	}

	msgs := make([]store.Message, 0, len(results))
	scores := make(map[int64]float64, len(results))
	for _, res := range results {
		// Indexed messages may have been deleted since.
		m, ok := byID[res.Entry.MessageID]
		if !ok {
			continue
		}
		msgs = append(msgs, m)
		scores[m.ID] = res.Score
	}
	return msgs, scores, nil
}

// substitute returns copies of msgs with display names filled in.
func substitute(msgs []store.Message, names Names) []store.Message {
	if len(msgs) == 0 {
		return []store.Message{}
	}
	out := make([]store.Message, len(msgs))
	for i, m := range msgs {
		m.Content = ReplacePlaceholders(m.Content, names)
		out[i] = m
	}
	return out
}
