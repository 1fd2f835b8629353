// Package memory keeps each conversation's vector index in step with its
// message history. Failures here never reach the chat flow: they are logged
// and the conversation simply has less to recall.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/embedding"
	"github.com/ThatCatDev/slusha/server/internal/logging"
	"github.com/ThatCatDev/slusha/server/internal/store"
	"github.com/ThatCatDev/slusha/server/internal/vectorindex"
)

// ErrDisabled is returned by operations that make no sense with memory off.
var ErrDisabled = errors.New("memory is disabled")

// Stats describes the memory state of one conversation.
type Stats struct {
	Enabled       bool
	TotalMessages int
	vectorindex.Stats
}

// Coordinator owns the write path of conversation memory.
type Coordinator struct {
	enabled  bool
	messages store.MessageStore
	embedder embedding.Provider
	index    vectorindex.Index
	log      logrus.FieldLogger

	wg sync.WaitGroup
}

// New creates a Coordinator. With enabled unset every operation is a no-op.
func New(enabled bool, messages store.MessageStore, embedder embedding.Provider, index vectorindex.Index, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		enabled:  enabled,
		messages: messages,
		embedder: embedder,
		index:    index,
		log:      logging.OrDiscard(log).WithField("component", "memory"),
	}
}

// Enabled reports whether memory indexing is on.
func (c *Coordinator) Enabled() bool {
	return c.enabled
}

// StoreMessage embeds an already persisted message and inserts it into its
// conversation's index. It always returns m.ID; failures are only logged.
func (c *Coordinator) StoreMessage(ctx context.Context, m store.Message) int64 {
	if !c.enabled {
		return m.ID
	}

	log := c.log.WithFields(logrus.Fields{"conversation_id": m.ConversationID, "message_id": m.ID})

	vec, err := c.embedder.Embed(ctx, m.Content, embedding.IntentDocument)
	if err == nil && embedding.IsZero(vec) {
		err = embedding.ErrZeroVector
	}
	if err != nil {
		log.WithError(err).Warn("Skipping memory indexing: embedding failed")
		return m.ID
	}

	entry := vectorindex.NewEntry(m.ConversationID, m.ID, m.Role, m.Content, vec, m.CreatedAt)
	if err := c.index.Insert(ctx, entry); err != nil {
		log.WithError(err).Warn("Skipping memory indexing: index write failed")
	}
	return m.ID
}

// StoreMessageAsync runs StoreMessage in the background. The work outlives
// ctx's cancellation but keeps its values; Wait blocks until it finishes.
func (c *Coordinator) StoreMessageAsync(ctx context.Context, m store.Message) {
	if !c.enabled {
		return
	}
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.StoreMessage(ctx, m)
	}()
}

// Wait blocks until background indexing has drained.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// IndexExistingMessages embeds the whole history of a conversation and
// rebuilds its index. It does nothing when the index already holds at least
// as many vectors as there are non-blank messages. A message whose embedding
// comes back all-zero stays missing and is retried on the next call. Returns
// the number of messages processed, or 0 on no-op or error.
func (c *Coordinator) IndexExistingMessages(ctx context.Context, conversationID int64) int {
	if !c.enabled {
		return 0
	}

	log := c.log.WithField("conversation_id", conversationID)
	n, err := c.indexExisting(ctx, conversationID)
	if err != nil {
		log.WithError(err).Warn("Failed to index existing messages")
		return 0
	}
	if n > 0 {
		log.WithField("messages", n).Info("Indexed existing messages")
	}
	return n
}

func (c *Coordinator) indexExisting(ctx context.Context, conversationID int64) (int, error) {
	msgs, err := c.messages.ListMessages(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	// Blank messages have nothing to embed.
	embeddable := msgs[:0:0]
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		embeddable = append(embeddable, m)
		texts = append(texts, m.Content)
	}
	if len(embeddable) == 0 {
		return 0, nil
	}

	stats, err := c.index.Stats(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("index stats: %w", err)
	}
	if stats.TotalVectors >= len(embeddable) {
		return 0, nil
	}

	vecs, err := c.embedder.EmbedBatch(ctx, texts, embedding.IntentDocument)
	if err != nil {
		return 0, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(embeddable) {
		return 0, fmt.Errorf("%w: got %d vectors for %d messages", embedding.ErrProvider, len(vecs), len(embeddable))
	}

	entries := make([]vectorindex.Entry, 0, len(embeddable))
	for i, m := range embeddable {
		if embedding.IsZero(vecs[i]) {
			c.log.WithFields(logrus.Fields{"conversation_id": conversationID, "message_id": m.ID}).
				Warn("Skipping message with zero embedding")
			continue
		}
		entries = append(entries, vectorindex.NewEntry(conversationID, m.ID, m.Role, m.Content, vecs[i], m.CreatedAt))
	}

	if err := c.index.Rebuild(ctx, conversationID, entries); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	return len(msgs), nil
}

// DeleteConversationMemory drops every vector of a conversation.
func (c *Coordinator) DeleteConversationMemory(ctx context.Context, conversationID int64) error {
	if err := c.index.DeleteAll(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation memory: %w", err)
	}
	return nil
}

// DeleteMessageMemory removes one message from its conversation's index.
func (c *Coordinator) DeleteMessageMemory(ctx context.Context, conversationID, messageID int64) (bool, error) {
	ok, err := c.index.Delete(ctx, conversationID, messageID)
	if err != nil {
		return false, fmt.Errorf("delete message memory: %w", err)
	}
	return ok, nil
}

// Memories lists what a conversation's index holds, oldest first.
func (c *Coordinator) Memories(ctx context.Context, conversationID int64) ([]vectorindex.Entry, error) {
	entries, err := c.index.Entries(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return entries, nil
}

// EnsureIndexed indexes a conversation's history if its index is empty.
// It reports false when that could not be checked or done; callers then
// carry on with recency-only context.
func (c *Coordinator) EnsureIndexed(ctx context.Context, conversationID int64) bool {
	if !c.enabled {
		return true
	}

	stats, err := c.index.Stats(ctx, conversationID)
	if err != nil {
		c.log.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to check memory index")
		return false
	}
	if stats.TotalVectors > 0 {
		return true
	}

	if _, err := c.indexExisting(ctx, conversationID); err != nil {
		c.log.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to index conversation")
		return false
	}
	return true
}

// Reindex drops a conversation's index and rebuilds it from history.
func (c *Coordinator) Reindex(ctx context.Context, conversationID int64) (int, error) {
	if !c.enabled {
		return 0, ErrDisabled
	}
	if err := c.DeleteConversationMemory(ctx, conversationID); err != nil {
		return 0, err
	}
	return c.IndexExistingMessages(ctx, conversationID), nil
}

// Stats returns index statistics alongside the message count.
func (c *Coordinator) Stats(ctx context.Context, conversationID int64) (Stats, error) {
	s := Stats{Enabled: c.enabled}

	n, err := c.messages.CountMessages(ctx, conversationID)
	if err != nil {
		return s, fmt.Errorf("count messages: %w", err)
	}
	s.TotalMessages = n

	// The index stays readable with memory off, so vectors from earlier runs
	// are still reported.
	idx, err := c.index.Stats(ctx, conversationID)
	if err != nil {
		return s, fmt.Errorf("index stats: %w", err)
	}
	s.Stats = idx
	return s, nil
}
