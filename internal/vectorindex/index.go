// Package vectorindex defines the per-conversation similarity index used for
// message memory. Backends live in subpackages.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ThatCatDev/slusha/server/internal/vecmath"
)

// PreviewLength is the maximum number of characters kept from a message.
const PreviewLength = 100

var (
	// ErrZeroVector rejects embeddings with no direction; they come from a
	// failed upstream call and would match nothing meaningfully.
	ErrZeroVector = errors.New("zero embedding vector")
	// ErrDimensionMismatch is returned when a vector does not match the index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIndexIO wraps persistence failures of a backend.
	ErrIndexIO = errors.New("vector index i/o")
)

// Entry is one indexed message.
type Entry struct {
	MessageID      int64     `json:"message_id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	ContentPreview string    `json:"content_preview"`
	CreatedAt      time.Time `json:"created_at"`
	Embedding      []float32 `json:"-"`
}

// Result is a search hit. Entry.Embedding is not populated.
type Result struct {
	Entry Entry
	Score float64
}

// SortEntries orders entries by creation time, then message id.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].MessageID < entries[j].MessageID
	})
}

// Stats summarizes a conversation's index.
type Stats struct {
	TotalVectors   int
	UserCount      int
	AssistantCount int
	Dimension      int
}

// Index is a set of per-conversation partitions. Implementations must
// serialize writes per conversation and keep conversations isolated.
type Index interface {
	// Insert adds or replaces the entry for e.MessageID.
	Insert(ctx context.Context, e Entry) error
	// Search returns at most topK entries scoring at least threshold, best first.
	// An unknown conversation yields no results.
	Search(ctx context.Context, conversationID int64, query []float32, topK int, threshold float64) ([]Result, error)
	// Delete removes one entry and reports whether it existed.
	Delete(ctx context.Context, conversationID, messageID int64) (bool, error)
	// DeleteAll drops every entry of a conversation. Idempotent.
	DeleteAll(ctx context.Context, conversationID int64) error
	// Rebuild atomically replaces a conversation's entries.
	Rebuild(ctx context.Context, conversationID int64, entries []Entry) error
	// Entries lists a conversation's entries oldest first, without
	// embeddings. An unknown conversation yields none.
	Entries(ctx context.Context, conversationID int64) ([]Entry, error)
	Stats(ctx context.Context, conversationID int64) (Stats, error)
	Close() error
}

// NewEntry builds an entry, trimming content to the preview length.
func NewEntry(conversationID, messageID int64, role, content string, embedding []float32, createdAt time.Time) Entry {
	return Entry{
		MessageID:      messageID,
		ConversationID: conversationID,
		Role:           role,
		ContentPreview: Preview(content),
		CreatedAt:      createdAt,
		Embedding:      embedding,
	}
}

// Preview returns the first PreviewLength characters of s.
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	r := []rune(s)
	return string(r[:PreviewLength])
}

// Prepare validates v against dim and returns a normalized copy.
func Prepare(v []float32, dim int) ([]float32, error) {
	if dim > 0 && len(v) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	if vecmath.IsZero(v) {
		return nil, ErrZeroVector
	}
	return vecmath.Normalized(v), nil
}

// PrepareAll validates and normalizes every entry of a rebuild, rejecting
// the whole batch on the first bad vector. Later duplicates of a message id
// replace earlier ones.
func PrepareAll(conversationID int64, entries []Entry, dim int) ([]Entry, error) {
	seen := make(map[int64]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		v, err := Prepare(e.Embedding, dim)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", e.MessageID, err)
		}
		e.Embedding = v
		e.ConversationID = conversationID
		e.ContentPreview = Preview(e.ContentPreview)
		if i, ok := seen[e.MessageID]; ok {
			out[i] = e
			continue
		}
		seen[e.MessageID] = len(out)
		out = append(out, e)
	}
	return out, nil
}

// Filter drops results below threshold, sorts the rest by descending score
// (ties by message id) and caps them at topK.
func Filter(results []Result, topK int, threshold float64) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entry.MessageID < out[j].Entry.MessageID
	})
	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Add counts one entry with the given role.
func (s *Stats) Add(role string) {
	s.TotalVectors++
	switch role {
	case "user":
		s.UserCount++
	case "assistant":
		s.AssistantCount++
	}
}

// KeyedMutex hands out one mutex per conversation.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.RWMutex
}

// Get returns the lock for id, creating it on first use.
func (k *KeyedMutex) Get(id int64) *sync.RWMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[int64]*sync.RWMutex)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &sync.RWMutex{}
		k.locks[id] = l
	}
	return l
}
