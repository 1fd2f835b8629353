// Package store defines the primary record store the memory pipeline reads
// from: messages, conversations and lorebook entries.
package store

import (
	"context"
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Message is a persisted chat message. Only deletion mutates it after creation.
type Message struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	CreatedAt      time.Time
}

// LorebookEntry is one keyword-triggered piece of world info. Keys is a
// comma-separated keyword list.
type LorebookEntry struct {
	ID       int64
	Keys     string
	Content  string
	Enabled  bool
	Position int
}

// Conversation is a chat between a user and a character.
type Conversation struct {
	ID              int64
	CharacterID     int64
	UserName        string
	CharacterName   string
	CharacterPrompt string
}

type MessageStore interface {
	// ListMessages returns every message of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID int64) ([]Message, error)
	// RecentMessages returns the last n messages, oldest first.
	RecentMessages(ctx context.Context, conversationID int64, n int) ([]Message, error)
	// MessagesByID returns the messages among ids that still exist.
	MessagesByID(ctx context.Context, conversationID int64, ids []int64) (map[int64]Message, error)
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	CreateMessage(ctx context.Context, m Message) (Message, error)
	DeleteMessage(ctx context.Context, conversationID, id int64) error
}

type LorebookStore interface {
	// LorebookEntries returns the entries of the lorebook attached to the
	// conversation's character, in lorebook order. No lorebook means none.
	LorebookEntries(ctx context.Context, conversationID int64) ([]LorebookEntry, error)
}

type ConversationStore interface {
	Conversation(ctx context.Context, id int64) (Conversation, error)
}

// Store bundles every read/write surface the server needs.
type Store interface {
	MessageStore
	LorebookStore
	ConversationStore
	Close() error
}
