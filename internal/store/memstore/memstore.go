// Package memstore is an in-process Store for development and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ThatCatDev/slusha/server/internal/store"
)

// Store keeps all records in memory.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	conversations map[int64]store.Conversation
	messages      map[int64][]store.Message       // by conversation, oldest first
	lorebooks     map[int64][]store.LorebookEntry // by character
	now           func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		conversations: make(map[int64]store.Conversation),
		messages:      make(map[int64][]store.Message),
		lorebooks:     make(map[int64][]store.LorebookEntry),
		now:           time.Now,
	}
}

// CreateConversation registers a conversation, assigning an id when zero.
func (s *Store) CreateConversation(c store.Conversation) store.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.conversations[c.ID] = c
	return c
}

// SetLorebook replaces the lorebook entries of a character.
func (s *Store) SetLorebook(characterID int64, entries []store.LorebookEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]store.LorebookEntry, len(entries))
	copy(cp, entries)
	for i := range cp {
		if cp[i].ID == 0 {
			cp[i].ID = s.id()
		}
	}
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Position < cp[j].Position })
	s.lorebooks[characterID] = cp
}

func (s *Store) Conversation(ctx context.Context, id int64) (store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return store.Conversation{}, fmt.Errorf("conversation %d: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) RecentMessages(ctx context.Context, conversationID int64, n int) ([]store.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) MessagesByID(ctx context.Context, conversationID int64, ids []int64) (map[int64]store.Message, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]store.Message, len(ids))
	for _, m := range s.messages[conversationID] {
		if want[m.ID] {
			out[m.ID] = m
		}
	}
	return out, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[conversationID]), nil
}

func (s *Store) CreateMessage(ctx context.Context, m store.Message) (store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[m.ConversationID]; !ok {
		return store.Message{}, fmt.Errorf("conversation %d: %w", m.ConversationID, store.ErrNotFound)
	}
	m.ID = s.id()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	msgs := append(s.messages[m.ConversationID], m)
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	s.messages[m.ConversationID] = msgs
	return m, nil
}

func (s *Store) DeleteMessage(ctx context.Context, conversationID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	for i, m := range msgs {
		if m.ID == id {
			s.messages[conversationID] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
}

func (s *Store) LorebookEntries(ctx context.Context, conversationID int64) ([]store.LorebookEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotFound)
	}
	entries := s.lorebooks[c.CharacterID]
	out := make([]store.LorebookEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *Store) Close() error {
	return nil
}

// id must be called with s.mu held.
func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}
