package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThatCatDev/slusha/server/internal/store"
)

func seed(t *testing.T) (*Store, store.Conversation) {
	t.Helper()
	s := New()
	c := s.CreateConversation(store.Conversation{CharacterID: 7, UserName: "Ann", CharacterName: "Bob"})
	return s, c
}

func TestCreateAndList(t *testing.T) {
	s, c := seed(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	// Inserted out of order; listing is by creation time.
	_, err := s.CreateMessage(ctx, store.Message{ConversationID: c.ID, Role: store.RoleAssistant, Content: "second", CreatedAt: base.Add(time.Second)})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, store.Message{ConversationID: c.ID, Role: store.RoleUser, Content: "first", CreatedAt: base})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	n, err := s.CountMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCreateMessageUnknownConversation(t *testing.T) {
	s := New()
	_, err := s.CreateMessage(context.Background(), store.Message{ConversationID: 99, Role: store.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecentMessages(t *testing.T) {
	s, c := seed(t)
	ctx := context.Background()
	for _, txt := range []string{"a", "b", "c", "d"} {
		_, err := s.CreateMessage(ctx, store.Message{ConversationID: c.ID, Role: store.RoleUser, Content: txt})
		require.NoError(t, err)
	}

	recent, err := s.RecentMessages(ctx, c.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "d", recent[1].Content)

	all, err := s.RecentMessages(ctx, c.ID, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := s.RecentMessages(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMessagesByIDAndDelete(t *testing.T) {
	s, c := seed(t)
	ctx := context.Background()
	m1, err := s.CreateMessage(ctx, store.Message{ConversationID: c.ID, Role: store.RoleUser, Content: "one"})
	require.NoError(t, err)
	m2, err := s.CreateMessage(ctx, store.Message{ConversationID: c.ID, Role: store.RoleAssistant, Content: "two"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMessage(ctx, c.ID, m1.ID))
	assert.ErrorIs(t, s.DeleteMessage(ctx, c.ID, m1.ID), store.ErrNotFound)

	got, err := s.MessagesByID(ctx, c.ID, []int64{m1.ID, m2.ID, 12345})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "two", got[m2.ID].Content)

	// Lookups are scoped to the conversation.
	other := s.CreateConversation(store.Conversation{})
	got, err = s.MessagesByID(ctx, other.ID, []int64{m2.ID})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLorebookEntries(t *testing.T) {
	s, c := seed(t)
	s.SetLorebook(7, []store.LorebookEntry{
		{Keys: "sword", Content: "second", Enabled: true, Position: 2},
		{Keys: "dragon", Content: "first", Enabled: true, Position: 1},
	})

	entries, err := s.LorebookEntries(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Content)
	assert.NotZero(t, entries[0].ID)

	_, err = s.LorebookEntries(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConversation(t *testing.T) {
	s, c := seed(t)
	got, err := s.Conversation(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.UserName)

	_, err = s.Conversation(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
