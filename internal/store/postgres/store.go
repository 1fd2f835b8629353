// Package postgres implements store.Store on Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ThatCatDev/slusha/server/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS characters (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		character_id BIGINT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		user_name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_created_idx
		ON messages (conversation_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS lorebook_entries (
		id BIGSERIAL PRIMARY KEY,
		character_id BIGINT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		keys TEXT NOT NULL,
		content TEXT NOT NULL,
		is_enabled BOOLEAN NOT NULL DEFAULT true,
		position INT NOT NULL DEFAULT 0
	)`,
}

const messageColumns = `id, conversation_id, role, content, created_at`

// Store reads and writes chat records through database/sql.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection; see pgsql.Open.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

func (s *Store) Conversation(ctx context.Context, id int64) (store.Conversation, error) {
	var c store.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.character_id, c.user_name, ch.name, ch.prompt
		FROM conversations c
		JOIN characters ch ON ch.id = c.character_id
		WHERE c.id = $1
	`, id).Scan(&c.ID, &c.CharacterID, &c.UserName, &c.CharacterName, &c.CharacterPrompt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("conversation %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("query conversation: %w", err)
	}
	return c, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

func (s *Store) RecentMessages(ctx context.Context, conversationID int64, n int) ([]store.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (s *Store) MessagesByID(ctx context.Context, conversationID int64, ids []int64) (map[int64]store.Message, error) {
	out := make(map[int64]store.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND id = ANY($2)
	`, conversationID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("messages by id: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *Store) CreateMessage(ctx context.Context, m store.Message) (store.Message, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, m.ConversationID, m.Role, m.Content).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return m, fmt.Errorf("conversation %d: %w", m.ConversationID, store.ErrNotFound)
		}
		return m, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMessage(ctx context.Context, conversationID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = $1 AND id = $2`, conversationID, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) LorebookEntries(ctx context.Context, conversationID int64) ([]store.LorebookEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.keys, e.content, e.is_enabled, e.position
		FROM lorebook_entries e
		JOIN conversations c ON c.character_id = e.character_id
		WHERE c.id = $1
		ORDER BY e.position, e.id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("lorebook entries: %w", err)
	}
	defer rows.Close()

	var entries []store.LorebookEntry
	for rows.Next() {
		var e store.LorebookEntry
		if err := rows.Scan(&e.ID, &e.Keys, &e.Content, &e.Enabled, &e.Position); err != nil {
			return nil, fmt.Errorf("scan lorebook entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func reverse(msgs []store.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
