// Package pgvector is the managed vector index backend, storing every
// conversation's vectors in one Postgres table with the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/logging"
	"github.com/ThatCatDev/slusha/server/internal/vectorindex"
)

const (
	upsertQuery = `
		INSERT INTO memory_vectors (
			conversation_id,
			message_id,
			role,
			content_preview,
			created_at,
			embedding
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, message_id) DO UPDATE SET
			role = EXCLUDED.role,
			content_preview = EXCLUDED.content_preview,
			created_at = EXCLUDED.created_at,
			embedding = EXCLUDED.embedding
	`

	searchQuery = `
		SELECT
			message_id,
			role,
			content_preview,
			created_at,
			1 - (embedding <=> $2) AS score
		FROM memory_vectors
		WHERE conversation_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`

	entriesQuery = `
		SELECT
			message_id,
			role,
			content_preview,
			created_at
		FROM memory_vectors
		WHERE conversation_id = $1
		ORDER BY created_at, message_id
	`

	statsQuery = `
		SELECT
			count(*),
			count(*) FILTER (WHERE role = 'user'),
			count(*) FILTER (WHERE role = 'assistant')
		FROM memory_vectors
		WHERE conversation_id = $1
	`
)

// Index implements vectorindex.Index on Postgres.
type Index struct {
	db    *sql.DB
	dim   int
	log   logrus.FieldLogger
	locks vectorindex.KeyedMutex
}

var _ vectorindex.Index = (*Index)(nil)

// New wraps an open connection. Call Migrate before first use.
func New(db *sql.DB, dim int, log logrus.FieldLogger) *Index {
	return &Index{
		db:  db,
		dim: dim,
		log: logging.OrDiscard(log).WithField("component", "pgvector-index"),
	}
}

// Schema returns the DDL for the vector table at the index dimension.
func (x *Index) Schema() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_vectors (
			conversation_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			role TEXT NOT NULL,
			content_preview TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (conversation_id, message_id)
		)`, x.dim),
	}
}

// Migrate creates the extension and table if missing.
func (x *Index) Migrate(ctx context.Context) error {
	for _, stmt := range x.Schema() {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate memory_vectors: %w", err)
		}
	}
	return nil
}

func (x *Index) Insert(ctx context.Context, e vectorindex.Entry) error {
	v, err := vectorindex.Prepare(e.Embedding, x.dim)
	if err != nil {
		return err
	}

	lock := x.locks.Get(e.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := x.db.ExecContext(ctx, upsertQuery,
		e.ConversationID,
		e.MessageID,
		e.Role,
		vectorindex.Preview(e.ContentPreview),
		e.CreatedAt,
		pgvector.NewVector(v),
	); err != nil {
		return fmt.Errorf("%w: upsert vector: %w", vectorindex.ErrIndexIO, err)
	}
	return nil
}

func (x *Index) Search(ctx context.Context, conversationID int64, query []float32, topK int, threshold float64) ([]vectorindex.Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	q, err := vectorindex.Prepare(query, x.dim)
	if err != nil {
		return nil, err
	}

	lock := x.locks.Get(conversationID)
	lock.RLock()
	defer lock.RUnlock()

	rows, err := x.db.QueryContext(ctx, searchQuery, conversationID, pgvector.NewVector(q), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search vectors: %w", vectorindex.ErrIndexIO, err)
	}
	defer rows.Close()

	var results []vectorindex.Result
	for rows.Next() {
		r := vectorindex.Result{Entry: vectorindex.Entry{ConversationID: conversationID}}
		if err := rows.Scan(
			&r.Entry.MessageID,
			&r.Entry.Role,
			&r.Entry.ContentPreview,
			&r.Entry.CreatedAt,
			&r.Score,
		); err != nil {
			return nil, fmt.Errorf("%w: scan vector row: %w", vectorindex.ErrIndexIO, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate vector rows: %w", vectorindex.ErrIndexIO, err)
	}

	return vectorindex.Filter(results, topK, threshold), nil
}

func (x *Index) Delete(ctx context.Context, conversationID, messageID int64) (bool, error) {
	lock := x.locks.Get(conversationID)
	lock.Lock()
	defer lock.Unlock()

	res, err := x.db.ExecContext(ctx,
		`DELETE FROM memory_vectors WHERE conversation_id = $1 AND message_id = $2`,
		conversationID, messageID)
	if err != nil {
		return false, fmt.Errorf("%w: delete vector: %w", vectorindex.ErrIndexIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: delete vector: %w", vectorindex.ErrIndexIO, err)
	}
	return n > 0, nil
}

func (x *Index) DeleteAll(ctx context.Context, conversationID int64) error {
	lock := x.locks.Get(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := x.db.ExecContext(ctx,
		`DELETE FROM memory_vectors WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("%w: delete conversation vectors: %w", vectorindex.ErrIndexIO, err)
	}
	return nil
}

func (x *Index) Rebuild(ctx context.Context, conversationID int64, entries []vectorindex.Entry) error {
	prepared, err := vectorindex.PrepareAll(conversationID, entries, x.dim)
	if err != nil {
		return err
	}

	lock := x.locks.Get(conversationID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin rebuild: %w", vectorindex.ErrIndexIO, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_vectors WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("%w: clear for rebuild: %w", vectorindex.ErrIndexIO, err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("%w: prepare rebuild: %w", vectorindex.ErrIndexIO, err)
	}
	defer stmt.Close()

	for _, e := range prepared {
		if _, err := stmt.ExecContext(ctx,
			conversationID,
			e.MessageID,
			e.Role,
			e.ContentPreview,
			e.CreatedAt,
			pgvector.NewVector(e.Embedding),
		); err != nil {
			return fmt.Errorf("%w: insert message %d: %w", vectorindex.ErrIndexIO, e.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit rebuild: %w", vectorindex.ErrIndexIO, err)
	}
	x.log.WithFields(logrus.Fields{"conversation_id": conversationID, "vectors": len(prepared)}).Debug("Rebuilt vector index")
	return nil
}

func (x *Index) Entries(ctx context.Context, conversationID int64) ([]vectorindex.Entry, error) {
	lock := x.locks.Get(conversationID)
	lock.RLock()
	defer lock.RUnlock()

	rows, err := x.db.QueryContext(ctx, entriesQuery, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list vectors: %w", vectorindex.ErrIndexIO, err)
	}
	defer rows.Close()

	entries := []vectorindex.Entry{}
	for rows.Next() {
		e := vectorindex.Entry{ConversationID: conversationID}
		if err := rows.Scan(&e.MessageID, &e.Role, &e.ContentPreview, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan vector row: %w", vectorindex.ErrIndexIO, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate vector rows: %w", vectorindex.ErrIndexIO, err)
	}
	return entries, nil
}

func (x *Index) Stats(ctx context.Context, conversationID int64) (vectorindex.Stats, error) {
	stats := vectorindex.Stats{Dimension: x.dim}

	lock := x.locks.Get(conversationID)
	lock.RLock()
	defer lock.RUnlock()

	if err := x.db.QueryRowContext(ctx, statsQuery, conversationID).Scan(
		&stats.TotalVectors,
		&stats.UserCount,
		&stats.AssistantCount,
	); err != nil {
		return stats, fmt.Errorf("%w: vector stats: %w", vectorindex.ErrIndexIO, err)
	}
	return stats, nil
}

// Close is a no-op; the connection belongs to the caller.
func (x *Index) Close() error {
	return nil
}
