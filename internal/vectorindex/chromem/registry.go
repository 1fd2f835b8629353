// Package chromem is the local, file-backed vector index. Each conversation
// gets its own chromem-go database directory plus a JSON sidecar holding the
// entry metadata; the two are always written under the same lock.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/logging"
	"github.com/ThatCatDev/slusha/server/internal/vectorindex"
)

var errClosed = errors.New("vector index registry is closed")

// Registry maps conversation ids to their index partitions. Partitions are
// created or loaded on first access.
type Registry struct {
	dir string // empty for in-memory
	dim int
	log logrus.FieldLogger

	mu     sync.RWMutex
	parts  map[int64]*partition
	closed bool
}

var _ vectorindex.Index = (*Registry)(nil)

// NewRegistry creates a persistent registry rooted at dir for vectors of
// dimension dim.
func NewRegistry(dir string, dim int, log logrus.FieldLogger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return newRegistry(dir, dim, log), nil
}

// NewInMemoryRegistry creates a registry that keeps nothing on disk.
func NewInMemoryRegistry(dim int, log logrus.FieldLogger) *Registry {
	return newRegistry("", dim, log)
}

func newRegistry(dir string, dim int, log logrus.FieldLogger) *Registry {
	return &Registry{
		dir:   dir,
		dim:   dim,
		log:   logging.OrDiscard(log).WithField("component", "chromem-index"),
		parts: make(map[int64]*partition),
	}
}

func (r *Registry) Insert(ctx context.Context, e vectorindex.Entry) error {
	v, err := vectorindex.Prepare(e.Embedding, r.dim)
	if err != nil {
		return err
	}
	e.Embedding = v
	e.ContentPreview = vectorindex.Preview(e.ContentPreview)

	p, err := r.partition(e.ConversationID, true)
	if err != nil {
		return err
	}
	return p.insert(ctx, e)
}

func (r *Registry) Search(ctx context.Context, conversationID int64, query []float32, topK int, threshold float64) ([]vectorindex.Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	q, err := vectorindex.Prepare(query, r.dim)
	if err != nil {
		return nil, err
	}

	p, err := r.partition(conversationID, false)
	if err != nil || p == nil {
		return nil, err
	}
	return p.search(ctx, q, topK, threshold)
}

func (r *Registry) Delete(ctx context.Context, conversationID, messageID int64) (bool, error) {
	p, err := r.partition(conversationID, false)
	if err != nil || p == nil {
		return false, err
	}
	return p.delete(ctx, messageID)
}

func (r *Registry) DeleteAll(ctx context.Context, conversationID int64) error {
	p, err := r.partition(conversationID, false)
	if err != nil || p == nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reset()
}

func (r *Registry) Rebuild(ctx context.Context, conversationID int64, entries []vectorindex.Entry) error {
	prepared, err := vectorindex.PrepareAll(conversationID, entries, r.dim)
	if err != nil {
		return err
	}

	p, err := r.partition(conversationID, true)
	if err != nil {
		return err
	}
	return p.rebuild(ctx, prepared)
}

func (r *Registry) Entries(ctx context.Context, conversationID int64) ([]vectorindex.Entry, error) {
	p, err := r.partition(conversationID, false)
	if err != nil || p == nil {
		return []vectorindex.Entry{}, err
	}

	p.mu.RLock()
	out := make([]vectorindex.Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	p.mu.RUnlock()

	vectorindex.SortEntries(out)
	return out, nil
}

func (r *Registry) Stats(ctx context.Context, conversationID int64) (vectorindex.Stats, error) {
	stats := vectorindex.Stats{Dimension: r.dim}

	p, err := r.partition(conversationID, false)
	if err != nil || p == nil {
		return stats, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		stats.Add(e.Role)
	}
	return stats, nil
}

// Close drops every loaded partition. Data on disk is kept.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parts = make(map[int64]*partition)
	r.closed = true
	return nil
}

// partition returns the partition for id. With create unset, a conversation
// that was never written yields nil without touching the disk.
func (r *Registry) partition(id int64, create bool) (*partition, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, errClosed
	}
	p, ok := r.parts[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errClosed
	}
	// Double-check after acquiring write lock
	if p, ok := r.parts[id]; ok {
		return p, nil
	}

	dir := r.partitionDir(id)
	if !create && (dir == "" || !exists(dir)) {
		return nil, nil
	}

	p, err := openPartition(id, dir, r.log.WithField("conversation_id", id))
	if err != nil {
		return nil, err
	}
	r.parts[id] = p
	return p, nil
}

func (r *Registry) partitionDir(id int64) string {
	if r.dir == "" {
		return ""
	}
	return filepath.Join(r.dir, collectionName(id))
}

func collectionName(id int64) string {
	return fmt.Sprintf("conversation_%d", id)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
