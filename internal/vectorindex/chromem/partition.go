package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/vectorindex"
)

const sidecarFile = "entries.json"

var errNoEmbedding = errors.New("vectors must be supplied by the caller")

// noEmbed keeps chromem from ever calling out to a default embedder.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbedding
}

// partition is a single conversation's index.
type partition struct {
	mu      sync.RWMutex
	id      int64
	dir     string // empty for in-memory
	log     logrus.FieldLogger
	db      *chromem.DB
	col     *chromem.Collection
	entries map[int64]vectorindex.Entry
}

// openPartition loads a partition from dir, or creates it. A partition whose
// files cannot be read, or whose sidecar disagrees with the collection, is
// reset to empty.
func openPartition(id int64, dir string, log logrus.FieldLogger) (*partition, error) {
	p := &partition{id: id, dir: dir, log: log}

	if dir == "" {
		p.db = chromem.NewDB()
		return p, p.openCollection()
	}

	err := p.load()
	if err == nil {
		return p, nil
	}

	log.WithError(err).Warn("Vector index unreadable, starting fresh")
	if rmErr := os.RemoveAll(dir); rmErr != nil {
		return nil, fmt.Errorf("%w: remove %s: %w", vectorindex.ErrIndexIO, dir, rmErr)
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *partition) load() error {
	db, err := chromem.NewPersistentDB(filepath.Join(p.dir, "chromem"), false)
	if err != nil {
		return fmt.Errorf("%w: open db: %w", vectorindex.ErrIndexIO, err)
	}
	p.db = db
	if err := p.openCollection(); err != nil {
		return err
	}

	entries, err := p.readSidecar()
	if err != nil {
		return err
	}
	if len(entries) != p.col.Count() {
		return fmt.Errorf("%w: sidecar has %d entries, collection has %d", vectorindex.ErrIndexIO, len(entries), p.col.Count())
	}
	p.entries = entries
	return nil
}

func (p *partition) openCollection() error {
	col, err := p.db.GetOrCreateCollection(collectionName(p.id), nil, noEmbed)
	if err != nil {
		return fmt.Errorf("%w: get or create collection: %w", vectorindex.ErrIndexIO, err)
	}
	p.col = col
	if p.entries == nil {
		p.entries = make(map[int64]vectorindex.Entry)
	}
	return nil
}

func (p *partition) insert(ctx context.Context, e vectorindex.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// AddDocument overwrites an existing id, so a re-insert replaces.
	if err := p.col.AddDocument(ctx, toDocument(e)); err != nil {
		return fmt.Errorf("%w: add document: %w", vectorindex.ErrIndexIO, err)
	}

	e.Embedding = nil
	p.entries[e.MessageID] = e
	return p.writeSidecar()
}

func (p *partition) search(ctx context.Context, q []float32, topK int, threshold float64) ([]vectorindex.Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := p.col.Count()
	if count == 0 {
		return nil, nil
	}

	// Query up to topK results (but not more than count)
	nResults := min(topK, count)

	results, err := p.col.QueryEmbedding(ctx, q, nResults, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]vectorindex.Result, 0, len(results))
	for _, r := range results {
		out = append(out, vectorindex.Result{
			Entry: p.entryFromResult(r),
			Score: float64(r.Similarity),
		})
	}
	return vectorindex.Filter(out, topK, threshold), nil
}

func (p *partition) delete(ctx context.Context, messageID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[messageID]; !ok {
		return false, nil
	}
	if err := p.col.Delete(ctx, nil, nil, docID(messageID)); err != nil {
		return false, fmt.Errorf("%w: delete document: %w", vectorindex.ErrIndexIO, err)
	}

	delete(p.entries, messageID)
	return true, p.writeSidecar()
}

func (p *partition) rebuild(ctx context.Context, entries []vectorindex.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.reset(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = toDocument(e)
	}
	if err := p.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		// Leave an empty, consistent partition behind.
		if resetErr := p.reset(); resetErr != nil {
			p.log.WithError(resetErr).Error("Failed to reset vector index after rebuild error")
		}
		return fmt.Errorf("%w: add documents: %w", vectorindex.ErrIndexIO, err)
	}

	for _, e := range entries {
		e.Embedding = nil
		p.entries[e.MessageID] = e
	}
	return p.writeSidecar()
}

// reset empties the partition. Callers hold p.mu.
func (p *partition) reset() error {
	if err := p.db.DeleteCollection(collectionName(p.id)); err != nil {
		return fmt.Errorf("%w: delete collection: %w", vectorindex.ErrIndexIO, err)
	}
	p.entries = make(map[int64]vectorindex.Entry)
	if err := p.openCollection(); err != nil {
		return err
	}
	return p.writeSidecar()
}

// entryFromResult reconstructs an Entry from a chromem-go Result.
func (p *partition) entryFromResult(r chromem.Result) vectorindex.Entry {
	id, _ := strconv.ParseInt(r.ID, 10, 64)
	if e, ok := p.entries[id]; ok {
		return e
	}

	// Fallback: reconstruct from metadata
	ts, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
	return vectorindex.Entry{
		MessageID:      id,
		ConversationID: p.id,
		Role:           r.Metadata["role"],
		ContentPreview: r.Content,
		CreatedAt:      ts,
	}
}

// Sidecar persistence: a JSON list of entries alongside the chromem data.

func (p *partition) sidecarPath() string {
	if p.dir == "" {
		return ""
	}
	return filepath.Join(p.dir, sidecarFile)
}

func (p *partition) writeSidecar() error {
	path := p.sidecarPath()
	if path == "" {
		return nil
	}

	list := make([]vectorindex.Entry, 0, len(p.entries))
	for _, e := range p.entries {
		list = append(list, e)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("%w: encode sidecar: %w", vectorindex.ErrIndexIO, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: write sidecar: %w", vectorindex.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replace sidecar: %w", vectorindex.ErrIndexIO, err)
	}
	return nil
}

func (p *partition) readSidecar() (map[int64]vectorindex.Entry, error) {
	entries := make(map[int64]vectorindex.Entry)

	data, err := os.ReadFile(p.sidecarPath())
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read sidecar: %w", vectorindex.ErrIndexIO, err)
	}

	var list []vectorindex.Entry
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: decode sidecar: %w", vectorindex.ErrIndexIO, err)
	}
	for _, e := range list {
		entries[e.MessageID] = e
	}
	return entries, nil
}

func toDocument(e vectorindex.Entry) chromem.Document {
	return chromem.Document{
		ID:        docID(e.MessageID),
		Content:   e.ContentPreview,
		Embedding: e.Embedding,
		Metadata: map[string]string{
			"role":       e.Role,
			"created_at": e.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func docID(messageID int64) string {
	return strconv.FormatInt(messageID, 10)
}
