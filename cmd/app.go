package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ThatCatDev/slusha/server/internal/chat"
	"github.com/ThatCatDev/slusha/server/internal/chatctx"
	"github.com/ThatCatDev/slusha/server/internal/config"
	"github.com/ThatCatDev/slusha/server/internal/embedding"
	googleembed "github.com/ThatCatDev/slusha/server/internal/embedding/google"
	openaiembed "github.com/ThatCatDev/slusha/server/internal/embedding/openai"
	"github.com/ThatCatDev/slusha/server/internal/generator"
	googlegen "github.com/ThatCatDev/slusha/server/internal/generator/google"
	openaigen "github.com/ThatCatDev/slusha/server/internal/generator/openai"
	"github.com/ThatCatDev/slusha/server/internal/memory"
	"github.com/ThatCatDev/slusha/server/internal/pgsql"
	"github.com/ThatCatDev/slusha/server/internal/store"
	"github.com/ThatCatDev/slusha/server/internal/store/memstore"
	"github.com/ThatCatDev/slusha/server/internal/store/postgres"
	"github.com/ThatCatDev/slusha/server/internal/vectorindex"
	"github.com/ThatCatDev/slusha/server/internal/vectorindex/chromem"
	"github.com/ThatCatDev/slusha/server/internal/vectorindex/pgvector"
)

// app holds the wired services. closers run in order on shutdown.
type app struct {
	store   store.Store
	index   vectorindex.Index
	memory  *memory.Coordinator
	chat    *chat.Service
	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (a *app) close() {
	a.memory.Wait()
	for _, c := range a.closers {
		c.Close()
	}
}

// buildApp wires storage, memory and, when withGenerator is set, the chat
// model. Anything opened before a failure is closed again.
func buildApp(ctx context.Context, cfg *config.Config, log *logrus.Logger, withGenerator bool) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			for _, c := range a.closers {
				c.Close()
			}
		}
	}()

	var db *sql.DB
	if cfg.StoreBackend == config.BackendPostgres || cfg.IndexBackend == config.BackendPgvector {
		if db, err = pgsql.Open(ctx, cfg.PostgresURL); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
	}

	if a.index, err = buildIndex(ctx, cfg, db, log); err != nil {
		return nil, err
	}
	a.closers = append([]io.Closer{a.index}, a.closers...)

	if a.store, err = buildStore(ctx, cfg, db); err != nil {
		return nil, err
	}

	var embedder embedding.Provider
	if cfg.RAG.Enabled {
		if embedder, err = a.buildEmbedder(ctx, cfg); err != nil {
			return nil, err
		}
	}

	a.memory = memory.New(cfg.RAG.Enabled, a.store, embedder, a.index, log)

	if !withGenerator {
		return a, nil
	}

	gen, err := a.buildGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	retriever := chatctx.NewRetriever(chatctx.Config{
		MemoryEnabled:       cfg.RAG.Enabled,
		TopK:                cfg.RAG.TopK,
		SimilarityThreshold: cfg.RAG.SimilarityThreshold,
		RecentMessages:      cfg.RAG.RecentMessages,
	}, a.store, a.store, embedder, a.index, log)
	a.chat = chat.NewService(a.store, retriever, a.memory, gen, cfg.MaxMessagesHistory, log)

	return a, nil
}

func buildIndex(ctx context.Context, cfg *config.Config, db *sql.DB, log *logrus.Logger) (vectorindex.Index, error) {
	switch cfg.IndexBackend {
	case config.BackendPgvector:
		idx := pgvector.New(db, cfg.Embedding.Dimensions, log)
		if err := idx.Migrate(ctx); err != nil {
			return nil, err
		}
		log.Info("Vector index: pgvector")
		return idx, nil
	default:
		reg, err := chromem.NewRegistry(cfg.VectorIndexDir(), cfg.Embedding.Dimensions, log)
		if err != nil {
			return nil, err
		}
		log.WithField("dir", cfg.VectorIndexDir()).Info("Vector index: chromem")
		return reg, nil
	}
}

func buildStore(ctx context.Context, cfg *config.Config, db *sql.DB) (store.Store, error) {
	if cfg.StoreBackend != config.BackendPostgres {
		return memstore.New(), nil
	}
	// The shared db is already on the closer list.
	st := postgres.New(db)
	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (a *app) buildEmbedder(ctx context.Context, cfg *config.Config) (embedding.Provider, error) {
	opts := []embedding.Option{
		embedding.WithModel(cfg.Embedding.Model),
		embedding.WithDimensions(cfg.Embedding.Dimensions),
		embedding.WithBaseURL(cfg.Embedding.BaseURL),
	}

	var p embedding.Provider
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		p = openaiembed.New(append(opts, embedding.WithAPIKey(cfg.OpenAIAPIKey))...)
	default:
		g, err := googleembed.New(ctx, append(opts, embedding.WithAPIKey(cfg.GoogleAPIKey))...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g)
		p = g
	}

	cached, err := embedding.Cached(embedding.WithTimeout(p, cfg.Embedding.Timeout), cfg.Embedding.CacheSize)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closerFunc(func() error {
		cached.Close()
		return nil
	}))
	return cached, nil
}

func (a *app) buildGenerator(ctx context.Context, cfg *config.Config) (generator.Generator, error) {
	opts := []generator.Option{
		generator.WithModel(cfg.Generation.Model),
		generator.WithBaseURL(cfg.Generation.BaseURL),
		generator.WithMaxHistory(cfg.MaxMessagesHistory),
	}

	switch cfg.Generation.Provider {
	case config.ProviderOpenAI:
		return openaigen.New(append(opts, generator.WithAPIKey(cfg.OpenAIAPIKey))...), nil
	case config.ProviderGoogle, "":
		g, err := googlegen.New(ctx, append(opts, generator.WithAPIKey(cfg.GoogleAPIKey))...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g)
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
}
