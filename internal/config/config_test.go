package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.RAG.Enabled)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 0.5, cfg.RAG.SimilarityThreshold)
	assert.Equal(t, 5, cfg.RAG.RecentMessages)
	assert.Equal(t, "models/gemini-embedding-001", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 20, cfg.MaxMessagesHistory)
	assert.Equal(t, BackendChromem, cfg.IndexBackend)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slusha.yaml")
	yml := `
port: 9090
rag:
  enabled: false
  top_k: 3
  similarity_threshold: 0.25
embedding:
  provider: openai
  model: text-embedding-3-small
  dimensions: 1536
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	t.Setenv("SLUSHA_RAG_TOP_K", "7")
	t.Setenv("SLUSHA_DATA_DIR", dir)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.RAG.Enabled)
	assert.Equal(t, 7, cfg.RAG.TopK, "env overrides file")
	assert.Equal(t, 0.25, cfg.RAG.SimilarityThreshold)
	// Unset in the file, so the default survives.
	assert.Equal(t, 5, cfg.RAG.RecentMessages)
	assert.Equal(t, ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 3*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "vector_indexes"), cfg.VectorIndexDir())
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("SLUSHA_RAG_ENABLED", "maybe")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"top_k", func(c *Config) { c.RAG.TopK = 0 }},
		{"recent", func(c *Config) { c.RAG.RecentMessages = -1 }},
		{"threshold", func(c *Config) { c.RAG.SimilarityThreshold = 1.5 }},
		{"dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"embedding provider", func(c *Config) { c.Embedding.Provider = "bert" }},
		{"index backend", func(c *Config) { c.IndexBackend = "faiss" }},
		{"pgvector without url", func(c *Config) { c.IndexBackend = BackendPgvector }},
		{"postgres without url", func(c *Config) { c.StoreBackend = BackendPostgres }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.IndexBackend = BackendPgvector
	cfg.PostgresURL = "postgres://localhost/slusha"
	assert.NoError(t, cfg.Validate())
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")

	require.NoError(t, EnsureDirs(cfg))
	_, err := os.Stat(cfg.VectorIndexDir())
	assert.NoError(t, err)
}
