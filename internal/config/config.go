package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Index and store backends.
const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"

	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
)

// RAGConfig controls retrieval for each chat turn.
type RAGConfig struct {
	Enabled             bool    `yaml:"enabled"`
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	RecentMessages      int     `yaml:"recent_messages"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// GenerationConfig selects the model that writes character replies.
type GenerationConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// Config holds the backend server configuration.
type Config struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	RAG        RAGConfig        `yaml:"rag"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`

	IndexBackend string `yaml:"index_backend"`
	IndexDir     string `yaml:"index_dir"`
	StoreBackend string `yaml:"store_backend"`
	PostgresURL  string `yaml:"postgres_url"`

	MaxMessagesHistory int `yaml:"max_messages_history"`

	GoogleAPIKey string `yaml:"google_api_key"`
	OpenAIAPIKey string `yaml:"openai_api_key"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:    "0.0.0.0",
		Port:    8080,
		DataDir: DataDir(),
		RAG: RAGConfig{
			Enabled:             true,
			TopK:                5,
			SimilarityThreshold: 0.5,
			RecentMessages:      5,
		},
		Embedding: EmbeddingConfig{
			Provider:   ProviderGoogle,
			Model:      "models/gemini-embedding-001",
			Dimensions: 768,
			Timeout:    10 * time.Second,
			CacheSize:  1000,
		},
		Generation: GenerationConfig{
			Provider: ProviderGoogle,
			Model:    "gemini-2.0-flash",
		},
		IndexBackend:       BackendChromem,
		StoreBackend:       BackendMemory,
		MaxMessagesHistory: 20,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load builds a Config from defaults, an optional YAML file, a .env file and
// SLUSHA_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("SLUSHA_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("SLUSHA_HOST", &c.Host)
	str("SLUSHA_DATA_DIR", &c.DataDir)
	str("SLUSHA_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("SLUSHA_EMBEDDING_MODEL", &c.Embedding.Model)
	str("SLUSHA_EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	str("SLUSHA_GENERATION_PROVIDER", &c.Generation.Provider)
	str("SLUSHA_GENERATION_MODEL", &c.Generation.Model)
	str("SLUSHA_GENERATION_BASE_URL", &c.Generation.BaseURL)
	str("SLUSHA_INDEX_BACKEND", &c.IndexBackend)
	str("SLUSHA_INDEX_DIR", &c.IndexDir)
	str("SLUSHA_STORE_BACKEND", &c.StoreBackend)
	str("SLUSHA_POSTGRES_URL", &c.PostgresURL)
	str("SLUSHA_LOG_LEVEL", &c.LogLevel)
	str("SLUSHA_LOG_FORMAT", &c.LogFormat)
	str("GOOGLE_API_KEY", &c.GoogleAPIKey)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)

	ints := map[string]*int{
		"SLUSHA_PORT":                 &c.Port,
		"SLUSHA_RAG_TOP_K":            &c.RAG.TopK,
		"SLUSHA_RAG_RECENT_MESSAGES":  &c.RAG.RecentMessages,
		"SLUSHA_EMBEDDING_DIMENSIONS": &c.Embedding.Dimensions,
		"SLUSHA_MAX_MESSAGES_HISTORY": &c.MaxMessagesHistory,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("SLUSHA_RAG_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse SLUSHA_RAG_ENABLED: %w", err)
		}
		c.RAG.Enabled = b
	}
	if v := os.Getenv("SLUSHA_RAG_SIMILARITY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse SLUSHA_RAG_SIMILARITY_THRESHOLD: %w", err)
		}
		c.RAG.SimilarityThreshold = f
	}
	if v := os.Getenv("SLUSHA_EMBEDDING_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SLUSHA_EMBEDDING_TIMEOUT: %w", err)
		}
		c.Embedding.Timeout = d
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.RAG.TopK < 1:
		return errors.New("rag.top_k must be at least 1")
	case c.RAG.RecentMessages < 0:
		return errors.New("rag.recent_messages must not be negative")
	case c.RAG.SimilarityThreshold < -1 || c.RAG.SimilarityThreshold > 1:
		return errors.New("rag.similarity_threshold must be within [-1, 1]")
	case c.Embedding.Dimensions < 1:
		return errors.New("embedding.dimensions must be at least 1")
	}

	switch c.Embedding.Provider {
	case ProviderGoogle, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case ProviderGoogle, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown generation provider %q", c.Generation.Provider)
	}

	switch c.IndexBackend {
	case BackendChromem:
	case BackendPgvector:
		if c.PostgresURL == "" {
			return errors.New("pgvector index backend requires postgres_url")
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.IndexBackend)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres store backend requires postgres_url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	return nil
}

// VectorIndexDir returns the directory holding per-conversation indexes.
func (c *Config) VectorIndexDir() string {
	if c.IndexDir != "" {
		return c.IndexDir
	}
	return filepath.Join(c.DataDir, "vector_indexes")
}

// DataDir returns the default data directory for slusha.
// Windows: %LOCALAPPDATA%\slusha
// Linux/Mac: ~/.local/share/slusha
func DataDir() string {
	if dir := os.Getenv("SLUSHA_DATA_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "slusha")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "slusha")
}

// EnsureDirs creates the required directories if they don't exist.
func EnsureDirs(cfg *Config) error {
	dirs := []string{cfg.DataDir}
	if cfg.IndexBackend == BackendChromem {
		dirs = append(dirs, cfg.VectorIndexDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
