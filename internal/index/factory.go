package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/54b3r/supportrag-go/internal/rag"
)

// Kind identifies a supported index backend.
type Kind string

const (
	// KindMemory is the exact in-memory index persisted as SQLite snapshots.
	KindMemory Kind = "memory"
	// KindQdrant stores vectors in Qdrant collections.
	KindQdrant Kind = "qdrant"
	// KindPostgres stores vectors in PostgreSQL via pgvector.
	KindPostgres Kind = "pgvector"
)

// Config holds the backend selection and per-backend settings.
type Config struct {
	// Kind selects the backend. Defaults to memory.
	Kind Kind
	// Dir is where the memory backend writes snapshots.
	Dir string
	// Dimensions is the embedding width; required by Qdrant.
	Dimensions int
	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantConfig
	// PostgresDSN is the pgvector connection string.
	PostgresDSN string
}

// ConfigFromEnv builds a Config from environment variables.
//
//	VECTOR_BACKEND        = memory | qdrant | pgvector (default: memory)
//	SUPPORTRAG_DATA_DIR   = data directory (default: ./data)
//	QDRANT_HOST, QDRANT_PORT, QDRANT_API_KEY, QDRANT_TLS, QDRANT_COLLECTION_PREFIX
//	PGVECTOR_DSN
func ConfigFromEnv(dimensions int) *Config {
	dataDir := getEnvOrDefault("SUPPORTRAG_DATA_DIR", "data")
	port, _ := strconv.Atoi(os.Getenv("QDRANT_PORT"))
	return &Config{
		Kind:       Kind(strings.ToLower(getEnvOrDefault("VECTOR_BACKEND", string(KindMemory)))),
		Dir:        filepath.Join(dataDir, "vector_stores"),
		Dimensions: dimensions,
		Qdrant: QdrantConfig{
			Host:             os.Getenv("QDRANT_HOST"),
			Port:             port,
			CollectionPrefix: os.Getenv("QDRANT_COLLECTION_PREFIX"),
			APIKey:           os.Getenv("QDRANT_API_KEY"),
			UseTLS:           os.Getenv("QDRANT_TLS") == "true",
		},
		PostgresDSN: os.Getenv("PGVECTOR_DSN"),
	}
}

// NewBackend constructs the configured rag.Backend.
func NewBackend(ctx context.Context, cfg *Config) (rag.Backend, error) {
	switch cfg.Kind {
	case KindMemory, "":
		return NewMemoryBackend(cfg.Dir), nil
	case KindQdrant:
		qc := cfg.Qdrant
		qc.VectorSize = uint64(cfg.Dimensions)
		return NewQdrantBackend(&qc)
	case KindPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("index: PGVECTOR_DSN must be set for the pgvector backend")
		}
		return NewPostgresBackend(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("index: unsupported backend %q (supported: memory, qdrant, pgvector)", cfg.Kind)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
