// Package config provides configuration loading for resourced.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fyrsmithlabs/resourced/internal/ingest"
	"github.com/fyrsmithlabs/resourced/internal/logging"
)

// Config is the full resourced configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Store      StoreConfig      `koanf:"store"`
	Resources  ResourcesConfig  `koanf:"resources"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Query      QueryConfig      `koanf:"query"`
	Admin      AdminConfig      `koanf:"admin"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// EmbeddingsConfig holds the embedding provider settings.
type EmbeddingsConfig struct {
	Model   string        `koanf:"model"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// StoreConfig holds the per-tenant vector store settings. Connection
// endpoints come from request credentials, never from config.
type StoreConfig struct {
	Collection    string        `koanf:"collection"`
	VectorSize    uint64        `koanf:"vector_size"`
	CacheCapacity int           `koanf:"cache_capacity"`
	DialTimeout   time.Duration `koanf:"dial_timeout"`
}

// ResourcesConfig holds the resource corpus settings.
type ResourcesConfig struct {
	// Root is the directory holding one subdirectory per resource.
	Root string `koanf:"root"`

	// Supported lists the queryable resource names. When empty, every
	// subdirectory of Root is supported.
	Supported []string `koanf:"supported"`
}

// IngestConfig holds the ingestion pipeline settings.
type IngestConfig struct {
	ChunkSize        int      `koanf:"chunk_size"`
	ChunkOverlap     int      `koanf:"chunk_overlap"`
	Separators       []string `koanf:"separators"`
	Retention        string   `koanf:"retention"`
	EmbedConcurrency int      `koanf:"embed_concurrency"`
}

// QueryConfig holds the retrieval settings.
type QueryConfig struct {
	TopK          uint64 `koanf:"top_k"`
	CandidatePool uint64 `koanf:"candidate_pool"`
}

// AdminConfig holds the admin endpoint settings.
type AdminConfig struct {
	EnablePurge bool `koanf:"enable_purge"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings.model is required")
	}
	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings.base_url is required")
	}
	if c.Store.Collection == "" {
		return fmt.Errorf("store.collection is required")
	}
	if c.Store.VectorSize == 0 {
		return fmt.Errorf("store.vector_size must be positive")
	}
	if c.Store.CacheCapacity < 1 {
		return fmt.Errorf("store.cache_capacity must be positive, got %d", c.Store.CacheCapacity)
	}
	if c.Resources.Root == "" {
		return fmt.Errorf("resources.root is required")
	}
	if c.Ingest.ChunkSize < 1 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	}
	switch c.Ingest.Retention {
	case ingest.RetentionKeepAll, ingest.RetentionCompact:
	default:
		return fmt.Errorf("ingest.retention must be %q or %q, got %q",
			ingest.RetentionKeepAll, ingest.RetentionCompact, c.Ingest.Retention)
	}
	if c.Query.TopK == 0 {
		return fmt.Errorf("query.top_k must be positive")
	}
	if c.Query.CandidatePool < c.Query.TopK {
		return fmt.Errorf("query.candidate_pool must be >= query.top_k")
	}
	return nil
}

// SupportedResources returns the configured resource names, discovering
// them from the root directory when the list is empty.
func (c *Config) SupportedResources() ([]string, error) {
	if len(c.Resources.Supported) > 0 {
		return c.Resources.Supported, nil
	}

	entries, err := os.ReadDir(c.Resources.Root)
	if err != nil {
		return nil, fmt.Errorf("discovering resources under %s: %w", c.Resources.Root, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
