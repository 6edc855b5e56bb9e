package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables that override config.
const envPrefix = "RESOURCED_"

// defaults is the baseline configuration, loaded before any file or
// environment override.
var defaults = []byte(`
server:
  host: localhost
  port: 8000
  shutdown_timeout: 10s
logging:
  level: info
  format: json
embeddings:
  model: mxbai-embed-large
  base_url: http://localhost:11434
  timeout: 60s
store:
  collection: rag_embeddings
  vector_size: 1024
  cache_capacity: 32
  dial_timeout: 5s
resources:
  root: ./resources
ingest:
  chunk_size: 500
  chunk_overlap: 50
  separators: ["\n\n"]
  retention: keep-all
  embed_concurrency: 4
query:
  top_k: 3
  candidate_pool: 15
admin:
  enable_purge: false
`)

// Load builds the configuration from defaults, an optional YAML file and
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (RESOURCED_SERVER_PORT, RESOURCED_INGEST_CHUNK_SIZE, ...)
//  2. YAML config file (when configPath is non-empty)
//  3. Built-in defaults
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	// Environment variables map section-first onto config keys:
	// RESOURCED_SERVER_PORT -> server.port, RESOURCED_STORE_CACHE_CAPACITY
	// -> store.cache_capacity. Only the first underscore separates the
	// section from the field name.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
