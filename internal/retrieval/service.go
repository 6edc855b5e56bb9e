// Package retrieval ties the tenant gate, connection cache, ingestion
// pipeline and query engine into the tool-facing service.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resourced/internal/conncache"
	"github.com/fyrsmithlabs/resourced/internal/ingest"
	"github.com/fyrsmithlabs/resourced/internal/tenantgate"
	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

var tracer = otel.Tracer("resourced/retrieval")

// ErrNoCredential indicates the request context carries no tenant
// credential, which means the caller bypassed the tenant gate.
var ErrNoCredential = errors.New("no tenant credential in request context")

// Ingestor brings a tenant store up to date with a resource directory.
type Ingestor interface {
	Ingest(ctx context.Context, resource, dir string, store vectorstore.Store) (int, error)
}

// Querier answers a question against an up-to-date tenant store.
type Querier interface {
	Query(ctx context.Context, question, resource string, store vectorstore.Store) (string, error)
}

// Config holds the service settings.
type Config struct {
	// Root is the directory holding one subdirectory per resource.
	Root string

	// Supported lists the resource names callers may query.
	Supported []string
}

// Service serves retrieval tool calls. Per call it resolves the tenant
// credential, acquires the tenant's store handle, ingests any changed corpus
// content and answers the question. Unsupported or missing resources are
// reported as tool text rather than errors so MCP clients render them
// in-band, matching how retrieval misses are reported.
type Service struct {
	cache     *conncache.Cache
	pipeline  Ingestor
	engine    Querier
	root      string
	supported map[string]bool
	logger    *zap.Logger
}

// NewService creates the retrieval service.
func NewService(cache *conncache.Cache, pipeline Ingestor, engine Querier, config Config, logger *zap.Logger) (*Service, error) {
	if cache == nil {
		return nil, errors.New("connection cache is required")
	}
	if pipeline == nil {
		return nil, errors.New("ingestion pipeline is required")
	}
	if engine == nil {
		return nil, errors.New("query engine is required")
	}
	if config.Root == "" {
		return nil, errors.New("resource root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	supported := make(map[string]bool, len(config.Supported))
	for _, name := range config.Supported {
		supported[name] = true
	}

	return &Service{
		cache:     cache,
		pipeline:  pipeline,
		engine:    engine,
		root:      config.Root,
		supported: supported,
		logger:    logger,
	}, nil
}

// SupportedResources returns the queryable resource names, sorted.
func (s *Service) SupportedResources() []string {
	names := make([]string, 0, len(s.supported))
	for name := range s.supported {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetContext answers a question scoped to one resource.
//
// The resource corpus is synchronized into the tenant store before
// searching, so a freshly added or edited file is queryable on the next
// call without a separate indexing step.
func (s *Service) GetContext(ctx context.Context, question, resource string) (string, error) {
	ctx, span := tracer.Start(ctx, "retrieval.GetContext")
	defer span.End()

	if !s.supported[resource] {
		s.logger.Warn("unsupported resource requested", zap.String("resource", resource))
		return fmt.Sprintf("Resource '%s' is not supported.", resource), nil
	}

	dir := filepath.Join(s.root, resource)

	store, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}

	inserted, err := s.pipeline.Ingest(ctx, resource, dir, store)
	if err != nil {
		if errors.Is(err, ingest.ErrDirectoryNotFound) {
			s.logger.Warn("resource directory missing", zap.String("dir", dir))
			return fmt.Sprintf("Resource directory not found: %s", dir), nil
		}
		return "", fmt.Errorf("ingesting %s: %w", resource, err)
	}
	if inserted > 0 {
		s.logger.Info("resource corpus updated",
			zap.String("resource", resource),
			zap.Int("inserted", inserted),
		)
	}

	answer, err := s.engine.Query(ctx, question, resource, store)
	if err != nil {
		return "", fmt.Errorf("querying %s: %w", resource, err)
	}
	return answer, nil
}

// Purge drops the tenant's entire collection. Exposed only through the
// admin endpoint; no tool or pipeline path reaches it.
func (s *Service) Purge(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "retrieval.Purge")
	defer span.End()

	store, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	if err := store.Purge(ctx); err != nil {
		return fmt.Errorf("purging tenant store: %w", err)
	}
	s.logger.Info("tenant store purged")
	return nil
}

// acquire resolves the request credential and returns the tenant's handle.
func (s *Service) acquire(ctx context.Context) (vectorstore.Store, error) {
	cred, ok := tenantgate.CredentialFromContext(ctx)
	if !ok {
		return nil, ErrNoCredential
	}
	store, err := s.cache.Acquire(ctx, cred)
	if err != nil {
		return nil, err
	}
	return store, nil
}
