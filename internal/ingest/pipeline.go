package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

// Retention policies for records superseded by changed content.
const (
	// RetentionKeepAll leaves superseded records in place.
	RetentionKeepAll = "keep-all"

	// RetentionCompact deletes superseded records after a successful batch.
	RetentionCompact = "compact"
)

// ErrInvalidRetention indicates an unknown retention policy name.
var ErrInvalidRetention = errors.New("invalid retention policy")

// Embedder is the slice of the embedding service the pipeline needs.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds the pipeline settings.
type Config struct {
	SplitterConfig

	// Retention selects what happens to records superseded by changed
	// content: RetentionKeepAll (default) or RetentionCompact.
	Retention string

	// EmbedConcurrency bounds the parallel embedding fan-out per call.
	EmbedConcurrency int
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Retention {
	case "", RetentionKeepAll, RetentionCompact:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRetention, c.Retention)
	}
}

// Pipeline orchestrates loader, splitter, change detector, embedder and the
// final batched store write for one resource directory.
type Pipeline struct {
	splitter *Splitter
	detector *Detector
	embedder Embedder
	config   Config
	logger   *zap.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(embedder Embedder, config Config, logger *zap.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Retention == "" {
		config.Retention = RetentionKeepAll
	}
	if config.EmbedConcurrency <= 0 {
		config.EmbedConcurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		splitter: NewSplitter(config.SplitterConfig),
		detector: NewDetector(logger),
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// Ingest brings the store up to date with the resource directory and
// returns the number of records inserted.
//
// Re-running on an unchanged corpus inserts zero records. Insertion is
// all-or-nothing per call: any embedding failure aborts before the single
// batch write, so a failed call leaves no partial state behind.
func (p *Pipeline) Ingest(ctx context.Context, resource, dir string, store vectorstore.Store) (int, error) {
	docs, err := LoadDirectory(dir)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		p.logger.Warn("resource directory is empty", zap.String("dir", dir))
		return 0, nil
	}

	chunks, err := p.splitter.Split(docs)
	if err != nil {
		return 0, err
	}

	fresh, err := p.detector.FilterNew(ctx, store, chunks)
	if err != nil {
		return 0, err
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	records := make([]vectorstore.Record, len(fresh))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.EmbedConcurrency)
	for i, chunk := range fresh {
		g.Go(func() error {
			vector, err := p.embedder.EmbedQuery(gctx, chunk.EmbeddedContent)
			if err != nil {
				return fmt.Errorf("embedding %s#%d: %w", chunk.Source, chunk.ChunkID, err)
			}
			records[i] = vectorstore.Record{
				Category:        Classify(chunk.Source),
				Resource:        chunk.Resource,
				Document:        chunk.Source,
				ChunkID:         chunk.ChunkID,
				Fingerprint:     chunk.Fingerprint,
				Content:         chunk.Content,
				EmbeddedContent: chunk.EmbeddedContent,
				Embedding:       vector,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := store.UpsertRecords(ctx, records); err != nil {
		return 0, err
	}
	p.logger.Info("inserted new embeddings",
		zap.Int("count", len(records)),
		zap.String("resource", resource),
	)

	if p.config.Retention == RetentionCompact {
		for _, rec := range records {
			if err := store.DeleteSuperseded(ctx, rec.Identity(), rec.Fingerprint); err != nil {
				return len(records), fmt.Errorf("compacting %s#%d: %w", rec.Document, rec.ChunkID, err)
			}
		}
	}

	return len(records), nil
}
