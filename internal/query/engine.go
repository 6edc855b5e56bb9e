package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

var tracer = otel.Tracer("resourced/query")

// NoContentFound is returned when a query matches nothing in the store.
const NoContentFound = "No content found."

const (
	documentHeader = "Here is some context that you can refer to answer the question:\n\n"
	exampleHeader  = "Here are some examples that can help you answer the question:\n\n### EXAMPLES BEGIN ###\n\n"
	exampleFooter  = "\n\n### EXAMPLES END ###"
)

// ErrUnknownCategory indicates the store holds records of a category this
// engine has no rendering for.
var ErrUnknownCategory = errors.New("unknown record category")

// Embedder is the slice of the embedding service the engine needs.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds the retrieval settings.
type Config struct {
	// TopK is the number of hits returned per category search.
	TopK uint64

	// CandidatePool is the breadth of the approximate search behind each
	// category query. Larger pools trade latency for recall.
	CandidatePool uint64
}

// Engine answers a question against one resource: it embeds the question
// once, searches every category present in the store, and renders the hits
// into a single context block.
type Engine struct {
	embedder Embedder
	config   Config
	logger   *zap.Logger
}

// NewEngine creates a query engine.
func NewEngine(embedder Embedder, config Config, logger *zap.Logger) (*Engine, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if config.TopK == 0 {
		config.TopK = 3
	}
	if config.CandidatePool == 0 {
		config.CandidatePool = 15
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{embedder: embedder, config: config, logger: logger}, nil
}

// Query retrieves the most relevant content for the question, scoped to the
// given resource. Each category present in the store gets its own search so
// documentation hits never crowd out examples or vice versa.
func (e *Engine) Query(ctx context.Context, question, resource string, store vectorstore.Store) (string, error) {
	ctx, span := tracer.Start(ctx, "query.Query")
	defer span.End()

	if err := store.EnsureSchema(ctx); err != nil {
		return "", err
	}

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embedding question: %w", err)
	}

	categories, err := store.DistinctCategories(ctx)
	if err != nil {
		return "", err
	}
	if len(categories) == 0 {
		return NoContentFound, nil
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var blocks []string
	for _, category := range categories {
		hits, err := store.Search(ctx, vector, category, resource, e.config.CandidatePool, e.config.TopK)
		if err != nil {
			return "", fmt.Errorf("searching %s records: %w", category, err)
		}
		if len(hits) == 0 {
			continue
		}
		block, err := renderBlock(category, hits)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, block)
		e.logger.Debug("category search complete",
			zap.String("category", string(category)),
			zap.String("resource", resource),
			zap.Int("hits", len(hits)),
		)
	}

	if len(blocks) == 0 {
		return NoContentFound, nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

// renderBlock formats one category's hits. Hits are re-ordered by origin so
// chunks from the same file read in their original sequence rather than by
// similarity score.
func renderBlock(category vectorstore.Category, hits []vectorstore.SearchResult) (string, error) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Document != hits[j].Document {
			return hits[i].Document < hits[j].Document
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	contents := make([]string, len(hits))
	for i, hit := range hits {
		contents[i] = hit.Content
	}
	body := strings.Join(contents, "\n\n")

	switch category {
	case vectorstore.CategoryDocument:
		return documentHeader + body, nil
	case vectorstore.CategoryExample:
		return exampleHeader + body + exampleFooter, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
}
