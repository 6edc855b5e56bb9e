package ingest

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// SplitterConfig holds the chunking policy.
type SplitterConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// Splitter chunks documents with a recursive character splitter.
//
// Only documents whose embedded text equals their content are split —
// example traces already carry a dedicated embedded prompt and are passed
// through whole.
type Splitter struct {
	inner textsplitter.RecursiveCharacter
}

// NewSplitter creates a splitter with the given policy.
func NewSplitter(cfg SplitterConfig) *Splitter {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
	}
	if len(cfg.Separators) > 0 {
		opts = append(opts, textsplitter.WithSeparators(cfg.Separators))
	}
	return &Splitter{inner: textsplitter.NewRecursiveCharacter(opts...)}
}

// Split chunks the documents, assigning 1-based chunk IDs per source.
func (s *Splitter) Split(docs []Document) ([]Document, error) {
	var out []Document
	for _, doc := range docs {
		if doc.EmbeddedContent != doc.Content {
			out = append(out, doc)
			continue
		}

		pieces, err := s.inner.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", doc.Source, err)
		}
		for i, piece := range pieces {
			chunk := doc
			chunk.ChunkID = i + 1
			chunk.Content = piece
			chunk.EmbeddedContent = piece
			out = append(out, chunk)
		}
	}
	return out, nil
}
