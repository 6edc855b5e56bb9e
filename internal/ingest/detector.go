package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

// Detector decides which candidate chunks need (re-)ingestion by comparing
// content fingerprints against the tenant store. It only reads the store.
type Detector struct {
	logger *zap.Logger
}

// NewDetector creates a change detector.
func NewDetector(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger}
}

// FilterNew returns the chunks whose fingerprint is not yet recorded in the
// store, with the Fingerprint field populated on every returned chunk.
//
// The fingerprint covers origin path and chunk text, so a chunk whose text
// is unchanged is skipped even if other chunk metadata differs, and a chunk
// whose text changed shows up as a new fingerprint for the same identity.
func (d *Detector) FilterNew(ctx context.Context, store vectorstore.Store, docs []Document) ([]Document, error) {
	var fresh []Document
	for _, doc := range docs {
		doc.Fingerprint = Fingerprint(doc.Source, doc.Content)

		exists, err := store.HasFingerprint(ctx, doc.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("checking fingerprint for %s#%d: %w", doc.Source, doc.ChunkID, err)
		}
		if exists {
			d.logger.Debug("embeddings already exist",
				zap.String("source", doc.Source),
				zap.Int("chunk_id", doc.ChunkID),
			)
			continue
		}

		d.logger.Debug("chunk requires ingestion",
			zap.String("source", doc.Source),
			zap.Int("chunk_id", doc.ChunkID),
		)
		fresh = append(fresh, doc)
	}
	return fresh, nil
}
