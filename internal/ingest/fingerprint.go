// Package ingest turns a resource directory into content-addressed,
// chunked, embedded records and writes the new ones to the tenant store.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

// Classify maps an origin path to its record category. Structured data
// files hold worked examples; everything else is documentation.
func Classify(source string) vectorstore.Category {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".json", ".jsonl":
		return vectorstore.CategoryExample
	default:
		return vectorstore.CategoryDocument
	}
}

// Fingerprint computes the deterministic content hash of a chunk.
//
// The hash covers the origin path and the canonical (whitespace-trimmed)
// chunk text, so two chunks with the same fingerprint are identical for
// ingestion purposes regardless of when or how they were embedded.
func Fingerprint(source, content string) string {
	sum := sha256.Sum256([]byte(source + strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}
