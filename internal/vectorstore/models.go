package vectorstore

// Category classifies an indexed record. The tag set is closed: records are
// either plain documentation or worked examples, and the two are searched
// and merged separately.
type Category string

const (
	// CategoryDocument marks prose documentation chunks.
	CategoryDocument Category = "document"

	// CategoryExample marks structured example traces (.json/.jsonl sources).
	CategoryExample Category = "example"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == CategoryDocument || c == CategoryExample
}

// Identity names the logical slot a record occupies within a resource.
// Re-ingesting changed content inserts a new record for the same identity;
// the compaction policy uses the identity to find superseded records.
type Identity struct {
	Resource string
	Document string
	ChunkID  int
}

// Record is the persisted unit: one embedded chunk of a resource corpus.
// Records are immutable after insertion.
type Record struct {
	// ID is the point ID. Generated (UUID) when empty.
	ID string

	// Category is the closed document/example classification.
	Category Category

	// Resource is the owning resource (library) name.
	Resource string

	// Document is the origin file path within the resource directory.
	Document string

	// ChunkID is the 1-based chunk index within the origin document.
	ChunkID int

	// Fingerprint is the content hash used for change detection.
	Fingerprint string

	// Content is the raw chunk text returned to callers.
	Content string

	// EmbeddedContent is the text that was actually embedded. For examples
	// this is the user prompt only, not the full trace.
	EmbeddedContent string

	// Embedding is the vector for EmbeddedContent.
	Embedding []float32
}

// Identity returns the record's logical identity.
func (r Record) Identity() Identity {
	return Identity{Resource: r.Resource, Document: r.Document, ChunkID: r.ChunkID}
}

// SearchResult is one similarity-search hit.
type SearchResult struct {
	Content  string
	Category Category
	Resource string
	Document string
	ChunkID  int
	Score    float32
}
