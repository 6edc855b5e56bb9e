// Package vectorstore defines the vector storage boundary and its Qdrant
// implementation.
//
// The Store interface captures exactly what the ingestion pipeline and the
// query engine need from a tenant's backing store: idempotent schema setup,
// batched record upsert, fingerprint lookup for change detection, distinct
// category enumeration, and filtered similarity search. Handles are safe for
// concurrent use by multiple requests.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for store operations.
var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the store was unreachable.
	ErrConnectionFailed = errors.New("failed to connect to store")

	// ErrStoreWrite indicates a failed write; no partial batch is committed.
	ErrStoreWrite = errors.New("store write failed")
)

// Store is a live handle to one tenant's vector store.
type Store interface {
	// EnsureSchema creates the collection and its payload indexes if they
	// do not exist. Idempotent; safe to call on every query.
	EnsureSchema(ctx context.Context) error

	// UpsertRecords inserts a batch of records in one write. Either the
	// whole batch is accepted or the call fails.
	UpsertRecords(ctx context.Context, records []Record) error

	// HasFingerprint reports whether any record with the given content
	// fingerprint exists. Read-only.
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)

	// DistinctCategories enumerates the record categories currently
	// present in the store.
	DistinctCategories(ctx context.Context) ([]Category, error)

	// Search runs a similarity search constrained to (category, resource),
	// considering up to pool candidates and returning at most limit hits
	// ordered by score.
	Search(ctx context.Context, vector []float32, category Category, resource string, pool, limit uint64) ([]SearchResult, error)

	// DeleteSuperseded removes records sharing identity but carrying a
	// fingerprint other than keepFingerprint. Used by the compact
	// retention policy.
	DeleteSuperseded(ctx context.Context, identity Identity, keepFingerprint string) error

	// Purge drops the tenant's collection. Destructive; only reachable
	// through the explicitly enabled admin operation.
	Purge(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
