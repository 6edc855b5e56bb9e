package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu      sync.Mutex
	records []vectorstore.Record
	batches int

	failUpsert bool
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) EnsureSchema(context.Context) error { return nil }

func (m *memStore) UpsertRecords(_ context.Context, records []vectorstore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return fmt.Errorf("%w: simulated failure", vectorstore.ErrStoreWrite)
	}
	m.records = append(m.records, records...)
	m.batches++
	return nil
}

func (m *memStore) HasFingerprint(_ context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.Fingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DistinctCategories(context.Context) ([]vectorstore.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[vectorstore.Category]bool{}
	var cats []vectorstore.Category
	for _, rec := range m.records {
		if !seen[rec.Category] {
			seen[rec.Category] = true
			cats = append(cats, rec.Category)
		}
	}
	return cats, nil
}

func (m *memStore) Search(context.Context, []float32, vectorstore.Category, string, uint64, uint64) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (m *memStore) DeleteSuperseded(_ context.Context, identity vectorstore.Identity, keep string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, rec := range m.records {
		if rec.Identity() == identity && rec.Fingerprint != keep {
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return nil
}

func (m *memStore) Purge(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// fakeEmbedder returns a fixed-size vector, failing on configured inputs.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failFor  map[string]bool
	failNext bool
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext || f.failFor[text] {
		return nil, errors.New("embedding provider returned no data")
	}
	return []float32{float32(len(text)), 1, 2}, nil
}
