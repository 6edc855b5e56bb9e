package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

func TestFilterNew_PopulatesFingerprints(t *testing.T) {
	detector := NewDetector(nil)
	store := newMemStore()

	docs := []Document{
		{Source: "a.txt", Content: "alpha", ChunkID: 1},
		{Source: "b.txt", Content: "beta", ChunkID: 1},
	}

	fresh, err := detector.FilterNew(context.Background(), store, docs)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	for _, doc := range fresh {
		assert.Equal(t, Fingerprint(doc.Source, doc.Content), doc.Fingerprint)
	}
}

func TestFilterNew_SkipsKnownFingerprints(t *testing.T) {
	detector := NewDetector(nil)
	store := newMemStore()
	require.NoError(t, store.UpsertRecords(context.Background(), []vectorstore.Record{
		{Fingerprint: Fingerprint("a.txt", "alpha")},
	}))

	docs := []Document{
		{Source: "a.txt", Content: "alpha", ChunkID: 1},
		{Source: "a.txt", Content: "alpha revised", ChunkID: 1},
	}

	fresh, err := detector.FilterNew(context.Background(), store, docs)
	require.NoError(t, err)
	require.Len(t, fresh, 1, "only the revised chunk needs ingestion")
	assert.Equal(t, "alpha revised", fresh[0].Content)
}
