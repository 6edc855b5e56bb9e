package conncache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resourced/internal/credentials"
	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

// fakeStore is a minimal Store that tracks Close calls.
type fakeStore struct {
	id     string
	closed atomic.Bool
}

func (f *fakeStore) EnsureSchema(context.Context) error { return nil }
func (f *fakeStore) UpsertRecords(context.Context, []vectorstore.Record) error {
	return nil
}
func (f *fakeStore) HasFingerprint(context.Context, string) (bool, error) { return false, nil }
func (f *fakeStore) DistinctCategories(context.Context) ([]vectorstore.Category, error) {
	return nil, nil
}
func (f *fakeStore) Search(context.Context, []float32, vectorstore.Category, string, uint64, uint64) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeStore) DeleteSuperseded(context.Context, vectorstore.Identity, string) error {
	return nil
}
func (f *fakeStore) Purge(context.Context) error { return nil }
func (f *fakeStore) Close() error {
	f.closed.Store(true)
	return nil
}

func cred(t *testing.T, uri string) credentials.Credential {
	t.Helper()
	c, err := credentials.Parse(uri)
	require.NoError(t, err)
	return c
}

func TestAcquire_ReturnsSameHandle(t *testing.T) {
	var dials atomic.Int32
	cache := New(4, time.Second, func(_ context.Context, c credentials.Credential) (vectorstore.Store, error) {
		dials.Add(1)
		return &fakeStore{id: c.URI}, nil
	}, zap.NewNop())

	c := cred(t, "qdrant://tenant-a:6334")
	first, err := cache.Acquire(context.Background(), c)
	require.NoError(t, err)
	second, err := cache.Acquire(context.Background(), c)
	require.NoError(t, err)

	assert.Same(t, first, second, "same credential must reuse the connection")
	assert.Equal(t, int32(1), dials.Load())
}

func TestAcquire_EvictsLeastRecentlyUsed(t *testing.T) {
	stores := make(map[string]*fakeStore)
	var mu sync.Mutex
	cache := New(2, time.Second, func(_ context.Context, c credentials.Credential) (vectorstore.Store, error) {
		s := &fakeStore{id: c.URI}
		mu.Lock()
		stores[c.URI] = s
		mu.Unlock()
		return s, nil
	}, zap.NewNop())

	ctx := context.Background()
	a := cred(t, "qdrant://a:6334")
	b := cred(t, "qdrant://b:6334")
	c := cred(t, "qdrant://c:6334")

	_, err := cache.Acquire(ctx, a)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = cache.Acquire(ctx, b)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	// Touch a so b becomes the LRU entry.
	_, err = cache.Acquire(ctx, a)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	// Third distinct credential: exactly b is evicted and closed.
	_, err = cache.Acquire(ctx, c)
	require.NoError(t, err)

	mu.Lock()
	evicted := stores[b.URI]
	mu.Unlock()

	assert.Equal(t, 2, cache.Len())
	assert.True(t, evicted.closed.Load(), "evicted handle must be closed")
	assert.False(t, stores[a.URI].closed.Load())
	assert.False(t, stores[c.URI].closed.Load())

	// Re-acquiring the evicted credential dials a fresh connection.
	fresh, err := cache.Acquire(ctx, b)
	require.NoError(t, err)
	assert.NotSame(t, evicted, fresh)
	assert.False(t, fresh.(*fakeStore).closed.Load())
}

func TestAcquire_ConcurrentSameCredentialDialsOnce(t *testing.T) {
	var dials atomic.Int32
	cache := New(4, time.Second, func(_ context.Context, c credentials.Credential) (vectorstore.Store, error) {
		dials.Add(1)
		time.Sleep(10 * time.Millisecond) // widen the race window
		return &fakeStore{id: c.URI}, nil
	}, zap.NewNop())

	c := cred(t, "qdrant://tenant:6334")
	const workers = 16
	results := make([]vectorstore.Store, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := cache.Acquire(context.Background(), c)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), dials.Load(), "concurrent acquires must dial once")
	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestAcquire_DialFailureNotCached(t *testing.T) {
	var dials atomic.Int32
	dialErr := errors.New("connection refused")
	cache := New(4, time.Second, func(context.Context, credentials.Credential) (vectorstore.Store, error) {
		dials.Add(1)
		return nil, dialErr
	}, zap.NewNop())

	c := cred(t, "qdrant://down:6334")
	_, err := cache.Acquire(context.Background(), c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, cache.Len(), "failed credential must not be cached")

	_, err = cache.Acquire(context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, int32(2), dials.Load(), "each acquire retries the dial")
}

func TestAcquire_DialTimeoutApplied(t *testing.T) {
	cache := New(4, 20*time.Millisecond, func(ctx context.Context, _ credentials.Credential) (vectorstore.Store, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, zap.NewNop())

	start := time.Now()
	_, err := cache.Acquire(context.Background(), cred(t, "qdrant://slow:6334"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClose_ReleasesAllHandles(t *testing.T) {
	var created []*fakeStore
	cache := New(4, time.Second, func(_ context.Context, c credentials.Credential) (vectorstore.Store, error) {
		s := &fakeStore{id: c.URI}
		created = append(created, s)
		return s, nil
	}, zap.NewNop())

	ctx := context.Background()
	_, _ = cache.Acquire(ctx, cred(t, "qdrant://x:6334"))
	_, _ = cache.Acquire(ctx, cred(t, "qdrant://y:6334"))

	cache.Close()
	assert.Equal(t, 0, cache.Len())
	for _, s := range created {
		assert.True(t, s.closed.Load())
	}
}
