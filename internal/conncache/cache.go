// Package conncache multiplexes live store connections across requests.
//
// Dialing a tenant's store on every tool call would dominate request
// latency, so the cache keeps a bounded set of live handles keyed by the
// normalized credential. Handles are shared between concurrent requests for
// the same tenant; tenants never share a handle because the key is the
// credential itself.
package conncache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/resourced/internal/credentials"
	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

// ErrUnavailable indicates the tenant store could not be reached within the
// dial timeout. Nothing is cached for the failed credential.
var ErrUnavailable = errors.New("store unavailable")

// DialFunc establishes a new store handle for a validated credential.
type DialFunc func(ctx context.Context, cred credentials.Credential) (vectorstore.Store, error)

// entry pairs a live handle with its LRU timestamp.
type entry struct {
	store    vectorstore.Store
	lastUsed time.Time
}

// Cache is a bounded LRU cache of credential -> live store handle.
//
// All map mutation happens under one mutex sized for the cache; dialing
// happens outside the lock, deduplicated per credential so concurrent
// acquisitions of the same new credential establish at most one connection.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	capacity    int
	dialTimeout time.Duration
	dial        DialFunc
	group       singleflight.Group
	logger      *zap.Logger
}

// New creates a cache with the given capacity and dial timeout.
func New(capacity int, dialTimeout time.Duration, dial DialFunc, logger *zap.Logger) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries:     make(map[string]*entry),
		capacity:    capacity,
		dialTimeout: dialTimeout,
		dial:        dial,
		logger:      logger,
	}
}

// Acquire returns the live handle for the credential, dialing on first use.
//
// The credential must already be validated by the tenant gate; this cache
// trusts its format but still fails with ErrUnavailable if the store does
// not answer within the dial timeout.
func (c *Cache) Acquire(ctx context.Context, cred credentials.Credential) (vectorstore.Store, error) {
	key := cred.URI

	if store, ok := c.lookup(key); ok {
		return store, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check: another caller may have finished dialing between the
		// lookup above and entering the flight.
		if store, ok := c.lookup(key); ok {
			return store, nil
		}

		dialCtx := ctx
		if c.dialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, c.dialTimeout)
			defer cancel()
		}

		store, err := c.dial(dialCtx, cred)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, cred, err)
		}

		c.insert(key, store)
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(vectorstore.Store), nil
}

// Len returns the number of cached handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases every cached handle. The cache is unusable afterwards
// except for new dials.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if err := e.store.Close(); err != nil {
			c.logger.Warn("closing cached store handle", zap.Error(err))
		}
		delete(c.entries, key)
	}
}

// lookup returns the cached handle and refreshes its LRU position.
func (c *Cache) lookup(key string) (vectorstore.Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e.lastUsed = time.Now()
	return e.store, true
}

// insert stores a freshly dialed handle, evicting the least recently used
// entry if the cache is over capacity.
func (c *Cache) insert(key string, store vectorstore.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{store: store, lastUsed: time.Now()}

	for len(c.entries) > c.capacity {
		c.evictLRU(key)
	}
}

// evictLRU removes the least recently used entry other than keep.
// Caller must hold the lock.
func (c *Cache) evictLRU(keep string) {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, e := range c.entries {
		if key == keep {
			continue
		}
		if first || e.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastUsed
			first = false
		}
	}
	if oldestKey == "" {
		return
	}

	evicted := c.entries[oldestKey]
	delete(c.entries, oldestKey)
	if err := evicted.store.Close(); err != nil {
		c.logger.Warn("closing evicted store handle", zap.Error(err))
	}
	c.logger.Debug("evicted store connection", zap.Int("cache_size", len(c.entries)))
}
