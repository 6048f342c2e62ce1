package tilecache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/artifacts"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

// ComputeFunc builds the image bytes for an uncached tile
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Cache is the shared tile cache. Entries are keyed by TileKey, so a layer
// version bump makes all of a layer's previous entries unreachable; they are
// reclaimed by LRU eviction, never deleted element by element.
//
// Concurrent requests for the same uncomputed key are coalesced into a
// single computation. Readers of live entries never block each other beyond
// the bookkeeping lock.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List // front is most recently used
	capacity int

	group singleflight.Group

	store   artifacts.Store // optional write-through persistence
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

type cacheEntry struct {
	key        string
	data       []byte
	lastAccess time.Time
}

// ArtifactCategory is the category tiles are persisted under when a store
// is configured
const ArtifactCategory = "tiles"

// New creates a tile cache bounded to capacity entries. The artifact store
// is optional; when present, computed tiles are persisted write-through
// before being returned.
func New(capacity int, store artifacts.Store, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		capacity: capacity,
		store:    store,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// GetOrCompute returns the cached image for the key, computing and caching
// it if absent. A failed computation is not cached.
func (c *Cache) GetOrCompute(ctx context.Context, key models.TileKey, compute ComputeFunc) ([]byte, error) {
	ck := key.String()

	if data, ok := c.lookup(ck); ok {
		c.metrics.TileCacheHitsTotal.Inc()
		return data, nil
	}

	result, err, shared := c.group.Do(ck, func() (interface{}, error) {
		// Re-check after winning the flight: another caller may have
		// completed and cached this key since our lookup
		if data, ok := c.lookup(ck); ok {
			c.metrics.TileCacheHitsTotal.Inc()
			return data, nil
		}

		// Counted here rather than before the flight, so coalesced
		// followers do not inflate the miss count past the actual
		// number of computations
		c.metrics.TileCacheMissesTotal.Inc()

		data, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		if c.store != nil {
			// Write-through: the tile is persisted before it is delivered
			if _, err := c.store.Put(ctx, ArtifactCategory, artifactID(ck), "image/png", data); err != nil {
				c.logger.Warn(ctx, "[TILE_CACHE] Failed to persist tile", logging.Fields{
					"key":   ck,
					"error": err.Error(),
				})
			}
		}

		c.insert(ck, data)
		return data, nil
	})
	if shared {
		c.metrics.TileCacheCoalescedTotal.Inc()
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Len returns the current entry count
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	entry.lastAccess = time.Now()
	c.lru.MoveToFront(elem)
	return entry.data, true
}

func (c *Cache) insert(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).data = data
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, data: data, lastAccess: time.Now()})
	c.entries[key] = elem

	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.metrics.TileCacheEvictionsTotal.Inc()
	}
	c.metrics.TileCacheEntries.Set(float64(c.lru.Len()))
}

// artifactID flattens a tile key into a filesystem-safe artifact ID
func artifactID(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}
