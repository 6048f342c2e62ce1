package layers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/render"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/scheduler"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/tilecache"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

// versionCounter issues process-wide unique layer versions. Sharing one
// counter across all layers keeps tile cache keys distinct between layers
// without embedding the layer name in the key.
var versionCounter uint64

func nextVersion() uint64 {
	return atomic.AddUint64(&versionCounter, 1)
}

// prewarmSteps divides each axis range into this many selector steps for
// neighbourhood pre-caching
const prewarmSteps = 16

// DataLayer binds a resolved catalogue variable to its render state: the
// current cursor, the color scheme and the cache version. Tile requests for
// a destroyed or failing layer degrade to a placeholder image, never to an
// error reaching the caller.
type DataLayer struct {
	handle models.LayerHandle
	info   models.LayerInfo
	domain models.VariableDomain
	caps   models.Capabilities

	renderer *render.TileRenderer
	cache    *tilecache.Cache
	pool     *scheduler.Pool
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector

	mu        sync.RWMutex
	cursor    models.Cursor
	scheme    *render.ColorScheme
	version   uint64
	destroyed bool
}

// New resolves a "dataset/variable" name against the catalogue and builds a
// data layer positioned at the latest time and the elevation nearest the
// surface. Capabilities are the layer kind's capabilities restricted to the
// axes the variable actually has.
func New(ctx context.Context, cat catalogue.Catalogue, renderer *render.TileRenderer, cache *tilecache.Cache, pool *scheduler.Pool, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, name string) (*DataLayer, error) {
	handle, err := cat.ResolveLayer(ctx, name)
	if err != nil {
		return nil, err
	}
	info, err := cat.GetLayerInfo(ctx, handle)
	if err != nil {
		return nil, err
	}
	domain, err := cat.GetDomain(ctx, handle)
	if err != nil {
		return nil, err
	}

	caps := catalogue.KindCapabilities(info.Kind)
	if domain.Temporal == nil {
		caps.SupportsTimeAxis = false
		caps.SupportsPointTimeseries = false
	}
	if domain.Vertical == nil {
		caps.SupportsElevationAxis = false
		caps.SupportsPointProfile = false
	}

	var cursor models.Cursor
	if domain.Temporal != nil {
		cursor.TimeRange = *domain.Temporal
		cursor.Time = domain.Temporal.High
	}
	if domain.Vertical != nil {
		cursor.ElevationRange = domain.Vertical.Extent
		cursor.Elevation = domain.Vertical.Extent.Clamp(0)
	}

	layer := &DataLayer{
		handle:   handle,
		info:     info,
		domain:   domain,
		caps:     caps,
		renderer: renderer,
		cache:    cache,
		pool:     pool,
		logger:   logger,
		metrics:  metricsCollector,
		cursor:   cursor,
		scheme:   render.NewColorScheme(models.Extent{Low: info.ScaleLow, High: info.ScaleHigh}, render.DefaultPalette),
		version:  nextVersion(),
	}

	logger.Info(ctx, "[LAYER_CREATE] Data layer created", logging.Fields{
		"layer":   handle.String(),
		"kind":    string(info.Kind),
		"version": layer.version,
	})
	return layer, nil
}

// Handle returns the resolved layer identity
func (l *DataLayer) Handle() models.LayerHandle {
	return l.handle
}

// Info returns the catalogue metadata the layer was created from
func (l *DataLayer) Info() models.LayerInfo {
	return l.info
}

// Capabilities returns the queries this layer supports
func (l *DataLayer) Capabilities() models.Capabilities {
	return l.caps
}

// Domain returns the variable's valid ranges
func (l *DataLayer) Domain() models.VariableDomain {
	return l.domain
}

// Cursor returns a snapshot of the current evaluation point
func (l *DataLayer) Cursor() models.Cursor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor
}

// Version returns the current cache version
func (l *DataLayer) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// SetTime moves the time selector. The value is clamped to the temporal
// domain. Returns false without side effects when the layer has no time
// axis or the clamped value equals the current one.
func (l *DataLayer) SetTime(t time.Time) bool {
	if !l.caps.SupportsTimeAxis {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	clamped := l.cursor.TimeRange.Clamp(t)
	if clamped.Equal(l.cursor.Time) {
		return false
	}
	l.cursor.Time = clamped
	l.version = nextVersion()
	return true
}

// SetElevation moves the elevation selector. The value is clamped to the
// vertical domain. Returns false without side effects when the layer has no
// elevation axis or the clamped value equals the current one.
func (l *DataLayer) SetElevation(elevation float64) bool {
	if !l.caps.SupportsElevationAxis {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	clamped := l.cursor.ElevationRange.Clamp(elevation)
	if clamped == l.cursor.Elevation {
		return false
	}
	l.cursor.Elevation = clamped
	l.version = nextVersion()
	return true
}

// SetScale changes the color scale bounds and invalidates cached tiles by
// bumping the cache version
func (l *DataLayer) SetScale(scale models.Extent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scheme = render.NewColorScheme(scale, l.scheme.Palette)
	l.version = nextVersion()
}

// SetPalette changes the color palette and invalidates cached tiles.
// Unknown palette names fall back to the default palette.
func (l *DataLayer) SetPalette(palette string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scheme = render.NewColorScheme(l.scheme.Scale, palette)
	l.version = nextVersion()
}

// GetTile returns the PNG tile for the address at the current cursor.
// Failed renders produce the error placeholder tile; placeholders are never
// cached, so a later request retries the render.
func (l *DataLayer) GetTile(ctx context.Context, address models.TileAddress) []byte {
	l.mu.RLock()
	cursor := l.cursor
	scheme := l.scheme
	version := l.version
	destroyed := l.destroyed
	l.mu.RUnlock()

	if destroyed {
		return render.ErrorTile(models.TileSize, models.TileSize)
	}
	return l.tileAt(ctx, cursor, scheme, version, address)
}

func (l *DataLayer) tileAt(ctx context.Context, cursor models.Cursor, scheme *render.ColorScheme, version uint64, address models.TileAddress) []byte {
	key := models.TileKey{
		LayerVersion: version,
		Address:      address,
		Time:         cursor.Time,
		Elevation:    cursor.Elevation,
	}
	data, err := l.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return l.renderer.Render(ctx, l.handle, cursor, address, scheme)
	})
	if err != nil {
		l.metrics.RecordRenderError(classifyRenderError(err))
		l.logger.Error(ctx, "[TILE_RENDER] Tile render failed, serving placeholder", logging.Fields{
			"layer": l.handle.String(),
			"key":   key.String(),
		}, err)
		return render.ErrorTile(models.TileSize, models.TileSize)
	}
	return data
}

// CacheAroundCurrent pre-warms the extraction cache for the given tile
// addresses at the selector positions one step either side of the current
// cursor, one step per supported axis. Warming the extraction level rather
// than the tile level keeps the work useful across version bumps. Runs at
// background priority so it never delays visible tiles.
func (l *DataLayer) CacheAroundCurrent(addresses []models.TileAddress) {
	l.mu.RLock()
	cursor := l.cursor
	destroyed := l.destroyed
	l.mu.RUnlock()

	if destroyed || l.pool == nil {
		return
	}

	for _, neighbour := range l.neighbourCursors(cursor) {
		for _, address := range addresses {
			neighbour, address := neighbour, address
			err := l.pool.Submit(scheduler.PriorityBackground, func(ctx context.Context) {
				if err := l.renderer.WarmExtraction(ctx, l.handle, neighbour, address); err != nil {
					l.logger.Debug(ctx, "[CACHE_WARM] Pre-warm extraction failed", logging.Fields{
						"layer": l.handle.String(),
					})
				}
			})
			if err != nil {
				l.logger.Debug(context.Background(), "[CACHE_WARM] Skipping pre-warm, queue full", logging.Fields{
					"layer": l.handle.String(),
				})
				return
			}
		}
	}
}

// neighbourCursors returns the cursors one selector step before and after
// the current position on each supported axis. Steps clamped back onto the
// current position are dropped.
func (l *DataLayer) neighbourCursors(cursor models.Cursor) []models.Cursor {
	var out []models.Cursor

	if l.caps.SupportsTimeAxis {
		span := cursor.TimeRange.High.Sub(cursor.TimeRange.Low)
		step := span / prewarmSteps
		if step > 0 {
			for _, t := range []time.Time{cursor.Time.Add(-step), cursor.Time.Add(step)} {
				clamped := cursor.TimeRange.Clamp(t)
				if !clamped.Equal(cursor.Time) {
					next := cursor
					next.Time = clamped
					out = append(out, next)
				}
			}
		}
	}

	if l.caps.SupportsElevationAxis {
		step := (cursor.ElevationRange.High - cursor.ElevationRange.Low) / prewarmSteps
		if step > 0 {
			for _, z := range []float64{cursor.Elevation - step, cursor.Elevation + step} {
				clamped := cursor.ElevationRange.Clamp(z)
				if clamped != cursor.Elevation {
					next := cursor
					next.Elevation = clamped
					out = append(out, next)
				}
			}
		}
	}

	return out
}

// Destroy marks the layer unusable. Subsequent tile requests return the
// placeholder and pre-caching becomes a no-op.
func (l *DataLayer) Destroy(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return
	}
	l.destroyed = true
	l.logger.Info(ctx, "[LAYER_DESTROY] Data layer destroyed", logging.Fields{
		"layer": l.handle.String(),
	})
}

func classifyRenderError(err error) string {
	var notFound *models.LayerNotFoundError
	if errors.As(err, &notFound) {
		return "layer_not_found"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "extraction"
}
