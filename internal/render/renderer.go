package render

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

// gridCacheCapacity bounds the extraction cache below
const gridCacheCapacity = 256

// TileRenderer converts extracted map values into color-mapped PNG tiles.
//
// Extraction results are kept in a small LRU of their own, keyed by the data
// slice rather than the tile version. Tile-level invalidation discards the
// encoded images but not the extracted grids, so re-rendering after a style
// or cursor change skips the expensive extraction when the slice is warm.
type TileRenderer struct {
	cat     catalogue.Catalogue
	metrics *metrics.Collector

	mu      sync.Mutex
	grids   map[string]*list.Element
	gridLRU *list.List
}

type gridEntry struct {
	key  string
	grid *models.Grid
}

// NewTileRenderer creates a tile renderer over the given catalogue
func NewTileRenderer(cat catalogue.Catalogue, metricsCollector *metrics.Collector) *TileRenderer {
	return &TileRenderer{
		cat:     cat,
		metrics: metricsCollector,
		grids:   make(map[string]*list.Element),
		gridLRU: list.New(),
	}
}

// Render extracts values for the tile and produces a PNG image.
// Missing cells come out fully transparent; an error means the tile could
// not be built at all.
func (r *TileRenderer) Render(ctx context.Context, handle models.LayerHandle, cursor models.Cursor, address models.TileAddress, scheme *ColorScheme) ([]byte, error) {
	defer r.metrics.NewTimer(r.metrics.RenderDuration).ObserveDuration()

	grid, err := r.extract(ctx, handle, cursor, address)
	if err != nil {
		return nil, fmt.Errorf("extracting map values: %w", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			// Grid row 0 is the southern edge; image row 0 is the top
			img.SetNRGBA(x, grid.Height-1-y, scheme.Map(grid.At(x, y)))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding tile png: %w", err)
	}
	return buf.Bytes(), nil
}

// WarmExtraction extracts the data slice for the tile into the extraction
// cache without encoding an image
func (r *TileRenderer) WarmExtraction(ctx context.Context, handle models.LayerHandle, cursor models.Cursor, address models.TileAddress) error {
	_, err := r.extract(ctx, handle, cursor, address)
	return err
}

func (r *TileRenderer) extract(ctx context.Context, handle models.LayerHandle, cursor models.Cursor, address models.TileAddress) (*models.Grid, error) {
	key := extractionKey(handle, cursor, address)

	r.mu.Lock()
	if elem, ok := r.grids[key]; ok {
		r.gridLRU.MoveToFront(elem)
		grid := elem.Value.(*gridEntry).grid
		r.mu.Unlock()
		return grid, nil
	}
	r.mu.Unlock()

	grid, err := r.cat.ExtractMapValues(ctx, handle, address.Bounds(), cursor, models.TileSize, models.TileSize)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.grids[key]; !ok {
		elem := r.gridLRU.PushFront(&gridEntry{key: key, grid: grid})
		r.grids[key] = elem
		for r.gridLRU.Len() > gridCacheCapacity {
			oldest := r.gridLRU.Back()
			r.gridLRU.Remove(oldest)
			delete(r.grids, oldest.Value.(*gridEntry).key)
		}
	}
	r.mu.Unlock()
	return grid, nil
}

func extractionKey(handle models.LayerHandle, cursor models.Cursor, address models.TileAddress) string {
	return fmt.Sprintf("%s/L%d/r%d/c%d/t%d/z%g",
		handle.String(), address.Level, address.Row, address.Col,
		cursor.Time.UnixMilli(), cursor.Elevation)
}

// ErrorTile produces the placeholder image shown for failed renders: a white
// tile crossed by red diagonals.
func ErrorTile(width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red := color.NRGBA{R: 255, A: 255}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, white)
		}
	}
	for i := 0; i < width && i < height; i++ {
		img.SetNRGBA(i, i, red)
		img.SetNRGBA(i, height-1-i, red)
	}

	var buf bytes.Buffer
	// Encoding a fully in-memory NRGBA image cannot fail
	png.Encode(&buf, img)
	return buf.Bytes()
}
