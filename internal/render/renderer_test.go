package render

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

var testMetrics = metrics.NewCollector("render_test")

// countingCatalogue counts map extractions so tests can observe cache behavior
type countingCatalogue struct {
	catalogue.Catalogue
	extractions int64
}

func (c *countingCatalogue) ExtractMapValues(ctx context.Context, handle models.LayerHandle, bbox models.BoundingBox, cursor models.Cursor, width, height int) (*models.Grid, error) {
	atomic.AddInt64(&c.extractions, 1)
	return c.Catalogue.ExtractMapValues(ctx, handle, bbox, cursor, width, height)
}

func newRendererFixture() (*TileRenderer, *countingCatalogue, models.LayerHandle) {
	mem := catalogue.NewMemoryCatalogue()
	handle := models.LayerHandle{Dataset: "ocean", Variable: "temp"}

	// One level-zero tile's worth of coverage at the south-west corner
	mem.AddGridVariable(&catalogue.GridVariable{
		Info: models.LayerInfo{
			Handle:    handle,
			Units:     "degC",
			ScaleLow:  0,
			ScaleHigh: 10,
		},
		Lons:       []float64{-180, -162, -144},
		Lats:       []float64{-90, -72, -54},
		Elevations: []float64{0, 100},
		Times:      []time.Time{time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		ZUnits:     "m",
		Values: []float64{
			1, 2, 3, 4, 5, 6, 7, 8, 9,
			2, 3, 4, 5, 6, 7, 8, 9, 10,
		},
	})

	cat := &countingCatalogue{Catalogue: mem}
	return NewTileRenderer(cat, testMetrics), cat, handle
}

func TestRender(t *testing.T) {
	renderer, _, handle := newRendererFixture()
	cursor := models.Cursor{Time: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	scheme := NewColorScheme(models.Extent{Low: 0, High: 10}, "rainbow")

	data, err := renderer.Render(context.Background(), handle, cursor, models.TileAddress{Level: 0, Row: 0, Col: 0}, scheme)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Expected a decodable PNG, got %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != models.TileSize || bounds.Dy() != models.TileSize {
		t.Errorf("tile size = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), models.TileSize, models.TileSize)
	}
}

func TestRenderUnknownLayer(t *testing.T) {
	renderer, _, _ := newRendererFixture()
	scheme := NewColorScheme(models.Extent{Low: 0, High: 10}, "rainbow")

	_, err := renderer.Render(context.Background(), models.LayerHandle{Dataset: "no", Variable: "layer"}, models.Cursor{}, models.TileAddress{}, scheme)
	if err == nil {
		t.Fatal("Expected an error for an unknown layer")
	}
}

func TestRenderExtractionCache(t *testing.T) {
	renderer, cat, handle := newRendererFixture()
	ctx := context.Background()
	cursor := models.Cursor{Time: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	address := models.TileAddress{Level: 0, Row: 0, Col: 0}
	scheme := NewColorScheme(models.Extent{Low: 0, High: 10}, "rainbow")

	if _, err := renderer.Render(ctx, handle, cursor, address, scheme); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := atomic.LoadInt64(&cat.extractions); got != 1 {
		t.Fatalf("Expected 1 extraction after first render, got %d", got)
	}

	// Same slice again, even with a different style, reuses the extraction
	restyled := NewColorScheme(models.Extent{Low: 0, High: 5}, "viridis")
	if _, err := renderer.Render(ctx, handle, cursor, address, restyled); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := atomic.LoadInt64(&cat.extractions); got != 1 {
		t.Errorf("Expected restyled render to reuse the cached extraction, got %d", got)
	}

	// A different cursor is a different slice
	deeper := cursor
	deeper.Elevation = 100
	if _, err := renderer.Render(ctx, handle, deeper, address, scheme); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := atomic.LoadInt64(&cat.extractions); got != 2 {
		t.Errorf("Expected a new extraction for a new cursor, got %d", got)
	}
}

func TestWarmExtraction(t *testing.T) {
	renderer, cat, handle := newRendererFixture()
	ctx := context.Background()
	cursor := models.Cursor{Time: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	address := models.TileAddress{Level: 0, Row: 0, Col: 0}

	if err := renderer.WarmExtraction(ctx, handle, cursor, address); err != nil {
		t.Fatalf("WarmExtraction() error = %v", err)
	}

	scheme := NewColorScheme(models.Extent{Low: 0, High: 10}, "rainbow")
	if _, err := renderer.Render(ctx, handle, cursor, address, scheme); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := atomic.LoadInt64(&cat.extractions); got != 1 {
		t.Errorf("Expected the warmed extraction to serve the render, got %d extractions", got)
	}
}

func TestErrorTile(t *testing.T) {
	data := ErrorTile(models.TileSize, models.TileSize)

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Expected a decodable PNG, got %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != models.TileSize || bounds.Dy() != models.TileSize {
		t.Fatalf("tile size = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), models.TileSize, models.TileSize)
	}

	red := color.NRGBA{R: 255, A: 255}
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if got := color.NRGBAModel.Convert(img.At(0, 0)); got != red {
		t.Errorf("corner pixel = %+v, want red diagonal", got)
	}
	if got := color.NRGBAModel.Convert(img.At(1, 0)); got != white {
		t.Errorf("off-diagonal pixel = %+v, want white", got)
	}
}
