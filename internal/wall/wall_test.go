package wall

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/render"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/tilecache"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

var testMetrics = metrics.NewCollector("wall_test")

var (
	timeLow  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	timeHigh = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
)

func gridVariable(dataset, variable string, elevations []float64, times []time.Time) *catalogue.GridVariable {
	nz, nt := len(elevations), len(times)
	if nz == 0 {
		nz = 1
	}
	if nt == 0 {
		nt = 1
	}
	return &catalogue.GridVariable{
		Info: models.LayerInfo{
			Handle:    models.LayerHandle{Dataset: dataset, Variable: variable},
			Title:     variable,
			Units:     "unit",
			ScaleLow:  0,
			ScaleHigh: 100,
		},
		Lons:       []float64{-10, 10},
		Lats:       []float64{40, 50},
		Elevations: elevations,
		Times:      times,
		ZUnits:     "m",
		Values:     make([]float64, 2*2*nz*nt),
	}
}

func newTestWall(t *testing.T) *Wall {
	t.Helper()
	cat := catalogue.NewMemoryCatalogue()
	// Two variables with identical limits on both axes, one with a
	// narrower vertical range
	cat.AddGridVariable(gridVariable("ocean", "temp", []float64{0, 100}, []time.Time{timeLow, timeHigh}))
	cat.AddGridVariable(gridVariable("ocean", "salinity", []float64{0, 100}, []time.Time{timeLow, timeHigh}))
	cat.AddGridVariable(gridVariable("ocean", "oxygen", []float64{0, 50}, []time.Time{timeLow, timeHigh}))

	logger := logging.NewStructuredLogger("wall-test", "test", logging.FatalLevel)
	logger.SetOutput(io.Discard)
	renderer := render.NewTileRenderer(cat, testMetrics)
	cache := tilecache.New(64, nil, logger, testMetrics)
	return New(cat, renderer, cache, nil, logger, testMetrics)
}

func TestWallSelectorPropagation(t *testing.T) {
	w := newTestWall(t)
	ctx := context.Background()

	w.AddView(ctx, "a")
	w.AddView(ctx, "b")
	if err := w.SetViewLayer(ctx, "a", "ocean/temp"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}
	if err := w.SetViewLayer(ctx, "b", "ocean/salinity"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}

	if err := w.MoveElevationSelector(ctx, "a", 42); err != nil {
		t.Fatalf("Expected selector move to succeed, got %v", err)
	}

	if got := w.ViewLayer("a").Cursor().Elevation; got != 42 {
		t.Errorf("Expected origin elevation 42, got %v", got)
	}
	if got := w.ViewLayer("b").Cursor().Elevation; got != 42 {
		t.Errorf("Expected linked elevation 42, got %v", got)
	}
}

func TestWallLinkDropsOnDivergedLimits(t *testing.T) {
	w := newTestWall(t)
	ctx := context.Background()

	w.AddView(ctx, "a")
	w.AddView(ctx, "b")
	if err := w.SetViewLayer(ctx, "a", "ocean/temp"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}
	if err := w.SetViewLayer(ctx, "b", "ocean/salinity"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}

	// Switching b to a narrower vertical range silently breaks the link
	if err := w.SetViewLayer(ctx, "b", "ocean/oxygen"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}

	before := w.ViewLayer("b").Cursor().Elevation
	if err := w.MoveElevationSelector(ctx, "a", 30); err != nil {
		t.Fatalf("Expected selector move to succeed, got %v", err)
	}

	if got := w.ViewLayer("a").Cursor().Elevation; got != 30 {
		t.Errorf("Expected origin elevation 30, got %v", got)
	}
	if got := w.ViewLayer("b").Cursor().Elevation; got != before {
		t.Errorf("Expected unlinked view untouched, got %v", got)
	}

	// Time limits still match, so the time axis stays linked
	mid := timeLow.Add(timeHigh.Sub(timeLow) / 2)
	if err := w.MoveTimeSelector(ctx, "a", mid); err != nil {
		t.Fatalf("Expected selector move to succeed, got %v", err)
	}
	if got := w.ViewLayer("b").Cursor().Time; !got.Equal(mid) {
		t.Errorf("Expected time axis still linked, got %v", got)
	}
}

func TestWallNewlyLinkedSelectorAdoptsGroupValue(t *testing.T) {
	w := newTestWall(t)
	ctx := context.Background()

	w.AddView(ctx, "a")
	w.AddView(ctx, "b")
	if err := w.SetViewLayer(ctx, "a", "ocean/temp"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}
	if err := w.MoveElevationSelector(ctx, "a", 77); err != nil {
		t.Fatalf("Expected selector move to succeed, got %v", err)
	}

	// The newcomer snaps to the existing group's value, not the reverse
	if err := w.SetViewLayer(ctx, "b", "ocean/salinity"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}
	if got := w.ViewLayer("b").Cursor().Elevation; got != 77 {
		t.Errorf("Expected newly linked view to adopt 77, got %v", got)
	}
	if got := w.ViewLayer("a").Cursor().Elevation; got != 77 {
		t.Errorf("Expected existing view unchanged at 77, got %v", got)
	}
}

func TestWallRejectedLayerSwitchKeepsPrevious(t *testing.T) {
	w := newTestWall(t)
	ctx := context.Background()

	w.AddView(ctx, "a")
	if err := w.SetViewLayer(ctx, "a", "ocean/temp"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}

	tests := []struct {
		name      string
		layerName string
	}{
		{name: "unknown layer", layerName: "ocean/nope"},
		{name: "malformed name", layerName: "no-separator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.SetViewLayer(ctx, "a", tt.layerName); err == nil {
				t.Fatal("Expected layer switch to fail")
			}
			layer := w.ViewLayer("a")
			if layer == nil || layer.Handle().String() != "ocean/temp" {
				t.Error("Expected previous layer to stay active")
			}
		})
	}
}

func TestWallMoveSelectorErrors(t *testing.T) {
	w := newTestWall(t)
	ctx := context.Background()
	w.AddView(ctx, "a")

	if err := w.MoveTimeSelector(ctx, "missing", timeLow); err == nil {
		t.Error("Expected error for unknown view")
	}
	if err := w.MoveTimeSelector(ctx, "a", timeLow); err == nil {
		t.Error("Expected error for view without a layer")
	}
}

func TestWallSettlePartnersWarmedOnce(t *testing.T) {
	w := newTestWall(t)
	ctx := context.Background()

	// a and b link on both axes, c on time only
	w.AddView(ctx, "a")
	w.AddView(ctx, "b")
	w.AddView(ctx, "c")
	for id, name := range map[ViewID]string{"a": "ocean/temp", "b": "ocean/salinity", "c": "ocean/oxygen"} {
		if err := w.SetViewLayer(ctx, id, name); err != nil {
			t.Fatalf("Expected layer switch to succeed, got %v", err)
		}
	}

	w.mu.Lock()
	partners := w.settlePartners(w.views["a"])
	w.mu.Unlock()

	counts := map[ViewID]int{}
	for _, partner := range partners {
		counts[partner.id]++
	}
	if counts["b"] != 1 {
		t.Errorf("Expected partner on both axes to appear once, got %d", counts["b"])
	}
	if counts["c"] != 1 {
		t.Errorf("Expected time-only partner to appear once, got %d", counts["c"])
	}
	if counts["a"] != 0 {
		t.Errorf("Expected the origin excluded, got %d", counts["a"])
	}

	if err := w.Settle(ctx, "a"); err != nil {
		t.Fatalf("Expected settle to succeed, got %v", err)
	}
}

func TestWallViewTile(t *testing.T) {
	w := newTestWall(t)
	ctx := context.Background()

	w.AddView(ctx, "a")
	if _, err := w.ViewTile(ctx, "a", models.TileAddress{}); err == nil {
		t.Error("Expected error for view without a layer")
	}

	if err := w.SetViewLayer(ctx, "a", "ocean/temp"); err != nil {
		t.Fatalf("Expected layer switch to succeed, got %v", err)
	}
	tile, err := w.ViewTile(ctx, "a", models.TileAddress{Level: 1, Row: 7, Col: 9})
	if err != nil {
		t.Fatalf("Expected tile, got %v", err)
	}
	if len(tile) == 0 {
		t.Error("Expected non-empty tile")
	}
}

func TestWallLinkedViewsHonoursDisplaySync(t *testing.T) {
	w := newTestWall(t)
	ctx := context.Background()

	w.AddView(ctx, "a")
	w.AddView(ctx, "b")
	w.AddView(ctx, "c")
	for id, name := range map[ViewID]string{"a": "ocean/temp", "b": "ocean/salinity", "c": "ocean/oxygen"} {
		if err := w.SetViewLayer(ctx, id, name); err != nil {
			t.Fatalf("Expected layer switch to succeed, got %v", err)
		}
	}

	if got := w.LinkedViews("a", models.AxisTime); len(got) != 0 {
		t.Errorf("Expected no mirrored views before enabling display sync, got %v", got)
	}

	if err := w.SetDisplaySynced("b", true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := w.SetDisplaySynced("c", true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Synced partners alone are not enough: the origin must be synced too
	if got := w.LinkedViews("a", models.AxisTime); len(got) != 0 {
		t.Errorf("Expected no mirrored views while the origin is un-synced, got %v", got)
	}

	if err := w.SetDisplaySynced("a", true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	got := w.LinkedViews("a", models.AxisTime)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Expected [b c], got %v", got)
	}
	// Elevation limits diverge for c
	got = w.LinkedViews("a", models.AxisElevation)
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("Expected [b], got %v", got)
	}
}
