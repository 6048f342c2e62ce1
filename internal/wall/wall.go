package wall

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/layers"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/render"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/scheduler"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/tilecache"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

// ViewID identifies a view panel on the wall
type ViewID string

// ErrViewNotFound is returned for operations on an unknown view
type ErrViewNotFound struct {
	ID ViewID
}

func (e *ErrViewNotFound) Error() string {
	return fmt.Sprintf("view %q not found", e.ID)
}

// ErrNoActiveLayer is returned when an operation needs a layer and the view
// has none
type ErrNoActiveLayer struct {
	ID ViewID
}

func (e *ErrNoActiveLayer) Error() string {
	return fmt.Sprintf("view %q has no active layer", e.ID)
}

// view is a single panel: at most one active data layer plus the
// synchronized-display flag
type view struct {
	id            ViewID
	layer         *layers.DataLayer
	displaySynced bool
}

// ViewState is a read-only snapshot of a view for listing and inspection
type ViewState struct {
	ID            ViewID               `json:"id"`
	Layer         string               `json:"layer,omitempty"`
	Kind          models.LayerKind     `json:"kind,omitempty"`
	Capabilities  *models.Capabilities `json:"capabilities,omitempty"`
	Cursor        *models.Cursor       `json:"cursor,omitempty"`
	DisplaySynced bool                 `json:"display_synced"`
}

// Wall owns the views and the selector link graph.
//
// Selectors with pairwise-equal limits on the same axis form an equivalence
// class; a selector move propagates to every other member of the origin's
// class in one step, never recursively. The classes are rebuilt whenever the
// wall's structure changes (layer switched, view added or removed), which is
// also how stale links are dropped: a view whose limits diverged simply
// lands in a different class.
//
// All wall state is guarded by one mutex, so propagation events never
// interleave and linked cursors are updated before the originating call
// returns.
type Wall struct {
	cat      catalogue.Catalogue
	renderer *render.TileRenderer
	cache    *tilecache.Cache
	pool     *scheduler.Pool
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector

	mu    sync.Mutex
	views map[ViewID]*view
	// equivalence classes per axis: limits key to member view ids
	groups map[models.Axis]map[string][]ViewID
}

// New creates an empty wall
func New(cat catalogue.Catalogue, renderer *render.TileRenderer, cache *tilecache.Cache, pool *scheduler.Pool, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Wall {
	return &Wall{
		cat:      cat,
		renderer: renderer,
		cache:    cache,
		pool:     pool,
		logger:   logger,
		metrics:  metricsCollector,
		views:    make(map[ViewID]*view),
		groups:   make(map[models.Axis]map[string][]ViewID),
	}
}

// AddView registers an empty view. Adding an existing id is a no-op.
func (w *Wall) AddView(ctx context.Context, id ViewID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.views[id]; ok {
		return
	}
	w.views[id] = &view{id: id}
	w.logger.Info(ctx, "[VIEW_ADD] View added", logging.Fields{"view_id": string(id)})
}

// RemoveView drops a view, destroying its layer if any
func (w *Wall) RemoveView(ctx context.Context, id ViewID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.views[id]
	if !ok {
		return &ErrViewNotFound{ID: id}
	}
	if v.layer != nil {
		v.layer.Destroy(ctx)
	}
	delete(w.views, id)
	w.rebuildGroups(ctx)
	w.logger.Info(ctx, "[VIEW_REMOVE] View removed", logging.Fields{"view_id": string(id)})
	return nil
}

// SetViewLayer switches the view to the named layer. On failure the
// previous layer stays active and the error is returned to the caller.
// On success the old layer is destroyed, the link classes are rebuilt and
// the new selector adopts the value of an existing linked group if one
// matches its limits.
func (w *Wall) SetViewLayer(ctx context.Context, id ViewID, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	v, ok := w.views[id]
	if !ok {
		return &ErrViewNotFound{ID: id}
	}

	layer, err := layers.New(ctx, w.cat, w.renderer, w.cache, w.pool, w.logger, w.metrics, name)
	if err != nil {
		w.logger.Warn(ctx, "[LAYER_SWITCH] Layer switch rejected, previous layer stays active", logging.Fields{
			"view_id": string(id),
			"layer":   name,
			"error":   err.Error(),
		})
		return err
	}

	if v.layer != nil {
		v.layer.Destroy(ctx)
	}
	v.layer = layer
	w.rebuildGroups(ctx)
	w.adoptGroupValues(v)

	w.logger.Info(ctx, "[LAYER_SWITCH] View layer switched", logging.Fields{
		"view_id": string(id),
		"layer":   name,
	})
	return nil
}

// MoveTimeSelector moves a view's time selector and propagates the value to
// every view in the selector's equivalence class. Views without a time axis
// ignore the move silently.
func (w *Wall) MoveTimeSelector(ctx context.Context, id ViewID, t time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	origin, ok := w.views[id]
	if !ok {
		return &ErrViewNotFound{ID: id}
	}
	if origin.layer == nil {
		return &ErrNoActiveLayer{ID: id}
	}

	if !origin.layer.SetTime(t) {
		return nil
	}
	w.metrics.SelectorMovesTotal.WithLabelValues(string(models.AxisTime)).Inc()

	for _, partner := range w.classmates(origin, models.AxisTime) {
		if partner.layer.SetTime(t) {
			w.metrics.LinkPropagationsTotal.Inc()
		}
	}
	return nil
}

// MoveElevationSelector is the elevation counterpart of MoveTimeSelector
func (w *Wall) MoveElevationSelector(ctx context.Context, id ViewID, elevation float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	origin, ok := w.views[id]
	if !ok {
		return &ErrViewNotFound{ID: id}
	}
	if origin.layer == nil {
		return &ErrNoActiveLayer{ID: id}
	}

	if !origin.layer.SetElevation(elevation) {
		return nil
	}
	w.metrics.SelectorMovesTotal.WithLabelValues(string(models.AxisElevation)).Inc()

	for _, partner := range w.classmates(origin, models.AxisElevation) {
		if partner.layer.SetElevation(elevation) {
			w.metrics.LinkPropagationsTotal.Inc()
		}
	}
	return nil
}

// Settle fires once interactive dragging stops. It pre-warms the cache
// around the current cursor on the settled view and its linked partners.
// When no addresses are given the level-zero tiles are warmed.
func (w *Wall) Settle(ctx context.Context, id ViewID, addresses ...models.TileAddress) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	v, ok := w.views[id]
	if !ok {
		return &ErrViewNotFound{ID: id}
	}
	if v.layer == nil {
		return nil
	}
	if len(addresses) == 0 {
		addresses = levelZeroAddresses()
	}

	v.layer.CacheAroundCurrent(addresses)
	for _, partner := range w.settlePartners(v) {
		partner.layer.CacheAroundCurrent(addresses)
	}
	return nil
}

// settlePartners returns the views linked to the origin on either axis, each
// at most once, so a partner linked on both axes is warmed a single time.
// Caller holds the wall mutex.
func (w *Wall) settlePartners(origin *view) []*view {
	seen := map[ViewID]bool{origin.id: true}
	var out []*view
	for _, axis := range []models.Axis{models.AxisTime, models.AxisElevation} {
		for _, partner := range w.classmates(origin, axis) {
			if seen[partner.id] {
				continue
			}
			seen[partner.id] = true
			out = append(out, partner)
		}
	}
	return out
}

// ViewTile renders a tile for the view's active layer
func (w *Wall) ViewTile(ctx context.Context, id ViewID, address models.TileAddress) ([]byte, error) {
	w.mu.Lock()
	v, ok := w.views[id]
	var layer *layers.DataLayer
	if ok {
		layer = v.layer
	}
	w.mu.Unlock()

	if !ok {
		return nil, &ErrViewNotFound{ID: id}
	}
	if layer == nil {
		return nil, &ErrNoActiveLayer{ID: id}
	}
	return layer.GetTile(ctx, address), nil
}

// SetDisplaySynced toggles the view's synchronized-display flag, which
// controls whether linked views mirror feature-info queries
func (w *Wall) SetDisplaySynced(id ViewID, synced bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.views[id]
	if !ok {
		return &ErrViewNotFound{ID: id}
	}
	v.displaySynced = synced
	return nil
}

// ViewLayer returns the view's active layer, or nil
func (w *Wall) ViewLayer(id ViewID) *layers.DataLayer {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := w.views[id]; ok {
		return v.layer
	}
	return nil
}

// LinkedViews returns the ids of views whose same-axis selector shares the
// origin's equivalence class and whose synchronized-display mode matches the
// origin's. A view that is not itself in synchronized-display mode mirrors to
// no one.
func (w *Wall) LinkedViews(id ViewID, axis models.Axis) []ViewID {
	w.mu.Lock()
	defer w.mu.Unlock()

	v, ok := w.views[id]
	if !ok || v.layer == nil || !v.displaySynced {
		return nil
	}
	var out []ViewID
	for _, partner := range w.classmates(v, axis) {
		if partner.displaySynced {
			out = append(out, partner.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// States returns snapshots of all views sorted by id
func (w *Wall) States() []ViewState {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]ViewState, 0, len(w.views))
	for _, v := range w.views {
		state := ViewState{ID: v.id, DisplaySynced: v.displaySynced}
		if v.layer != nil {
			state.Layer = v.layer.Handle().String()
			state.Kind = v.layer.Info().Kind
			caps := v.layer.Capabilities()
			state.Capabilities = &caps
			cursor := v.layer.Cursor()
			state.Cursor = &cursor
		}
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// classmates returns the other live views in the origin's equivalence class
// for the axis. Caller holds the wall mutex.
func (w *Wall) classmates(origin *view, axis models.Axis) []*view {
	key, ok := limitsKey(origin.layer, axis)
	if !ok {
		return nil
	}
	var out []*view
	for _, memberID := range w.groups[axis][key] {
		if memberID == origin.id {
			continue
		}
		if member, ok := w.views[memberID]; ok && member.layer != nil {
			out = append(out, member)
		}
	}
	return out
}

// rebuildGroups recomputes the equivalence classes from scratch.
// Caller holds the wall mutex.
func (w *Wall) rebuildGroups(ctx context.Context) {
	groups := make(map[models.Axis]map[string][]ViewID)
	for _, axis := range []models.Axis{models.AxisTime, models.AxisElevation} {
		groups[axis] = make(map[string][]ViewID)
	}

	for _, v := range w.views {
		if v.layer == nil {
			continue
		}
		for _, axis := range []models.Axis{models.AxisTime, models.AxisElevation} {
			if key, ok := limitsKey(v.layer, axis); ok {
				groups[axis][key] = append(groups[axis][key], v.id)
			}
		}
	}

	w.groups = groups
	w.metrics.LinkGroupRebuildsTotal.Inc()
	for _, axis := range []models.Axis{models.AxisTime, models.AxisElevation} {
		linked := 0
		for _, members := range groups[axis] {
			if len(members) > 1 {
				linked += len(members)
			}
		}
		w.metrics.LinkedSelectors.WithLabelValues(string(axis)).Set(float64(linked))
	}
}

// adoptGroupValues snaps a freshly linked selector to its group's current
// value. The existing group wins over the newcomer.
// Caller holds the wall mutex.
func (w *Wall) adoptGroupValues(v *view) {
	for _, partner := range w.classmates(v, models.AxisTime) {
		v.layer.SetTime(partner.layer.Cursor().Time)
		break
	}
	for _, partner := range w.classmates(v, models.AxisElevation) {
		v.layer.SetElevation(partner.layer.Cursor().Elevation)
		break
	}
}

// limitsKey derives the equivalence-class key for a layer's selector on the
// axis. Selectors link only when their (low, high) limits are identical.
func limitsKey(layer *layers.DataLayer, axis models.Axis) (string, bool) {
	caps := layer.Capabilities()
	cursor := layer.Cursor()
	switch axis {
	case models.AxisTime:
		if !caps.SupportsTimeAxis {
			return "", false
		}
		return fmt.Sprintf("t:%d:%d", cursor.TimeRange.Low.UnixMilli(), cursor.TimeRange.High.UnixMilli()), true
	case models.AxisElevation:
		if !caps.SupportsElevationAxis {
			return "", false
		}
		return fmt.Sprintf("z:%g:%g", cursor.ElevationRange.Low, cursor.ElevationRange.High), true
	}
	return "", false
}

// levelZeroAddresses enumerates the coarsest tile grid covering the globe
func levelZeroAddresses() []models.TileAddress {
	rows := int(180 / models.LevelZeroTileDelta)
	cols := int(360 / models.LevelZeroTileDelta)
	out := make([]models.TileAddress, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, models.TileAddress{Level: 0, Row: r, Col: c})
		}
	}
	return out
}
