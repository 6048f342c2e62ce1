package featureinfo

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/charts"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/layers"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/scheduler"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/wall"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/artifacts"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

// sampleSensitivity is the spatial window, in degrees, for nearest-cell
// point sampling
const sampleSensitivity = 0.5

// ArtifactCategory is where chart images are stored
const ArtifactCategory = "charts"

// Chart image dimensions, full and preview
const (
	chartWidth    = 600
	chartHeight   = 400
	previewWidth  = 300
	previewHeight = 200
)

// ChartArtifact points at a stored chart image and its preview
type ChartArtifact struct {
	Full    artifacts.Location  `json:"full"`
	Preview *artifacts.Location `json:"preview,omitempty"`
}

// Result is what a completed point query presents. A nil Value means "no
// data at this position", which covers both missing data and swallowed
// query errors.
type Result struct {
	ViewID     wall.ViewID     `json:"view_id"`
	Generation uint64          `json:"generation"`
	Layer      string          `json:"layer"`
	Position   models.Position `json:"position"`
	Value      *float64        `json:"value,omitempty"`
	Units      string          `json:"units,omitempty"`

	TimeseriesChart *ChartArtifact  `json:"timeseries_chart,omitempty"`
	ProfileCharts   []ChartArtifact `json:"profile_charts,omitempty"`
}

// Presenter receives completed query results. Implementations must be safe
// for concurrent calls and must not call back into the Service.
type Presenter interface {
	Present(ctx context.Context, result Result)
}

// Service runs the asynchronous point-query pipeline. A new query on a view
// supersedes any in-flight query for that view: late results of a
// superseded generation are discarded, never presented.
type Service struct {
	cat       catalogue.Catalogue
	wall      *wall.Wall
	charts    charts.Generator
	store     artifacts.Store
	pool      *scheduler.Pool
	presenter Presenter
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector

	mu          sync.Mutex
	generations map[wall.ViewID]uint64
}

// New creates a feature-info service
func New(cat catalogue.Catalogue, w *wall.Wall, generator charts.Generator, store artifacts.Store, pool *scheduler.Pool, presenter Presenter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Service {
	return &Service{
		cat:         cat,
		wall:        w,
		charts:      generator,
		store:       store,
		pool:        pool,
		presenter:   presenter,
		logger:      logger,
		metrics:     metricsCollector,
		generations: make(map[wall.ViewID]uint64),
	}
}

// Query starts a point query for the view at the position. Returns
// immediately; the result arrives through the presenter. A view without an
// active layer is a no-op. When the view is in synchronized-display mode,
// the query is mirrored at the same position onto the views linked to its
// time selector that are also in that mode.
func (s *Service) Query(ctx context.Context, viewID wall.ViewID, pos models.Position) error {
	if err := s.queryView(ctx, viewID, pos); err != nil {
		return err
	}
	for _, linked := range s.wall.LinkedViews(viewID, models.AxisTime) {
		if err := s.queryView(ctx, linked, pos); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) queryView(ctx context.Context, viewID wall.ViewID, pos models.Position) error {
	layer := s.wall.ViewLayer(viewID)
	if layer == nil {
		return nil
	}

	s.mu.Lock()
	s.generations[viewID]++
	generation := s.generations[viewID]
	s.mu.Unlock()

	s.metrics.FeatureInfoQueriesTotal.Inc()

	return s.pool.Submit(scheduler.PriorityInteractive, func(taskCtx context.Context) {
		s.run(taskCtx, viewID, generation, layer, pos)
	})
}

func (s *Service) run(ctx context.Context, viewID wall.ViewID, generation uint64, layer *layers.DataLayer, pos models.Position) {
	defer s.metrics.NewTimer(s.metrics.FeatureInfoDuration).ObserveDuration()

	handle := layer.Handle()
	info := layer.Info()
	caps := layer.Capabilities()
	cursor := layer.Cursor()
	domain := layer.Domain()

	result := Result{
		ViewID:     viewID,
		Generation: generation,
		Layer:      handle.String(),
		Position:   pos,
		Units:      info.Units,
	}
	var resultMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		value, err := s.cat.SampleValueAtPoint(gctx, handle, pos, cursor, sampleSensitivity)
		if err != nil {
			// Swallowed at this boundary: the click must never fail,
			// a failed sample just shows as "no data"
			s.logger.Warn(gctx, "[FEATURE_INFO] Point sample failed", logging.Fields{
				"view_id": string(viewID),
				"layer":   handle.String(),
				"error":   err.Error(),
			})
			return nil
		}
		if !models.IsMissing(value) {
			resultMu.Lock()
			result.Value = &value
			resultMu.Unlock()
		}
		return nil
	})

	if caps.SupportsPointTimeseries {
		g.Go(func() error {
			points, err := s.cat.ExtractTimeseries(gctx, handle, pos, cursor.Elevation)
			if err != nil || len(points) == 0 {
				if err != nil {
					s.logger.Warn(gctx, "[FEATURE_INFO] Timeseries extraction failed", logging.Fields{
						"view_id": string(viewID),
						"layer":   handle.String(),
						"error":   err.Error(),
					})
				}
				return nil
			}
			artifact := s.buildTimeseriesChart(gctx, info, points)
			if artifact != nil {
				resultMu.Lock()
				result.TimeseriesChart = artifact
				resultMu.Unlock()
			}
			return nil
		})
	}

	if caps.SupportsPointProfile {
		g.Go(func() error {
			profiles, err := s.cat.ExtractProfiles(gctx, handle, pos, cursor.TimeRange, sampleSensitivity)
			if err != nil || len(profiles) == 0 {
				if err != nil {
					s.logger.Warn(gctx, "[FEATURE_INFO] Profile extraction failed", logging.Fields{
						"view_id": string(viewID),
						"layer":   handle.String(),
						"error":   err.Error(),
					})
				}
				return nil
			}
			positiveUp := domain.Vertical != nil && domain.Vertical.PositiveUp
			zUnits := ""
			if domain.Vertical != nil {
				zUnits = domain.Vertical.Units
			}
			var built []ChartArtifact
			for _, profile := range profiles {
				if artifact := s.buildProfileChart(gctx, info, zUnits, profile, positiveUp); artifact != nil {
					built = append(built, *artifact)
				}
			}
			if len(built) > 0 {
				resultMu.Lock()
				result.ProfileCharts = built
				resultMu.Unlock()
			}
			return nil
		})
	}

	// Extraction errors are swallowed above, so this never fails
	g.Wait()

	// The generation check and the presentation form one critical section:
	// a newer query cannot register its generation, let alone present, while
	// an up-to-date result is being handed over, so a stale result can never
	// be presented after a newer one.
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.generations[viewID]
	if current != generation {
		s.metrics.FeatureInfoSupersededTotal.Inc()
		s.logger.Debug(ctx, "[FEATURE_INFO] Discarding superseded result", logging.Fields{
			"view_id":    string(viewID),
			"generation": generation,
			"current":    current,
		})
		return
	}
	s.presenter.Present(ctx, result)
}

func (s *Service) buildTimeseriesChart(ctx context.Context, info models.LayerInfo, points []models.TimeseriesPoint) *ChartArtifact {
	full, err := s.charts.RenderTimeseries(info.Title, info.Units, points, chartWidth, chartHeight)
	if err != nil {
		s.logger.Warn(ctx, "[FEATURE_INFO] Timeseries chart failed", logging.Fields{
			"layer": info.Handle.String(),
			"error": err.Error(),
		})
		return nil
	}
	artifact := &ChartArtifact{}
	loc, err := s.store.Put(ctx, ArtifactCategory, uuid.New().String(), "image/png", full)
	if err != nil {
		s.logger.Warn(ctx, "[FEATURE_INFO] Storing chart failed", logging.Fields{
			"layer": info.Handle.String(),
			"error": err.Error(),
		})
		return nil
	}
	artifact.Full = loc

	if preview, err := s.charts.RenderTimeseries(info.Title, info.Units, points, previewWidth, previewHeight); err == nil {
		if loc, err := s.store.Put(ctx, ArtifactCategory, uuid.New().String(), "image/png", preview); err == nil {
			artifact.Preview = &loc
		}
	}
	return artifact
}

func (s *Service) buildProfileChart(ctx context.Context, info models.LayerInfo, zUnits string, profile models.Profile, positiveUp bool) *ChartArtifact {
	full, err := s.charts.RenderProfile(info.Title, zUnits, info.Units, profile, positiveUp, chartWidth, chartHeight)
	if err != nil {
		s.logger.Warn(ctx, "[FEATURE_INFO] Profile chart failed", logging.Fields{
			"layer": info.Handle.String(),
			"error": err.Error(),
		})
		return nil
	}
	artifact := &ChartArtifact{}
	loc, err := s.store.Put(ctx, ArtifactCategory, uuid.New().String(), "image/png", full)
	if err != nil {
		s.logger.Warn(ctx, "[FEATURE_INFO] Storing chart failed", logging.Fields{
			"layer": info.Handle.String(),
			"error": err.Error(),
		})
		return nil
	}
	artifact.Full = loc

	if preview, err := s.charts.RenderProfile(info.Title, zUnits, info.Units, profile, positiveUp, previewWidth, previewHeight); err == nil {
		if loc, err := s.store.Put(ctx, ArtifactCategory, uuid.New().String(), "image/png", preview); err == nil {
			artifact.Preview = &loc
		}
	}
	return artifact
}
