package catalogue

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/database"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

// PostgresCatalogue is a catalogue backend reading gridded and profile data
// from PostgreSQL. Grid values are stored row-per-cell in grid_points and
// resolved to the nearest stored time/elevation slice.
type PostgresCatalogue struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewPostgresCatalogue creates a PostgreSQL-backed catalogue
func NewPostgresCatalogue(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PostgresCatalogue {
	return &PostgresCatalogue{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

type variableRow struct {
	DatasetID   string          `db:"dataset_id"`
	VariableID  string          `db:"variable_id"`
	Title       string          `db:"title"`
	Units       string          `db:"units"`
	Kind        string          `db:"kind"`
	ScaleLow    float64         `db:"scale_low"`
	ScaleHigh   float64         `db:"scale_high"`
	ZUnits      sql.NullString  `db:"z_units"`
	ZPositiveUp sql.NullBool    `db:"z_positive_up"`
}

func (r variableRow) info() models.LayerInfo {
	return models.LayerInfo{
		Handle:    models.LayerHandle{Dataset: r.DatasetID, Variable: r.VariableID},
		Title:     r.Title,
		Units:     r.Units,
		Kind:      models.LayerKind(r.Kind),
		ScaleLow:  r.ScaleLow,
		ScaleHigh: r.ScaleHigh,
	}
}

// ResolveLayer resolves a "dataset/variable" name to a handle
func (c *PostgresCatalogue) ResolveLayer(ctx context.Context, name string) (models.LayerHandle, error) {
	handle, err := models.ParseLayerName(name)
	if err != nil {
		return models.LayerHandle{}, err
	}

	query := `
		SELECT dataset_id, variable_id, title, units, kind, scale_low, scale_high, z_units, z_positive_up
		FROM variables
		WHERE dataset_id = $1 AND variable_id = $2
	`

	var row variableRow
	err = c.db.GetContext(ctx, "resolve_layer", &row, query, handle.Dataset, handle.Variable)

	if err == sql.ErrNoRows {
		return models.LayerHandle{}, &models.LayerNotFoundError{
			Name:   name,
			Reason: "no such dataset/variable",
		}
	}

	if err != nil {
		return models.LayerHandle{}, fmt.Errorf("failed to resolve layer: %w", err)
	}

	return handle, nil
}

// GetLayerInfo returns catalogue metadata for a resolved layer
func (c *PostgresCatalogue) GetLayerInfo(ctx context.Context, handle models.LayerHandle) (models.LayerInfo, error) {
	query := `
		SELECT dataset_id, variable_id, title, units, kind, scale_low, scale_high, z_units, z_positive_up
		FROM variables
		WHERE dataset_id = $1 AND variable_id = $2
	`

	var row variableRow
	err := c.db.GetContext(ctx, "get_layer_info", &row, query, handle.Dataset, handle.Variable)

	if err == sql.ErrNoRows {
		return models.LayerInfo{}, &models.LayerNotFoundError{
			Name:   handle.String(),
			Reason: "no such dataset/variable",
		}
	}

	if err != nil {
		return models.LayerInfo{}, fmt.Errorf("failed to get layer info: %w", err)
	}

	return row.info(), nil
}

// GetDomain returns the variable's temporal and vertical extents computed
// from the stored points
func (c *PostgresCatalogue) GetDomain(ctx context.Context, handle models.LayerHandle) (models.VariableDomain, error) {
	info, err := c.GetLayerInfo(ctx, handle)
	if err != nil {
		return models.VariableDomain{}, err
	}

	table := "grid_points"
	if info.Kind == models.KindProfile {
		table = "profile_points"
	}

	query := fmt.Sprintf(`
		SELECT MIN(t) AS t_low, MAX(t) AS t_high, MIN(z) AS z_low, MAX(z) AS z_high
		FROM %s
		WHERE dataset_id = $1 AND variable_id = $2
	`, table)

	var row struct {
		TLow  *time.Time `db:"t_low"`
		THigh *time.Time `db:"t_high"`
		ZLow  *float64   `db:"z_low"`
		ZHigh *float64   `db:"z_high"`
	}

	if err := c.db.GetContext(ctx, "get_domain", &row, query, handle.Dataset, handle.Variable); err != nil {
		return models.VariableDomain{}, fmt.Errorf("failed to get domain: %w", err)
	}

	var zMeta struct {
		ZUnits      sql.NullString `db:"z_units"`
		ZPositiveUp sql.NullBool   `db:"z_positive_up"`
	}
	metaQuery := `SELECT z_units, z_positive_up FROM variables WHERE dataset_id = $1 AND variable_id = $2`
	if err := c.db.GetContext(ctx, "get_domain_meta", &zMeta, metaQuery, handle.Dataset, handle.Variable); err != nil {
		return models.VariableDomain{}, fmt.Errorf("failed to get domain metadata: %w", err)
	}

	domain := models.VariableDomain{}
	if row.ZLow != nil && row.ZHigh != nil {
		domain.Vertical = &models.VerticalDomain{
			Extent:     models.Extent{Low: *row.ZLow, High: *row.ZHigh},
			Units:      zMeta.ZUnits.String,
			PositiveUp: zMeta.ZPositiveUp.Bool,
		}
	}
	if row.TLow != nil && row.THigh != nil {
		domain.Temporal = &models.TimeExtent{Low: *row.TLow, High: *row.THigh}
	}

	return domain, nil
}

// Layers lists all selectable layers
func (c *PostgresCatalogue) Layers(ctx context.Context) ([]models.LayerInfo, error) {
	query := `
		SELECT dataset_id, variable_id, title, units, kind, scale_low, scale_high, z_units, z_positive_up
		FROM variables
		ORDER BY dataset_id, variable_id
	`

	var rows []variableRow
	if err := c.db.SelectContext(ctx, "list_layers", &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list layers: %w", err)
	}

	infos := make([]models.LayerInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, row.info())
	}
	return infos, nil
}

type pointRow struct {
	Lon   float64 `db:"lon"`
	Lat   float64 `db:"lat"`
	Value float64 `db:"value"`
}

// ExtractMapValues extracts a grid of values covering bbox at the cursor.
// Points are read from the nearest stored time/elevation slice and binned
// into output cells; cells without points stay missing.
func (c *PostgresCatalogue) ExtractMapValues(ctx context.Context, handle models.LayerHandle, bbox models.BoundingBox, cursor models.Cursor, width, height int) (*models.Grid, error) {
	defer c.metrics.NewTimer(c.metrics.ExtractionDuration.WithLabelValues("map")).ObserveDuration()
	c.metrics.RecordExtraction("map")

	nearestT, nearestZ, err := c.nearestSlice(ctx, handle, cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT lon, lat, value
		FROM grid_points
		WHERE dataset_id = $1 AND variable_id = $2
		  AND ($3::timestamptz IS NULL OR t = $3)
		  AND ($4::double precision IS NULL OR z = $4)
		  AND lon >= $5 AND lon <= $6 AND lat >= $7 AND lat <= $8
	`

	var rows []pointRow
	err = c.db.SelectContext(ctx, "extract_map_values", &rows, query,
		handle.Dataset, handle.Variable, nearestT, nearestZ,
		bbox.MinLon, bbox.MaxLon, bbox.MinLat, bbox.MaxLat)
	if err != nil {
		return nil, fmt.Errorf("failed to extract map values: %w", err)
	}

	out := models.NewGrid(width, height, bbox)
	lonStep := (bbox.MaxLon - bbox.MinLon) / float64(width)
	latStep := (bbox.MaxLat - bbox.MinLat) / float64(height)
	for _, row := range rows {
		x := int((row.Lon - bbox.MinLon) / lonStep)
		y := int((row.Lat - bbox.MinLat) / latStep)
		if x < 0 || x >= width || y < 0 || y >= height {
			continue
		}
		out.Set(x, y, row.Value)
	}

	return out, nil
}

// SampleValueAtPoint returns the nearest value within the sensitivity window
func (c *PostgresCatalogue) SampleValueAtPoint(ctx context.Context, handle models.LayerHandle, pos models.Position, cursor models.Cursor, sensitivity float64) (float64, error) {
	defer c.metrics.NewTimer(c.metrics.ExtractionDuration.WithLabelValues("point")).ObserveDuration()
	c.metrics.RecordExtraction("point")

	info, err := c.GetLayerInfo(ctx, handle)
	if err != nil {
		return math.NaN(), err
	}

	table := "grid_points"
	if info.Kind == models.KindProfile {
		table = "profile_points"
	}

	nearestT, nearestZ, err := c.nearestSlice(ctx, handle, cursor)
	if err != nil {
		return math.NaN(), err
	}

	query := fmt.Sprintf(`
		SELECT lon, lat, value
		FROM %s
		WHERE dataset_id = $1 AND variable_id = $2
		  AND ($3::timestamptz IS NULL OR t = $3)
		  AND ($4::double precision IS NULL OR z = $4)
		  AND lon >= $5 AND lon <= $6 AND lat >= $7 AND lat <= $8
		ORDER BY (lon - $9) * (lon - $9) + (lat - $10) * (lat - $10)
		LIMIT 1
	`, table)

	window := pos.Around(sensitivity)
	var row pointRow
	err = c.db.GetContext(ctx, "sample_value_at_point", &row, query,
		handle.Dataset, handle.Variable, nearestT, nearestZ,
		window.MinLon, window.MaxLon, window.MinLat, window.MaxLat,
		pos.Lon, pos.Lat)

	if err == sql.ErrNoRows {
		return math.NaN(), nil
	}
	if err != nil {
		return math.NaN(), fmt.Errorf("failed to sample value: %w", err)
	}

	return row.Value, nil
}

// ExtractTimeseries returns the stored series at the nearest grid point.
// Profile variables do not support temporal extraction and return empty.
func (c *PostgresCatalogue) ExtractTimeseries(ctx context.Context, handle models.LayerHandle, pos models.Position, elevation float64) ([]models.TimeseriesPoint, error) {
	defer c.metrics.NewTimer(c.metrics.ExtractionDuration.WithLabelValues("timeseries")).ObserveDuration()
	c.metrics.RecordExtraction("timeseries")

	info, err := c.GetLayerInfo(ctx, handle)
	if err != nil {
		return nil, err
	}
	if info.Kind != models.KindGrid {
		return nil, nil
	}

	query := `
		SELECT t, value
		FROM grid_points
		WHERE dataset_id = $1 AND variable_id = $2 AND t IS NOT NULL
		  AND (lon, lat) = (
			SELECT lon, lat FROM grid_points
			WHERE dataset_id = $1 AND variable_id = $2
			ORDER BY (lon - $3) * (lon - $3) + (lat - $4) * (lat - $4)
			LIMIT 1
		  )
		  AND (z IS NULL OR z = (
			SELECT z FROM grid_points
			WHERE dataset_id = $1 AND variable_id = $2 AND z IS NOT NULL
			ORDER BY ABS(z - $5)
			LIMIT 1
		  ))
		ORDER BY t
	`

	var rows []struct {
		T     time.Time `db:"t"`
		Value float64   `db:"value"`
	}
	err = c.db.SelectContext(ctx, "extract_timeseries", &rows, query,
		handle.Dataset, handle.Variable, pos.Lon, pos.Lat, elevation)
	if err != nil {
		return nil, fmt.Errorf("failed to extract timeseries: %w", err)
	}

	series := make([]models.TimeseriesPoint, 0, len(rows))
	for _, row := range rows {
		series = append(series, models.TimeseriesPoint{Time: row.T, Value: row.Value})
	}
	return series, nil
}

// ExtractProfiles returns vertical profiles near the position.
// Grid variables yield at most one profile at the nearest stored point.
func (c *PostgresCatalogue) ExtractProfiles(ctx context.Context, handle models.LayerHandle, pos models.Position, timeRange models.TimeExtent, sensitivity float64) ([]models.Profile, error) {
	defer c.metrics.NewTimer(c.metrics.ExtractionDuration.WithLabelValues("profile")).ObserveDuration()
	c.metrics.RecordExtraction("profile")

	info, err := c.GetLayerInfo(ctx, handle)
	if err != nil {
		return nil, err
	}

	if info.Kind == models.KindGrid {
		return c.extractGridProfile(ctx, handle, pos)
	}

	window := pos.Around(sensitivity)
	query := `
		SELECT profile_id, lon, lat, z, value
		FROM profile_points
		WHERE dataset_id = $1 AND variable_id = $2
		  AND lon >= $3 AND lon <= $4 AND lat >= $5 AND lat <= $6
		  AND ($7::timestamptz IS NULL OR t >= $7)
		  AND ($8::timestamptz IS NULL OR t <= $8)
		ORDER BY profile_id, z
	`

	var tLow, tHigh *time.Time
	if !timeRange.Low.IsZero() {
		tLow = &timeRange.Low
	}
	if !timeRange.High.IsZero() {
		tHigh = &timeRange.High
	}

	var rows []struct {
		ProfileID string  `db:"profile_id"`
		Lon       float64 `db:"lon"`
		Lat       float64 `db:"lat"`
		Z         float64 `db:"z"`
		Value     float64 `db:"value"`
	}
	err = c.db.SelectContext(ctx, "extract_profiles", &rows, query,
		handle.Dataset, handle.Variable,
		window.MinLon, window.MaxLon, window.MinLat, window.MaxLat,
		tLow, tHigh)
	if err != nil {
		return nil, fmt.Errorf("failed to extract profiles: %w", err)
	}

	var profiles []models.Profile
	var current *models.Profile
	lastID := ""
	for _, row := range rows {
		if row.ProfileID != lastID {
			profiles = append(profiles, models.Profile{
				Position: models.Position{Lon: row.Lon, Lat: row.Lat},
			})
			current = &profiles[len(profiles)-1]
			lastID = row.ProfileID
		}
		current.Points = append(current.Points, models.ProfilePoint{
			Elevation: row.Z,
			Value:     row.Value,
		})
	}
	return profiles, nil
}

func (c *PostgresCatalogue) extractGridProfile(ctx context.Context, handle models.LayerHandle, pos models.Position) ([]models.Profile, error) {
	query := `
		SELECT lon, lat, z, value
		FROM grid_points
		WHERE dataset_id = $1 AND variable_id = $2 AND z IS NOT NULL
		  AND (lon, lat) = (
			SELECT lon, lat FROM grid_points
			WHERE dataset_id = $1 AND variable_id = $2
			ORDER BY (lon - $3) * (lon - $3) + (lat - $4) * (lat - $4)
			LIMIT 1
		  )
		ORDER BY z
	`

	var rows []struct {
		Lon   float64 `db:"lon"`
		Lat   float64 `db:"lat"`
		Z     float64 `db:"z"`
		Value float64 `db:"value"`
	}
	err := c.db.SelectContext(ctx, "extract_grid_profile", &rows, query,
		handle.Dataset, handle.Variable, pos.Lon, pos.Lat)
	if err != nil {
		return nil, fmt.Errorf("failed to extract grid profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	profile := models.Profile{
		Position: models.Position{Lon: rows[0].Lon, Lat: rows[0].Lat},
	}
	for _, row := range rows {
		profile.Points = append(profile.Points, models.ProfilePoint{
			Elevation: row.Z,
			Value:     row.Value,
		})
	}
	return []models.Profile{profile}, nil
}

// nearestSlice resolves the cursor to the nearest stored time and elevation
// values, or nil when the variable has no such axis
func (c *PostgresCatalogue) nearestSlice(ctx context.Context, handle models.LayerHandle, cursor models.Cursor) (*time.Time, *float64, error) {
	var tRow struct {
		T *time.Time `db:"t"`
	}
	tQuery := `
		SELECT t FROM grid_points
		WHERE dataset_id = $1 AND variable_id = $2 AND t IS NOT NULL
		ORDER BY ABS(EXTRACT(EPOCH FROM (t - $3::timestamptz)))
		LIMIT 1
	`
	err := c.db.GetContext(ctx, "nearest_time_slice", &tRow, tQuery,
		handle.Dataset, handle.Variable, cursor.Time)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, fmt.Errorf("failed to find nearest time slice: %w", err)
	}

	var zRow struct {
		Z *float64 `db:"z"`
	}
	zQuery := `
		SELECT z FROM grid_points
		WHERE dataset_id = $1 AND variable_id = $2 AND z IS NOT NULL
		ORDER BY ABS(z - $3)
		LIMIT 1
	`
	err = c.db.GetContext(ctx, "nearest_elevation_slice", &zRow, zQuery,
		handle.Dataset, handle.Variable, cursor.Elevation)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, fmt.Errorf("failed to find nearest elevation slice: %w", err)
	}

	return tRow.T, zRow.Z, nil
}
