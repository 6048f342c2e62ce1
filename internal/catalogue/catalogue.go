package catalogue

import (
	"context"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
)

// Catalogue resolves layer names to data and metadata.
//
// Extraction methods follow a soft-fail contract: missing data is returned
// as NaN cells or empty slices, never as an error. Only malformed or unknown
// layer names produce a LayerNotFoundError.
type Catalogue interface {
	// ResolveLayer resolves a "dataset/variable" name to a handle.
	// Fails with a LayerNotFoundError for malformed or unknown names.
	ResolveLayer(ctx context.Context, name string) (models.LayerHandle, error)

	// GetLayerInfo returns catalogue metadata for a resolved layer
	GetLayerInfo(ctx context.Context, handle models.LayerHandle) (models.LayerInfo, error)

	// GetDomain returns whichever of temporal/vertical extents the variable supports
	GetDomain(ctx context.Context, handle models.LayerHandle) (models.VariableDomain, error)

	// Layers lists all selectable layers
	Layers(ctx context.Context) ([]models.LayerInfo, error)

	// ExtractMapValues extracts a width x height grid of values covering bbox
	// at the given time and elevation. Cells with no data are NaN.
	ExtractMapValues(ctx context.Context, handle models.LayerHandle, bbox models.BoundingBox, cursor models.Cursor, width, height int) (*models.Grid, error)

	// SampleValueAtPoint returns the nearest-cell value within a small
	// sensitivity window around the position. NaN when no data is near.
	SampleValueAtPoint(ctx context.Context, handle models.LayerHandle, pos models.Position, cursor models.Cursor, sensitivity float64) (float64, error)

	// ExtractTimeseries returns the series of values over the variable's time
	// axis at the position and elevation. Empty when the layer kind does not
	// support temporal extraction.
	ExtractTimeseries(ctx context.Context, handle models.LayerHandle, pos models.Position, elevation float64) ([]models.TimeseriesPoint, error)

	// ExtractProfiles returns vertical profiles near the position within the
	// time range. Empty when the layer kind does not support vertical
	// extraction. Grid layers return at most one profile.
	ExtractProfiles(ctx context.Context, handle models.LayerHandle, pos models.Position, timeRange models.TimeExtent, sensitivity float64) ([]models.Profile, error)
}

// KindCapabilities returns the query capabilities of a layer kind
func KindCapabilities(kind models.LayerKind) models.Capabilities {
	switch kind {
	case models.KindGrid:
		return models.Capabilities{
			SupportsTimeAxis:        true,
			SupportsElevationAxis:   true,
			SupportsPointTimeseries: true,
			SupportsPointProfile:    true,
		}
	case models.KindProfile:
		return models.Capabilities{
			SupportsTimeAxis:        true,
			SupportsElevationAxis:   true,
			SupportsPointTimeseries: false,
			SupportsPointProfile:    true,
		}
	default:
		return models.Capabilities{}
	}
}
