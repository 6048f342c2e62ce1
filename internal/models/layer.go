package models

import (
	"fmt"
	"strings"
	"time"
)

// LayerHandle identifies a selectable data layer as a dataset/variable pair.
// Immutable once resolved.
type LayerHandle struct {
	Dataset  string `json:"dataset" db:"dataset_id"`
	Variable string `json:"variable" db:"variable_id"`
}

// String returns the canonical layer name
func (h LayerHandle) String() string {
	return h.Dataset + "/" + h.Variable
}

// IsZero reports whether the handle is unset
func (h LayerHandle) IsZero() bool {
	return h.Dataset == "" && h.Variable == ""
}

// ParseLayerName parses a "dataset/variable" layer name.
// Returns a LayerNotFoundError if the name is not of the two-part form.
func ParseLayerName(name string) (LayerHandle, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return LayerHandle{}, &LayerNotFoundError{
			Name:   name,
			Reason: "layer name is malformed, expected \"dataset/variable\"",
		}
	}
	return LayerHandle{Dataset: parts[0], Variable: parts[1]}, nil
}

// Extent is a closed numeric range
type Extent struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v lies within the extent
func (e Extent) Contains(v float64) bool {
	return v >= e.Low && v <= e.High
}

// Clamp returns v limited to the extent bounds
func (e Extent) Clamp(v float64) float64 {
	if v < e.Low {
		return e.Low
	}
	if v > e.High {
		return e.High
	}
	return v
}

// Equal reports whether two extents have identical bounds
func (e Extent) Equal(other Extent) bool {
	return e.Low == other.Low && e.High == other.High
}

// TimeExtent is a closed temporal range
type TimeExtent struct {
	Low  time.Time `json:"low"`
	High time.Time `json:"high"`
}

// Contains reports whether t lies within the extent
func (e TimeExtent) Contains(t time.Time) bool {
	return !t.Before(e.Low) && !t.After(e.High)
}

// Clamp returns t limited to the extent bounds
func (e TimeExtent) Clamp(t time.Time) time.Time {
	if t.Before(e.Low) {
		return e.Low
	}
	if t.After(e.High) {
		return e.High
	}
	return t
}

// Equal reports whether two extents have identical bounds
func (e TimeExtent) Equal(other TimeExtent) bool {
	return e.Low.Equal(other.Low) && e.High.Equal(other.High)
}

// VerticalDomain describes the vertical extent of a variable
type VerticalDomain struct {
	Extent Extent `json:"extent"`
	Units  string `json:"units"`
	// PositiveUp indicates whether values increase upward (height) or
	// downward (depth)
	PositiveUp bool `json:"positive_up"`
}

// VariableDomain is a read-only snapshot of a variable's valid ranges.
// Either domain may be absent.
type VariableDomain struct {
	Vertical *VerticalDomain `json:"vertical,omitempty"`
	Temporal *TimeExtent     `json:"temporal,omitempty"`
}

// LayerKind distinguishes the data layer variants
type LayerKind string

const (
	KindGrid    LayerKind = "grid"
	KindProfile LayerKind = "profile"
)

// Capabilities describes which queries a layer kind supports
type Capabilities struct {
	SupportsTimeAxis        bool `json:"supports_time_axis"`
	SupportsElevationAxis   bool `json:"supports_elevation_axis"`
	SupportsPointTimeseries bool `json:"supports_point_timeseries"`
	SupportsPointProfile    bool `json:"supports_point_profile"`
}

// LayerInfo describes a catalogue entry for listing and style defaults
type LayerInfo struct {
	Handle    LayerHandle `json:"handle"`
	Title     string      `json:"title"`
	Units     string      `json:"units"`
	Kind      LayerKind   `json:"kind"`
	ScaleLow  float64     `json:"scale_low"`
	ScaleHigh float64     `json:"scale_high"`
}

// Cursor is the (time, elevation) point at which a layer is being evaluated,
// together with the selection ranges each value was chosen from
type Cursor struct {
	Time           time.Time  `json:"time"`
	Elevation      float64    `json:"elevation"`
	TimeRange      TimeExtent `json:"time_range"`
	ElevationRange Extent     `json:"elevation_range"`
}

// Axis identifies a selector axis
type Axis string

const (
	AxisTime      Axis = "time"
	AxisElevation Axis = "elevation"
)

// Valid reports whether the axis is a known selector axis
func (a Axis) Valid() bool {
	return a == AxisTime || a == AxisElevation
}

// TileKey addresses a rendered tile in the cache
type TileKey struct {
	LayerVersion uint64
	Address      TileAddress
	Time         time.Time
	Elevation    float64
}

// String returns a stable cache key representation
func (k TileKey) String() string {
	return fmt.Sprintf("v%d/L%d/r%d/c%d/t%d/z%g",
		k.LayerVersion, k.Address.Level, k.Address.Row, k.Address.Col,
		k.Time.UnixMilli(), k.Elevation)
}
