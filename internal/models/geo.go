package models

import (
	"math"
	"time"
)

// Position is a geographic point in degrees
type Position struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// BoundingBox is a geographic rectangle in degrees
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Around returns a box of the given half-width centered on p
func (p Position) Around(sensitivity float64) BoundingBox {
	return BoundingBox{
		MinLon: p.Lon - sensitivity,
		MinLat: p.Lat - sensitivity,
		MaxLon: p.Lon + sensitivity,
		MaxLat: p.Lat + sensitivity,
	}
}

// Contains reports whether the position lies within the box
func (b BoundingBox) Contains(p Position) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon &&
		p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

const (
	// TileSize is the pixel width and height of a rendered tile
	TileSize = 128
	// LevelZeroTileDelta is the degree span of a level-zero tile
	LevelZeroTileDelta = 36.0
	// MaxTileLevel is the deepest tile subdivision level
	MaxTileLevel = 9
)

// TileAddress identifies a geographic tile at a subdivision level.
// Level 0 tiles span LevelZeroTileDelta degrees; each level halves the span.
// Row 0 starts at -90 latitude, column 0 at -180 longitude.
type TileAddress struct {
	Level int `json:"level"`
	Row   int `json:"row"`
	Col   int `json:"col"`
}

// Delta returns the degree span of a tile at this address's level
func (a TileAddress) Delta() float64 {
	return LevelZeroTileDelta / math.Pow(2, float64(a.Level))
}

// Bounds returns the geographic extent of the tile
func (a TileAddress) Bounds() BoundingBox {
	d := a.Delta()
	return BoundingBox{
		MinLon: -180 + float64(a.Col)*d,
		MinLat: -90 + float64(a.Row)*d,
		MaxLon: -180 + float64(a.Col+1)*d,
		MaxLat: -90 + float64(a.Row+1)*d,
	}
}

// Grid is a rectangular array of extracted values covering Bounds.
// Missing cells are NaN. Values are stored row-major, row 0 at the
// southern edge.
type Grid struct {
	Width  int
	Height int
	Bounds BoundingBox
	Values []float64
}

// NewGrid allocates a grid with all cells missing
func NewGrid(width, height int, bounds BoundingBox) *Grid {
	values := make([]float64, width*height)
	for i := range values {
		values[i] = math.NaN()
	}
	return &Grid{Width: width, Height: height, Bounds: bounds, Values: values}
}

// At returns the value at cell (x, y)
func (g *Grid) At(x, y int) float64 {
	return g.Values[y*g.Width+x]
}

// Set assigns the value at cell (x, y)
func (g *Grid) Set(x, y int, v float64) {
	g.Values[y*g.Width+x] = v
}

// IsMissing reports whether v is the missing-data sentinel
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// TimeseriesPoint is a (time, value) sample
type TimeseriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// ProfilePoint is an (elevation, value) sample
type ProfilePoint struct {
	Elevation float64 `json:"elevation"`
	Value     float64 `json:"value"`
}

// Profile is a vertical series of samples at a geographic position
type Profile struct {
	Position Position       `json:"position"`
	Points   []ProfilePoint `json:"points"`
}
