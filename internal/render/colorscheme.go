package render

import (
	"image/color"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
)

// ColorScheme is a monotone mapping from numeric value to RGBA over a fixed
// scale range. Values below/clamped to the range use the clamp colors and
// missing values map to full transparency.
type ColorScheme struct {
	Scale      models.Extent
	Palette    string        // effective palette name
	Stops      []color.NRGBA // ordered palette stops, interpolated linearly
	BelowColor color.NRGBA
	AboveColor color.NRGBA
}

// Palettes holds the built-in palette stop lists
var Palettes = map[string][]color.NRGBA{
	"rainbow": {
		{R: 0, G: 0, B: 143, A: 255},
		{R: 0, G: 0, B: 255, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
		{R: 128, G: 0, B: 0, A: 255},
	},
	"viridis": {
		{R: 68, G: 1, B: 84, A: 255},
		{R: 59, G: 82, B: 139, A: 255},
		{R: 33, G: 145, B: 140, A: 255},
		{R: 94, G: 201, B: 98, A: 255},
		{R: 253, G: 231, B: 37, A: 255},
	},
}

// DefaultPalette is used when a layer does not name one
const DefaultPalette = "rainbow"

// NewColorScheme builds a scheme over the given scale using a named palette.
// Unknown palette names fall back to the default.
func NewColorScheme(scale models.Extent, palette string) *ColorScheme {
	stops, ok := Palettes[palette]
	if !ok {
		palette = DefaultPalette
		stops = Palettes[palette]
	}
	return &ColorScheme{
		Scale:      scale,
		Palette:    palette,
		Stops:      stops,
		BelowColor: stops[0],
		AboveColor: stops[len(stops)-1],
	}
}

// Map converts a value to its color. Missing values are transparent.
func (s *ColorScheme) Map(value float64) color.NRGBA {
	if models.IsMissing(value) {
		return color.NRGBA{}
	}
	if value < s.Scale.Low {
		return s.BelowColor
	}
	if value > s.Scale.High {
		return s.AboveColor
	}

	span := s.Scale.High - s.Scale.Low
	if span <= 0 || len(s.Stops) == 1 {
		return s.Stops[0]
	}

	// Position within the stop list
	pos := (value - s.Scale.Low) / span * float64(len(s.Stops)-1)
	idx := int(pos)
	if idx >= len(s.Stops)-1 {
		return s.Stops[len(s.Stops)-1]
	}
	frac := pos - float64(idx)

	a := s.Stops[idx]
	b := s.Stops[idx+1]
	return color.NRGBA{
		R: lerp(a.R, b.R, frac),
		G: lerp(a.G, b.G, frac),
		B: lerp(a.B, b.B, frac),
		A: lerp(a.A, b.A, frac),
	}
}

func lerp(a, b uint8, frac float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*frac)
}
