package render

import (
	"image/color"
	"math"
	"testing"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
)

func TestNewColorScheme(t *testing.T) {
	tests := []struct {
		name    string
		palette string
		want    string
	}{
		{"known palette", "viridis", "viridis"},
		{"default palette", "rainbow", "rainbow"},
		{"unknown palette falls back", "plasma", DefaultPalette},
		{"empty name falls back", "", DefaultPalette},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheme := NewColorScheme(models.Extent{Low: 0, High: 1}, tt.palette)
			if scheme.Palette != tt.want {
				t.Errorf("Palette = %v, want %v", scheme.Palette, tt.want)
			}
			if len(scheme.Stops) == 0 {
				t.Error("Expected palette stops")
			}
			if scheme.BelowColor != scheme.Stops[0] {
				t.Error("Expected below color to match the first stop")
			}
			if scheme.AboveColor != scheme.Stops[len(scheme.Stops)-1] {
				t.Error("Expected above color to match the last stop")
			}
		})
	}
}

func TestColorSchemeMap(t *testing.T) {
	scheme := NewColorScheme(models.Extent{Low: 0, High: 100}, "rainbow")

	// Missing values are fully transparent
	if got := scheme.Map(math.NaN()); got != (color.NRGBA{}) {
		t.Errorf("Map(NaN) = %+v, want transparent", got)
	}

	// Values outside the scale clamp to the edge colors
	if got := scheme.Map(-10); got != scheme.BelowColor {
		t.Errorf("Map(-10) = %+v, want below color %+v", got, scheme.BelowColor)
	}
	if got := scheme.Map(1000); got != scheme.AboveColor {
		t.Errorf("Map(1000) = %+v, want above color %+v", got, scheme.AboveColor)
	}

	// Scale endpoints map to the first and last stops
	if got := scheme.Map(0); got != scheme.Stops[0] {
		t.Errorf("Map(0) = %+v, want %+v", got, scheme.Stops[0])
	}
	if got := scheme.Map(100); got != scheme.Stops[len(scheme.Stops)-1] {
		t.Errorf("Map(100) = %+v, want %+v", got, scheme.Stops[len(scheme.Stops)-1])
	}

	// Interior values are opaque interpolations
	mid := scheme.Map(50)
	if mid.A != 255 {
		t.Errorf("Map(50) alpha = %d, want 255", mid.A)
	}
}

func TestColorSchemeMapDegenerateScale(t *testing.T) {
	scheme := NewColorScheme(models.Extent{Low: 5, High: 5}, "viridis")
	if got := scheme.Map(5); got != scheme.Stops[0] {
		t.Errorf("Map(5) = %+v, want first stop for zero-span scale", got)
	}
}
