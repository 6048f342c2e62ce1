package models

import (
	"math"
	"testing"
)

func TestTileAddressBounds(t *testing.T) {
	tests := []struct {
		name    string
		address TileAddress
		want    BoundingBox
	}{
		{
			name:    "level zero origin",
			address: TileAddress{Level: 0, Row: 0, Col: 0},
			want:    BoundingBox{MinLon: -180, MinLat: -90, MaxLon: -144, MaxLat: -54},
		},
		{
			name:    "level zero last column",
			address: TileAddress{Level: 0, Row: 0, Col: 9},
			want:    BoundingBox{MinLon: 144, MinLat: -90, MaxLon: 180, MaxLat: -54},
		},
		{
			name:    "level one halves the span",
			address: TileAddress{Level: 1, Row: 1, Col: 1},
			want:    BoundingBox{MinLon: -162, MinLat: -72, MaxLon: -144, MaxLat: -54},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.address.Bounds()
			if got != tt.want {
				t.Errorf("Bounds() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTileAddressDelta(t *testing.T) {
	if got := (TileAddress{Level: 0}).Delta(); got != 36.0 {
		t.Errorf("Delta() = %v, want 36", got)
	}
	if got := (TileAddress{Level: 3}).Delta(); got != 4.5 {
		t.Errorf("Delta() = %v, want 4.5", got)
	}
}

func TestNewGridAllMissing(t *testing.T) {
	g := NewGrid(4, 3, BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 4, MaxLat: 3})
	if g.Width != 4 || g.Height != 3 {
		t.Fatalf("Expected 4x3 grid, got %dx%d", g.Width, g.Height)
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if !IsMissing(g.At(x, y)) {
				t.Fatalf("Expected cell (%d,%d) missing", x, y)
			}
		}
	}

	g.Set(2, 1, 7.5)
	if got := g.At(2, 1); got != 7.5 {
		t.Errorf("At(2,1) = %v, want 7.5", got)
	}
	if IsMissing(g.At(2, 1)) {
		t.Error("Expected cell no longer missing")
	}
}

func TestIsMissing(t *testing.T) {
	if !IsMissing(math.NaN()) {
		t.Error("Expected NaN to be missing")
	}
	if IsMissing(0) {
		t.Error("Expected 0 to be present")
	}
}

func TestPositionAround(t *testing.T) {
	box := Position{Lon: 10, Lat: 50}.Around(0.5)
	want := BoundingBox{MinLon: 9.5, MinLat: 49.5, MaxLon: 10.5, MaxLat: 50.5}
	if box != want {
		t.Errorf("Around(0.5) = %+v, want %+v", box, want)
	}
	if !box.Contains(Position{Lon: 10, Lat: 50}) {
		t.Error("Expected the center to be contained")
	}
	if box.Contains(Position{Lon: 11, Lat: 50}) {
		t.Error("Expected a point outside the window to be excluded")
	}
}
