package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseLayerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		want    LayerHandle
	}{
		{
			name:  "valid two-part name",
			input: "ocean/temp",
			want:  LayerHandle{Dataset: "ocean", Variable: "temp"},
		},
		{
			name:    "missing separator",
			input:   "oceantemp",
			wantErr: true,
		},
		{
			name:    "too many separators",
			input:   "ocean/temp/extra",
			wantErr: true,
		},
		{
			name:    "empty dataset",
			input:   "/temp",
			wantErr: true,
		},
		{
			name:    "empty variable",
			input:   "ocean/",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle, err := ParseLayerName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				var notFound *LayerNotFoundError
				if !errors.As(err, &notFound) {
					t.Errorf("Expected LayerNotFoundError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if handle != tt.want {
				t.Errorf("ParseLayerName(%q) = %v, want %v", tt.input, handle, tt.want)
			}
			if handle.String() != tt.input {
				t.Errorf("String() = %q, want %q", handle.String(), tt.input)
			}
		})
	}
}

func TestExtentClamp(t *testing.T) {
	e := Extent{Low: 0, High: 100}

	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{name: "within range", value: 42, want: 42},
		{name: "below low", value: -5, want: 0},
		{name: "above high", value: 250, want: 100},
		{name: "at bound", value: 100, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Clamp(tt.value); got != tt.want {
				t.Errorf("Clamp(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestTimeExtentClamp(t *testing.T) {
	low := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	high := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	e := TimeExtent{Low: low, High: high}

	if got := e.Clamp(low.Add(-time.Hour)); !got.Equal(low) {
		t.Errorf("Clamp before low = %v, want %v", got, low)
	}
	if got := e.Clamp(high.Add(time.Hour)); !got.Equal(high) {
		t.Errorf("Clamp after high = %v, want %v", got, high)
	}
	mid := low.Add(high.Sub(low) / 2)
	if got := e.Clamp(mid); !got.Equal(mid) {
		t.Errorf("Clamp within = %v, want %v", got, mid)
	}
}

func TestTileKeyString(t *testing.T) {
	key := TileKey{
		LayerVersion: 7,
		Address:      TileAddress{Level: 2, Row: 3, Col: 4},
		Time:         time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Elevation:    50,
	}

	first := key.String()
	second := key.String()
	if first != second {
		t.Error("Expected a stable key representation")
	}

	other := key
	other.LayerVersion = 8
	if other.String() == first {
		t.Error("Expected distinct keys for distinct versions")
	}

	other = key
	other.Elevation = 100
	if other.String() == first {
		t.Error("Expected distinct keys for distinct elevations")
	}
}

func TestLayerNotFoundError(t *testing.T) {
	err := &LayerNotFoundError{Name: "bad name", Reason: "malformed"}
	if err.Error() == "" {
		t.Error("Expected a message")
	}
	if err.IsTransient() {
		t.Error("Expected layer resolution failures to be permanent")
	}
}
