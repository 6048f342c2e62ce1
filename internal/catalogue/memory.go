package catalogue

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
)

// GridVariable holds an in-memory gridded variable on regular lat/lon axes
// with optional elevation and time axes.
type GridVariable struct {
	Info models.LayerInfo

	Lons       []float64
	Lats       []float64
	Elevations []float64   // nil when the variable has no vertical axis
	Times      []time.Time // nil when the variable has no temporal axis

	ZUnits      string
	ZPositiveUp bool

	// Values indexed [t][z][y][x], flattened; axes of length 1 when absent
	Values []float64
}

// StoredProfile is a discrete vertical profile observation
type StoredProfile struct {
	Position models.Position
	Time     time.Time
	Points   []models.ProfilePoint
}

// ProfileVariable holds a collection of discrete profiles for a variable
type ProfileVariable struct {
	Info        models.LayerInfo
	ZUnits      string
	ZPositiveUp bool
	Profiles    []StoredProfile
}

// MemoryCatalogue is an in-memory catalogue backend. It is the reference
// implementation of the Catalogue contract and the test backend.
type MemoryCatalogue struct {
	mu       sync.RWMutex
	grids    map[models.LayerHandle]*GridVariable
	profiles map[models.LayerHandle]*ProfileVariable
}

// NewMemoryCatalogue creates an empty in-memory catalogue
func NewMemoryCatalogue() *MemoryCatalogue {
	return &MemoryCatalogue{
		grids:    make(map[models.LayerHandle]*GridVariable),
		profiles: make(map[models.LayerHandle]*ProfileVariable),
	}
}

// AddGridVariable registers a gridded variable
func (c *MemoryCatalogue) AddGridVariable(v *GridVariable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v.Info.Kind = models.KindGrid
	c.grids[v.Info.Handle] = v
}

// AddProfileVariable registers a profile variable
func (c *MemoryCatalogue) AddProfileVariable(v *ProfileVariable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v.Info.Kind = models.KindProfile
	c.profiles[v.Info.Handle] = v
}

// ResolveLayer resolves a "dataset/variable" name to a handle
func (c *MemoryCatalogue) ResolveLayer(ctx context.Context, name string) (models.LayerHandle, error) {
	handle, err := models.ParseLayerName(name)
	if err != nil {
		return models.LayerHandle{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.grids[handle]; ok {
		return handle, nil
	}
	if _, ok := c.profiles[handle]; ok {
		return handle, nil
	}
	return models.LayerHandle{}, &models.LayerNotFoundError{
		Name:   name,
		Reason: "no such dataset/variable",
	}
}

// GetLayerInfo returns catalogue metadata for a resolved layer
func (c *MemoryCatalogue) GetLayerInfo(ctx context.Context, handle models.LayerHandle) (models.LayerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.grids[handle]; ok {
		return v.Info, nil
	}
	if v, ok := c.profiles[handle]; ok {
		return v.Info, nil
	}
	return models.LayerInfo{}, &models.LayerNotFoundError{
		Name:   handle.String(),
		Reason: "no such dataset/variable",
	}
}

// GetDomain returns the variable's temporal and vertical extents
func (c *MemoryCatalogue) GetDomain(ctx context.Context, handle models.LayerHandle) (models.VariableDomain, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.grids[handle]; ok {
		domain := models.VariableDomain{}
		if len(v.Elevations) > 0 {
			domain.Vertical = &models.VerticalDomain{
				Extent: models.Extent{
					Low:  v.Elevations[0],
					High: v.Elevations[len(v.Elevations)-1],
				},
				Units:      v.ZUnits,
				PositiveUp: v.ZPositiveUp,
			}
		}
		if len(v.Times) > 0 {
			domain.Temporal = &models.TimeExtent{
				Low:  v.Times[0],
				High: v.Times[len(v.Times)-1],
			}
		}
		return domain, nil
	}

	if v, ok := c.profiles[handle]; ok {
		return profileDomain(v), nil
	}

	return models.VariableDomain{}, &models.LayerNotFoundError{
		Name:   handle.String(),
		Reason: "no such dataset/variable",
	}
}

func profileDomain(v *ProfileVariable) models.VariableDomain {
	domain := models.VariableDomain{}
	var zLow, zHigh = math.Inf(1), math.Inf(-1)
	var tLow, tHigh time.Time
	for _, p := range v.Profiles {
		for _, pt := range p.Points {
			if pt.Elevation < zLow {
				zLow = pt.Elevation
			}
			if pt.Elevation > zHigh {
				zHigh = pt.Elevation
			}
		}
		if tLow.IsZero() || p.Time.Before(tLow) {
			tLow = p.Time
		}
		if tHigh.IsZero() || p.Time.After(tHigh) {
			tHigh = p.Time
		}
	}
	if !math.IsInf(zLow, 1) {
		domain.Vertical = &models.VerticalDomain{
			Extent:     models.Extent{Low: zLow, High: zHigh},
			Units:      v.ZUnits,
			PositiveUp: v.ZPositiveUp,
		}
	}
	if !tLow.IsZero() {
		domain.Temporal = &models.TimeExtent{Low: tLow, High: tHigh}
	}
	return domain
}

// Layers lists all selectable layers sorted by name
func (c *MemoryCatalogue) Layers(ctx context.Context) ([]models.LayerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]models.LayerInfo, 0, len(c.grids)+len(c.profiles))
	for _, v := range c.grids {
		infos = append(infos, v.Info)
	}
	for _, v := range c.profiles {
		infos = append(infos, v.Info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Handle.String() < infos[j].Handle.String()
	})
	return infos, nil
}

// ExtractMapValues extracts a grid of values covering bbox at the cursor
func (c *MemoryCatalogue) ExtractMapValues(ctx context.Context, handle models.LayerHandle, bbox models.BoundingBox, cursor models.Cursor, width, height int) (*models.Grid, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := models.NewGrid(width, height, bbox)

	if v, ok := c.grids[handle]; ok {
		ti := nearestTimeIndex(v.Times, cursor.Time)
		zi := nearestIndex(v.Elevations, cursor.Elevation)
		lonStep := (bbox.MaxLon - bbox.MinLon) / float64(width)
		latStep := (bbox.MaxLat - bbox.MinLat) / float64(height)
		for y := 0; y < height; y++ {
			lat := bbox.MinLat + (float64(y)+0.5)*latStep
			for x := 0; x < width; x++ {
				lon := bbox.MinLon + (float64(x)+0.5)*lonStep
				out.Set(x, y, v.sample(lon, lat, zi, ti))
			}
		}
		return out, nil
	}

	if v, ok := c.profiles[handle]; ok {
		// Discrete profiles rasterize as single cells at each profile position
		lonStep := (bbox.MaxLon - bbox.MinLon) / float64(width)
		latStep := (bbox.MaxLat - bbox.MinLat) / float64(height)
		for _, p := range v.Profiles {
			if !bbox.Contains(p.Position) || len(p.Points) == 0 {
				continue
			}
			x := int((p.Position.Lon - bbox.MinLon) / lonStep)
			y := int((p.Position.Lat - bbox.MinLat) / latStep)
			if x < 0 || x >= width || y < 0 || y >= height {
				continue
			}
			out.Set(x, y, nearestProfileValue(p, cursor.Elevation))
		}
		return out, nil
	}

	return nil, &models.LayerNotFoundError{Name: handle.String(), Reason: "no such dataset/variable"}
}

// SampleValueAtPoint returns the nearest value within the sensitivity window
func (c *MemoryCatalogue) SampleValueAtPoint(ctx context.Context, handle models.LayerHandle, pos models.Position, cursor models.Cursor, sensitivity float64) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.grids[handle]; ok {
		xi := nearestIndex(v.Lons, pos.Lon)
		yi := nearestIndex(v.Lats, pos.Lat)
		if xi < 0 || yi < 0 {
			return math.NaN(), nil
		}
		if math.Abs(v.Lons[xi]-pos.Lon) > sensitivity || math.Abs(v.Lats[yi]-pos.Lat) > sensitivity {
			return math.NaN(), nil
		}
		ti := nearestTimeIndex(v.Times, cursor.Time)
		zi := nearestIndex(v.Elevations, cursor.Elevation)
		return v.at(ti, zi, yi, xi), nil
	}

	if v, ok := c.profiles[handle]; ok {
		window := pos.Around(sensitivity)
		best := math.NaN()
		bestDist := math.Inf(1)
		for _, p := range v.Profiles {
			if !window.Contains(p.Position) {
				continue
			}
			d := math.Hypot(p.Position.Lon-pos.Lon, p.Position.Lat-pos.Lat)
			if d < bestDist {
				bestDist = d
				best = nearestProfileValue(p, cursor.Elevation)
			}
		}
		return best, nil
	}

	return math.NaN(), &models.LayerNotFoundError{Name: handle.String(), Reason: "no such dataset/variable"}
}

// ExtractTimeseries returns the series over the time axis at the position.
// Profile variables do not support temporal extraction and return empty.
func (c *MemoryCatalogue) ExtractTimeseries(ctx context.Context, handle models.LayerHandle, pos models.Position, elevation float64) ([]models.TimeseriesPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.grids[handle]; ok {
		if len(v.Times) == 0 {
			return nil, nil
		}
		xi := nearestIndex(v.Lons, pos.Lon)
		yi := nearestIndex(v.Lats, pos.Lat)
		if xi < 0 || yi < 0 {
			return nil, nil
		}
		zi := nearestIndex(v.Elevations, elevation)
		series := make([]models.TimeseriesPoint, 0, len(v.Times))
		for ti, t := range v.Times {
			value := v.at(ti, zi, yi, xi)
			if models.IsMissing(value) {
				continue
			}
			series = append(series, models.TimeseriesPoint{Time: t, Value: value})
		}
		return series, nil
	}

	if _, ok := c.profiles[handle]; ok {
		return nil, nil
	}

	return nil, &models.LayerNotFoundError{Name: handle.String(), Reason: "no such dataset/variable"}
}

// ExtractProfiles returns vertical profiles near the position.
// Grid variables yield at most one profile at the nearest point.
func (c *MemoryCatalogue) ExtractProfiles(ctx context.Context, handle models.LayerHandle, pos models.Position, timeRange models.TimeExtent, sensitivity float64) ([]models.Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.grids[handle]; ok {
		if len(v.Elevations) == 0 {
			return nil, nil
		}
		xi := nearestIndex(v.Lons, pos.Lon)
		yi := nearestIndex(v.Lats, pos.Lat)
		if xi < 0 || yi < 0 {
			return nil, nil
		}
		ti := 0
		if len(v.Times) > 0 {
			target := v.Times[len(v.Times)-1]
			if !timeRange.High.IsZero() {
				target = timeRange.Clamp(target)
			}
			ti = nearestTimeIndex(v.Times, target)
		}
		profile := models.Profile{
			Position: models.Position{Lon: v.Lons[xi], Lat: v.Lats[yi]},
		}
		for zi := range v.Elevations {
			value := v.at(ti, zi, yi, xi)
			if models.IsMissing(value) {
				continue
			}
			profile.Points = append(profile.Points, models.ProfilePoint{
				Elevation: v.Elevations[zi],
				Value:     value,
			})
		}
		if len(profile.Points) == 0 {
			return nil, nil
		}
		return []models.Profile{profile}, nil
	}

	if v, ok := c.profiles[handle]; ok {
		window := pos.Around(sensitivity)
		var result []models.Profile
		for _, p := range v.Profiles {
			if !window.Contains(p.Position) {
				continue
			}
			if !timeRange.Low.IsZero() && !timeRange.Contains(p.Time) {
				continue
			}
			result = append(result, models.Profile{
				Position: p.Position,
				Points:   append([]models.ProfilePoint(nil), p.Points...),
			})
		}
		return result, nil
	}

	return nil, &models.LayerNotFoundError{Name: handle.String(), Reason: "no such dataset/variable"}
}

// sample returns the value at the grid cell nearest to (lon, lat), or NaN
// when the point falls outside the variable's coverage
func (v *GridVariable) sample(lon, lat float64, zi, ti int) float64 {
	xi := nearestIndex(v.Lons, lon)
	yi := nearestIndex(v.Lats, lat)
	if xi < 0 || yi < 0 {
		return math.NaN()
	}
	// Reject points more than one cell spacing outside the axes
	if len(v.Lons) > 1 {
		step := v.Lons[1] - v.Lons[0]
		if math.Abs(v.Lons[xi]-lon) > step {
			return math.NaN()
		}
	}
	if len(v.Lats) > 1 {
		step := v.Lats[1] - v.Lats[0]
		if math.Abs(v.Lats[yi]-lat) > step {
			return math.NaN()
		}
	}
	return v.at(ti, zi, yi, xi)
}

// at returns the stored value at the given axis indices; absent axes use index 0
func (v *GridVariable) at(ti, zi, yi, xi int) float64 {
	nz := len(v.Elevations)
	if nz == 0 {
		nz = 1
	}
	if zi < 0 {
		zi = 0
	}
	if ti < 0 {
		ti = 0
	}
	ny := len(v.Lats)
	nx := len(v.Lons)
	idx := ((ti*nz+zi)*ny+yi)*nx + xi
	if idx < 0 || idx >= len(v.Values) {
		return math.NaN()
	}
	return v.Values[idx]
}

func nearestProfileValue(p StoredProfile, elevation float64) float64 {
	best := math.NaN()
	bestDist := math.Inf(1)
	for _, pt := range p.Points {
		d := math.Abs(pt.Elevation - elevation)
		if d < bestDist {
			bestDist = d
			best = pt.Value
		}
	}
	return best
}

// nearestIndex returns the index of the axis value closest to v, or -1 for an
// empty axis
func nearestIndex(axis []float64, v float64) int {
	if len(axis) == 0 {
		return -1
	}
	best := 0
	bestDist := math.Abs(axis[0] - v)
	for i := 1; i < len(axis); i++ {
		if d := math.Abs(axis[i] - v); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// nearestTimeIndex returns the index of the axis instant closest to t, or -1
// for an empty axis
func nearestTimeIndex(axis []time.Time, t time.Time) int {
	if len(axis) == 0 {
		return -1
	}
	best := 0
	bestDist := absDuration(axis[0].Sub(t))
	for i := 1; i < len(axis); i++ {
		if d := absDuration(axis[i].Sub(t)); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
