package catalogue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/database"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
)

// Seeder loads demo data into the PostgreSQL catalogue so a fresh install
// has layers to show
type Seeder struct {
	db     *database.PostgresDB
	logger *logging.StructuredLogger
}

// NewSeeder creates a seeder
func NewSeeder(db *database.PostgresDB, logger *logging.StructuredLogger) *Seeder {
	return &Seeder{db: db, logger: logger}
}

// SeedResult summarizes what was inserted
type SeedResult struct {
	Variables     int
	GridPoints    int
	ProfilePoints int
}

// SeedDemo inserts a small synthetic dataset: a 3D ocean temperature field,
// a 2D surface pressure field and a set of discrete salinity profiles.
// Existing variables with the same ids are replaced.
func (s *Seeder) SeedDemo(ctx context.Context) (*SeedResult, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &SeedResult{}
	baseTime := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{baseTime, baseTime.AddDate(0, 0, 10), baseTime.AddDate(0, 0, 20)}
	depths := []float64{0, 50, 100, 200}

	variables := []struct {
		dataset, variable, title, units, kind string
		scaleLow, scaleHigh                   float64
		zUnits                                *string
		zPositiveUp                           *bool
	}{
		{"ocean", "temp", "Sea water temperature", "degC", "grid", 0, 30, strPtr("m"), boolPtr(false)},
		{"atmos", "pressure", "Surface pressure", "hPa", "grid", 950, 1050, nil, nil},
		{"argo", "salinity", "Practical salinity", "psu", "profile", 30, 40, strPtr("m"), boolPtr(false)},
	}

	for _, v := range variables {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM variables WHERE dataset_id = $1 AND variable_id = $2`,
			v.dataset, v.variable); err != nil {
			return nil, fmt.Errorf("failed to clear variable %s/%s: %w", v.dataset, v.variable, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO variables (dataset_id, variable_id, title, units, kind, scale_low, scale_high, z_units, z_positive_up)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			v.dataset, v.variable, v.title, v.units, v.kind, v.scaleLow, v.scaleHigh, v.zUnits, v.zPositiveUp); err != nil {
			return nil, fmt.Errorf("failed to insert variable %s/%s: %w", v.dataset, v.variable, err)
		}
		result.Variables++
	}

	// ocean/temp: 10x10 grid over the North Atlantic, all times and depths
	for _, t := range times {
		for _, z := range depths {
			for yi := 0; yi < 10; yi++ {
				for xi := 0; xi < 10; xi++ {
					lon := -40.0 + float64(xi)*2
					lat := 40.0 + float64(yi)*1.5
					value := syntheticTemperature(lon, lat, z, t, baseTime)
					if _, err := tx.ExecContext(ctx, `
						INSERT INTO grid_points (dataset_id, variable_id, t, z, lon, lat, value)
						VALUES ('ocean', 'temp', $1, $2, $3, $4, $5)`,
						t, z, lon, lat, value); err != nil {
						return nil, fmt.Errorf("failed to insert grid point: %w", err)
					}
					result.GridPoints++
				}
			}
		}
	}

	// atmos/pressure: 10x10 grid with a time axis only
	for _, t := range times {
		for yi := 0; yi < 10; yi++ {
			for xi := 0; xi < 10; xi++ {
				lon := -40.0 + float64(xi)*2
				lat := 40.0 + float64(yi)*1.5
				value := 1000 + 15*math.Sin(lon/10+float64(t.Unix()%86400)/86400)
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO grid_points (dataset_id, variable_id, t, z, lon, lat, value)
					VALUES ('atmos', 'pressure', $1, NULL, $2, $3, $4)`,
					t, lon, lat, value); err != nil {
					return nil, fmt.Errorf("failed to insert grid point: %w", err)
				}
				result.GridPoints++
			}
		}
	}

	// argo/salinity: discrete float profiles
	positions := []models.Position{
		{Lon: -30, Lat: 45}, {Lon: -28, Lat: 47}, {Lon: -35, Lat: 44},
	}
	for i, pos := range positions {
		profileID := fmt.Sprintf("float-%03d", i+1)
		for _, z := range depths {
			value := 35 + 1.5*math.Sin(pos.Lon/5) - z/400
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO profile_points (dataset_id, variable_id, profile_id, t, z, lon, lat, value)
				VALUES ('argo', 'salinity', $1, $2, $3, $4, $5, $6)`,
				profileID, times[i%len(times)], z, pos.Lon, pos.Lat, value); err != nil {
				return nil, fmt.Errorf("failed to insert profile point: %w", err)
			}
			result.ProfilePoints++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seed data: %w", err)
	}

	s.logger.Info(ctx, "[SEED] Demo data loaded", logging.Fields{
		"variables":      result.Variables,
		"grid_points":    result.GridPoints,
		"profile_points": result.ProfilePoints,
	})
	return result, nil
}

// syntheticTemperature is a smooth field that varies on every axis, so
// rendered tiles and extracted charts have visible structure
func syntheticTemperature(lon, lat, depth float64, t, base time.Time) float64 {
	days := t.Sub(base).Hours() / 24
	surface := 22 - (lat-40)/2 + 2*math.Sin(lon/8) + math.Sin(days/10*2*math.Pi)
	return surface * math.Exp(-depth/150)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
