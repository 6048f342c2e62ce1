package charts

import (
	"bytes"
	"fmt"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
)

// Generator renders feature-info extracts to PNG images
type Generator interface {
	RenderTimeseries(title, units string, points []models.TimeseriesPoint, width, height int) ([]byte, error)
	RenderProfile(title, zUnits, units string, profile models.Profile, positiveUp bool, width, height int) ([]byte, error)
}

// PNGGenerator renders charts with go-chart
type PNGGenerator struct{}

// NewPNGGenerator creates a chart generator
func NewPNGGenerator() *PNGGenerator {
	return &PNGGenerator{}
}

var seriesStyle = chart.Style{
	StrokeColor: drawing.Color{R: 0, G: 90, B: 181, A: 255},
	StrokeWidth: 1.5,
	DotColor:    drawing.Color{R: 0, G: 90, B: 181, A: 255},
	DotWidth:    2,
}

// RenderTimeseries draws value-over-time for a sampled point. Missing
// samples are skipped rather than drawn as zeros.
func (g *PNGGenerator) RenderTimeseries(title, units string, points []models.TimeseriesPoint, width, height int) ([]byte, error) {
	series := chart.TimeSeries{
		Name:  title,
		Style: seriesStyle,
	}
	for _, p := range points {
		if models.IsMissing(p.Value) {
			continue
		}
		series.XValues = append(series.XValues, p.Time)
		series.YValues = append(series.YValues, p.Value)
	}
	if len(series.XValues) < 2 {
		return nil, fmt.Errorf("not enough data points for a timeseries chart: %d", len(series.XValues))
	}

	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 10}},
		YAxis:      chart.YAxis{Name: units},
		Series:     []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("rendering timeseries chart: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderProfile draws value against elevation. The vertical coordinate goes
// on the Y axis; depth axes (positiveUp false) are flipped by negating the
// values so the surface stays at the top of the chart.
func (g *PNGGenerator) RenderProfile(title, zUnits, units string, profile models.Profile, positiveUp bool, width, height int) ([]byte, error) {
	series := chart.ContinuousSeries{
		Name:  title,
		Style: seriesStyle,
	}
	for _, p := range profile.Points {
		if models.IsMissing(p.Value) {
			continue
		}
		z := p.Elevation
		if !positiveUp {
			z = -z
		}
		series.XValues = append(series.XValues, p.Value)
		series.YValues = append(series.YValues, z)
	}
	if len(series.XValues) < 2 {
		return nil, fmt.Errorf("not enough data points for a profile chart: %d", len(series.XValues))
	}

	yAxisName := zUnits
	if !positiveUp {
		yAxisName = "-" + zUnits
	}
	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 10}},
		XAxis:      chart.XAxis{Name: units},
		YAxis:      chart.YAxis{Name: yAxisName},
		Series:     []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("rendering profile chart: %w", err)
	}
	return buf.Bytes(), nil
}
