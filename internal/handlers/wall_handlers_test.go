package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/featureinfo"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/render"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/scheduler"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/tilecache"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/wall"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/artifacts"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

var testMetrics = metrics.NewCollector("handlers_test")

var (
	timeLow  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	timeHigh = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	cat := catalogue.NewMemoryCatalogue()
	values := make([]float64, 2*2*2*2)
	for i := range values {
		values[i] = 10 + float64(i)
	}
	cat.AddGridVariable(&catalogue.GridVariable{
		Info: models.LayerInfo{
			Handle:    models.LayerHandle{Dataset: "ocean", Variable: "temp"},
			Title:     "Sea water temperature",
			Units:     "degC",
			ScaleLow:  0,
			ScaleHigh: 30,
		},
		Lons:       []float64{-10, 10},
		Lats:       []float64{40, 50},
		Elevations: []float64{0, 100},
		Times:      []time.Time{timeLow, timeHigh},
		ZUnits:     "m",
		Values:     values,
	})

	logger := logging.NewStructuredLogger("handlers-test", "test", logging.FatalLevel)
	logger.SetOutput(io.Discard)

	renderer := render.NewTileRenderer(cat, testMetrics)
	cache := tilecache.New(64, nil, logger, testMetrics)
	pool := scheduler.NewPool(2, 16, logger, testMetrics)
	pool.Start()
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Stop(stopCtx)
	})

	w := wall.New(cat, renderer, cache, pool, logger, testMetrics)
	presenter := featureinfo.NewLatestPresenter()
	store := artifacts.NewMemoryStore()
	service := featureinfo.New(cat, w, noopCharts{}, store, pool, presenter, logger, testMetrics)

	handler := NewWallHandler(w, cat, service, presenter, store, logger, testMetrics)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

// noopCharts avoids rasterizing real charts in handler tests
type noopCharts struct{}

func (noopCharts) RenderTimeseries(title, units string, points []models.TimeseriesPoint, width, height int) ([]byte, error) {
	return []byte("png"), nil
}

func (noopCharts) RenderProfile(title, zUnits, units string, profile models.Profile, positiveUp bool, width, height int) ([]byte, error) {
	return []byte("png"), nil
}

func doRequest(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetLayers(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, "GET", "/api/layers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var layers []models.LayerInfo
	if err := json.NewDecoder(rec.Body).Decode(&layers); err != nil {
		t.Fatalf("Expected JSON layer list, got %v", err)
	}
	if len(layers) != 1 || layers[0].Handle.String() != "ocean/temp" {
		t.Errorf("Expected [ocean/temp], got %v", layers)
	}
}

func TestSetViewLayer(t *testing.T) {
	router := newTestRouter(t)

	if rec := doRequest(t, router, "POST", "/api/views/a", ""); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	rec := doRequest(t, router, "PUT", "/api/views/a/layer", `{"layer":"ocean/temp"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var states []wall.ViewState
	if err := json.NewDecoder(rec.Body).Decode(&states); err != nil {
		t.Fatalf("Expected JSON wall state, got %v", err)
	}
	if len(states) != 1 || states[0].Layer != "ocean/temp" {
		t.Errorf("Expected view a showing ocean/temp, got %v", states)
	}
}

func TestSetViewLayerUnknown(t *testing.T) {
	router := newTestRouter(t)
	doRequest(t, router, "POST", "/api/views/a", "")

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "unknown layer", body: `{"layer":"ocean/nope"}`, code: http.StatusNotFound},
		{name: "malformed name", body: `{"layer":"oneword"}`, code: http.StatusNotFound},
		{name: "missing body", body: "", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, "PUT", "/api/views/a/layer", tt.body)
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestMoveSelector(t *testing.T) {
	router := newTestRouter(t)
	doRequest(t, router, "POST", "/api/views/a", "")
	doRequest(t, router, "PUT", "/api/views/a/layer", `{"layer":"ocean/temp"}`)

	rec := doRequest(t, router, "PUT", "/api/views/a/selectors/elevation", `{"value": 100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var states []wall.ViewState
	json.NewDecoder(rec.Body).Decode(&states)
	if states[0].Cursor == nil || states[0].Cursor.Elevation != 100 {
		t.Errorf("Expected elevation 100, got %+v", states[0].Cursor)
	}

	rec = doRequest(t, router, "PUT", "/api/views/a/selectors/time", `{"value": "2024-06-15T00:00:00Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, "PUT", "/api/views/a/selectors/depth", `{"value": 1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown axis, got %d", rec.Code)
	}

	rec = doRequest(t, router, "PUT", "/api/views/missing/selectors/elevation", `{"value": 1}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown view, got %d", rec.Code)
	}
}

func TestGetTile(t *testing.T) {
	router := newTestRouter(t)
	doRequest(t, router, "POST", "/api/views/a", "")

	rec := doRequest(t, router, "GET", "/api/views/a/tiles/0/2/4", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 without a layer, got %d", rec.Code)
	}

	doRequest(t, router, "PUT", "/api/views/a/layer", `{"layer":"ocean/temp"}`)
	rec = doRequest(t, router, "GET", "/api/views/a/tiles/0/2/4", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte{0x89, 'P', 'N', 'G'}) {
		t.Error("Expected PNG body")
	}

	rec = doRequest(t, router, "GET", "/api/views/a/tiles/99/0/0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid level, got %d", rec.Code)
	}
}

func TestFeatureInfoRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	doRequest(t, router, "POST", "/api/views/a", "")
	doRequest(t, router, "PUT", "/api/views/a/layer", `{"layer":"ocean/temp"}`)

	rec := doRequest(t, router, "POST", "/api/views/a/feature-info", `{"lon": 0, "lat": 45}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	// The query runs on the pool; poll for the result
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doRequest(t, router, "GET", "/api/views/a/feature-info", "")
		if rec.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for feature-info result, last status %d", rec.Code)
		}
		time.Sleep(20 * time.Millisecond)
	}

	var result featureinfo.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Expected JSON result, got %v", err)
	}
	if result.Value == nil {
		t.Error("Expected a sampled value")
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
