package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/leexhwhy/edal-multiglobe-desktop/internal/catalogue"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/featureinfo"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/models"
	"github.com/leexhwhy/edal-multiglobe-desktop/internal/wall"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/artifacts"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

// WallHandler handles the wall inspection and control endpoints
type WallHandler struct {
	wall      *wall.Wall
	cat       catalogue.Catalogue
	info      *featureinfo.Service
	presenter *featureinfo.LatestPresenter
	store     artifacts.Store
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewWallHandler creates a new wall handler
func NewWallHandler(
	w *wall.Wall,
	cat catalogue.Catalogue,
	info *featureinfo.Service,
	presenter *featureinfo.LatestPresenter,
	store artifacts.Store,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WallHandler {
	return &WallHandler{
		wall:      w,
		cat:       cat,
		info:      info,
		presenter: presenter,
		store:     store,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// RegisterRoutes registers all wall routes
func (h *WallHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/layers", h.GetLayers).Methods("GET")
	router.HandleFunc("/api/wall", h.GetWall).Methods("GET")
	router.HandleFunc("/api/views/{id}", h.AddView).Methods("POST")
	router.HandleFunc("/api/views/{id}", h.RemoveView).Methods("DELETE")
	router.HandleFunc("/api/views/{id}/layer", h.SetViewLayer).Methods("PUT")
	router.HandleFunc("/api/views/{id}/selectors/{axis}", h.MoveSelector).Methods("PUT")
	router.HandleFunc("/api/views/{id}/settle", h.Settle).Methods("POST")
	router.HandleFunc("/api/views/{id}/display-sync", h.SetDisplaySync).Methods("PUT")
	router.HandleFunc("/api/views/{id}/tiles/{level}/{row}/{col}", h.GetTile).Methods("GET")
	router.HandleFunc("/api/views/{id}/feature-info", h.QueryFeatureInfo).Methods("POST")
	router.HandleFunc("/api/views/{id}/feature-info", h.GetFeatureInfo).Methods("GET")
	router.HandleFunc("/api/artifacts/{category}/{id}", h.GetArtifact).Methods("GET")
	router.HandleFunc("/healthz", h.Health).Methods("GET")
}

// GetLayers handles GET /api/layers
func (h *WallHandler) GetLayers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/layers")).ObserveDuration()

	layers, err := h.cat.Layers(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_LAYERS_ERROR] Failed to list layers", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/layers")
		h.sendError(w, r, "failed to list layers", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/layers", "GET", "200")
	h.sendJSON(w, layers, http.StatusOK)
}

// GetWall handles GET /api/wall
func (h *WallHandler) GetWall(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/wall")).ObserveDuration()

	h.metrics.RecordAPIRequest("/api/wall", "GET", "200")
	h.sendJSON(w, h.wall.States(), http.StatusOK)
}

// AddView handles POST /api/views/{id}
func (h *WallHandler) AddView(w http.ResponseWriter, r *http.Request) {
	id := wall.ViewID(mux.Vars(r)["id"])
	h.wall.AddView(r.Context(), id)
	h.metrics.RecordAPIRequest("/api/views", "POST", "201")
	h.sendJSON(w, map[string]string{"id": string(id)}, http.StatusCreated)
}

// RemoveView handles DELETE /api/views/{id}
func (h *WallHandler) RemoveView(w http.ResponseWriter, r *http.Request) {
	id := wall.ViewID(mux.Vars(r)["id"])
	if err := h.wall.RemoveView(r.Context(), id); err != nil {
		h.sendWallError(w, r, err, "/api/views")
		return
	}
	h.metrics.RecordAPIRequest("/api/views", "DELETE", "204")
	w.WriteHeader(http.StatusNoContent)
}

// SetLayerRequest is the body of PUT /api/views/{id}/layer
type SetLayerRequest struct {
	Layer string `json:"layer"`
}

// SetViewLayer handles PUT /api/views/{id}/layer
func (h *WallHandler) SetViewLayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/views/layer")).ObserveDuration()

	id := wall.ViewID(mux.Vars(r)["id"])

	var req SetLayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Layer == "" {
		h.sendError(w, r, "expected body {\"layer\": \"dataset/variable\"}", http.StatusBadRequest)
		return
	}

	if err := h.wall.SetViewLayer(ctx, id, req.Layer); err != nil {
		var notFound *models.LayerNotFoundError
		if errors.As(err, &notFound) {
			h.metrics.RecordAPIError("layer_not_found", "/api/views/layer")
			h.sendError(w, r, notFound.Error(), http.StatusNotFound)
			return
		}
		h.sendWallError(w, r, err, "/api/views/layer")
		return
	}

	h.metrics.RecordAPIRequest("/api/views/layer", "PUT", "200")
	h.sendJSON(w, h.wall.States(), http.StatusOK)
}

// MoveSelectorRequest is the body of PUT /api/views/{id}/selectors/{axis}.
// Time values are RFC 3339 strings, elevation values are numbers.
type MoveSelectorRequest struct {
	Value json.RawMessage `json:"value"`
}

// MoveSelector handles PUT /api/views/{id}/selectors/{axis}
func (h *WallHandler) MoveSelector(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/views/selectors")).ObserveDuration()

	vars := mux.Vars(r)
	id := wall.ViewID(vars["id"])
	axis := models.Axis(vars["axis"])
	if !axis.Valid() {
		h.sendError(w, r, "unknown selector axis, expected \"time\" or \"elevation\"", http.StatusBadRequest)
		return
	}

	var req MoveSelectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Value) == 0 {
		h.sendError(w, r, "expected body {\"value\": ...}", http.StatusBadRequest)
		return
	}

	var moveErr error
	switch axis {
	case models.AxisTime:
		var raw string
		if err := json.Unmarshal(req.Value, &raw); err != nil {
			h.sendError(w, r, "time value must be an RFC 3339 string", http.StatusBadRequest)
			return
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.sendError(w, r, "time value must be an RFC 3339 string", http.StatusBadRequest)
			return
		}
		moveErr = h.wall.MoveTimeSelector(ctx, id, t)
	case models.AxisElevation:
		var v float64
		if err := json.Unmarshal(req.Value, &v); err != nil {
			h.sendError(w, r, "elevation value must be a number", http.StatusBadRequest)
			return
		}
		moveErr = h.wall.MoveElevationSelector(ctx, id, v)
	}

	if moveErr != nil {
		h.sendWallError(w, r, moveErr, "/api/views/selectors")
		return
	}

	h.metrics.RecordAPIRequest("/api/views/selectors", "PUT", "200")
	h.sendJSON(w, h.wall.States(), http.StatusOK)
}

// Settle handles POST /api/views/{id}/settle
func (h *WallHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id := wall.ViewID(mux.Vars(r)["id"])
	if err := h.wall.Settle(r.Context(), id); err != nil {
		h.sendWallError(w, r, err, "/api/views/settle")
		return
	}
	h.metrics.RecordAPIRequest("/api/views/settle", "POST", "202")
	w.WriteHeader(http.StatusAccepted)
}

// DisplaySyncRequest is the body of PUT /api/views/{id}/display-sync
type DisplaySyncRequest struct {
	Synced bool `json:"synced"`
}

// SetDisplaySync handles PUT /api/views/{id}/display-sync
func (h *WallHandler) SetDisplaySync(w http.ResponseWriter, r *http.Request) {
	id := wall.ViewID(mux.Vars(r)["id"])

	var req DisplaySyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, r, "expected body {\"synced\": true|false}", http.StatusBadRequest)
		return
	}
	if err := h.wall.SetDisplaySynced(id, req.Synced); err != nil {
		h.sendWallError(w, r, err, "/api/views/display-sync")
		return
	}
	h.metrics.RecordAPIRequest("/api/views/display-sync", "PUT", "200")
	h.sendJSON(w, map[string]bool{"synced": req.Synced}, http.StatusOK)
}

// GetTile handles GET /api/views/{id}/tiles/{level}/{row}/{col}
func (h *WallHandler) GetTile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/views/tiles")).ObserveDuration()

	vars := mux.Vars(r)
	id := wall.ViewID(vars["id"])

	level, errL := strconv.Atoi(vars["level"])
	row, errR := strconv.Atoi(vars["row"])
	col, errC := strconv.Atoi(vars["col"])
	if errL != nil || errR != nil || errC != nil || level < 0 || level > models.MaxTileLevel || row < 0 || col < 0 {
		h.sendError(w, r, "invalid tile address", http.StatusBadRequest)
		return
	}

	tile, err := h.wall.ViewTile(ctx, id, models.TileAddress{Level: level, Row: row, Col: col})
	if err != nil {
		h.sendWallError(w, r, err, "/api/views/tiles")
		return
	}

	h.metrics.RecordAPIRequest("/api/views/tiles", "GET", "200")
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(tile)
}

// FeatureInfoRequest is the body of POST /api/views/{id}/feature-info
type FeatureInfoRequest struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// QueryFeatureInfo handles POST /api/views/{id}/feature-info
func (h *WallHandler) QueryFeatureInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := wall.ViewID(mux.Vars(r)["id"])

	var req FeatureInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, r, "expected body {\"lon\": ..., \"lat\": ...}", http.StatusBadRequest)
		return
	}
	if req.Lon < -180 || req.Lon > 180 || req.Lat < -90 || req.Lat > 90 {
		h.sendError(w, r, "position out of range", http.StatusBadRequest)
		return
	}

	if err := h.info.Query(ctx, id, models.Position{Lon: req.Lon, Lat: req.Lat}); err != nil {
		h.logger.Error(ctx, "[API_FEATURE_INFO_ERROR] Failed to start feature-info query", logging.Fields{
			"view_id": string(id),
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/views/feature-info")
		h.sendError(w, r, "failed to start query", http.StatusServiceUnavailable)
		return
	}

	h.metrics.RecordAPIRequest("/api/views/feature-info", "POST", "202")
	w.WriteHeader(http.StatusAccepted)
}

// GetFeatureInfo handles GET /api/views/{id}/feature-info
func (h *WallHandler) GetFeatureInfo(w http.ResponseWriter, r *http.Request) {
	id := wall.ViewID(mux.Vars(r)["id"])

	result, ok := h.presenter.Latest(id)
	if !ok {
		h.sendError(w, r, "no feature-info result for view", http.StatusNotFound)
		return
	}
	h.metrics.RecordAPIRequest("/api/views/feature-info", "GET", "200")
	h.sendJSON(w, result, http.StatusOK)
}

// GetArtifact handles GET /api/artifacts/{category}/{id}
func (h *WallHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	data, err := h.store.Get(ctx, vars["category"], vars["id"])
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			h.sendError(w, r, "artifact not found", http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_ARTIFACT_ERROR] Failed to read artifact", logging.Fields{
			"category": vars["category"],
			"id":       vars["id"],
		}, err)
		h.sendError(w, r, "failed to read artifact", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/artifacts", "GET", "200")
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Health handles GET /healthz
func (h *WallHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *WallHandler) sendWallError(w http.ResponseWriter, r *http.Request, err error, endpoint string) {
	var viewNotFound *wall.ErrViewNotFound
	var noLayer *wall.ErrNoActiveLayer
	switch {
	case errors.As(err, &viewNotFound):
		h.metrics.RecordAPIError("view_not_found", endpoint)
		h.sendError(w, r, err.Error(), http.StatusNotFound)
	case errors.As(err, &noLayer):
		h.metrics.RecordAPIError("no_active_layer", endpoint)
		h.sendError(w, r, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(r.Context(), "[API_WALL_ERROR] Wall operation failed", logging.Fields{
			"endpoint": endpoint,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "internal error", http.StatusInternalServerError)
	}
}

func (h *WallHandler) sendJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *WallHandler) sendError(w http.ResponseWriter, r *http.Request, message string, code int) {
	response := ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
