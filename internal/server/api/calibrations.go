// Package api provides HTTP API handlers for the soroban vision service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/antialias/soroban-vision/internal/calibration"
	"github.com/antialias/soroban-vision/internal/store"
)

// CalibrationHandler handles HTTP requests for calibration resources.
type CalibrationHandler struct {
	store *store.Store

	// OnActivated is called after a calibration is made active, with the
	// loaded grid. May be nil.
	OnActivated func(c *store.Calibration)
}

// NewCalibrationHandler creates a new CalibrationHandler with the given store.
func NewCalibrationHandler(s *store.Store) *CalibrationHandler {
	return &CalibrationHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/calibrations, /api/calibrations/active,
	// /api/calibrations/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/calibrations")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if path == "active" {
		switch r.Method {
		case http.MethodGet:
			h.getActive(w, r)
		case http.MethodPut:
			h.setActive(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request and response types

type calibrationRequest struct {
	Name        string                   `json:"name"`
	VideoWidth  int                      `json:"video_width"`
	VideoHeight int                      `json:"video_height"`
	ColumnCount int                      `json:"column_count"`
	Corners     *calibration.QuadCorners `json:"corners"`
	Dividers    []float64                `json:"dividers"`
}

type calibrationResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	VideoWidth  int                     `json:"video_width"`
	VideoHeight int                     `json:"video_height"`
	ColumnCount int                     `json:"column_count"`
	Corners     calibration.QuadCorners `json:"corners"`
	Dividers    []float64               `json:"dividers"`
	ROI         calibration.ROI         `json:"roi"`
	CreatedAt   string                  `json:"created_at"`
	UpdatedAt   string                  `json:"updated_at"`
}

type listCalibrationsResponse struct {
	Calibrations []calibrationResponse `json:"calibrations"`
}

type activeCalibrationRequest struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toResponse converts a store.Calibration to a calibrationResponse.
func toResponse(c *store.Calibration) calibrationResponse {
	dividers := c.Grid.Dividers
	if dividers == nil {
		dividers = []float64{}
	}
	return calibrationResponse{
		ID:          c.ID,
		Name:        c.Name,
		VideoWidth:  c.VideoWidth,
		VideoHeight: c.VideoHeight,
		ColumnCount: c.Grid.ColumnCount,
		Corners:     c.Grid.Corners,
		Dividers:    dividers,
		ROI:         c.Grid.ROI,
		CreatedAt:   c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// validate checks the grid fields shared by create and update.
func (req *calibrationRequest) validate() string {
	if req.VideoWidth <= 0 || req.VideoHeight <= 0 {
		return "Video dimensions are required"
	}
	if req.ColumnCount < 1 {
		return "Column count must be at least 1"
	}
	if req.Corners == nil {
		return "Corners are required"
	}
	if len(req.Dividers) != req.ColumnCount-1 {
		return "Divider count must be one less than column count"
	}
	// Stored grids bypass the editor's clamping, so the same constraints
	// hold here: dividers in (0,1), increasing, with the minimum gap kept
	// between neighbors and the frame edges.
	prev := 0.0
	for _, d := range req.Dividers {
		if d <= 0 || d >= 1 {
			return "Dividers must be between 0 and 1"
		}
		if d < prev+calibration.DividerMargin {
			return "Dividers must keep a gap of at least 0.05 from each other and the edges"
		}
		prev = d
	}
	if len(req.Dividers) > 0 && prev > 1-calibration.DividerMargin {
		return "Dividers must keep a gap of at least 0.05 from each other and the edges"
	}
	return ""
}

func (req *calibrationRequest) grid() calibration.Grid {
	g := calibration.Grid{
		Corners:     *req.Corners,
		ColumnCount: req.ColumnCount,
		Dividers:    append([]float64(nil), req.Dividers...),
	}
	g.ROI = g.Corners.BoundingBox()
	return g
}

// list handles GET /api/calibrations and returns all calibrations.
func (h *CalibrationHandler) list(w http.ResponseWriter, r *http.Request) {
	calibrations, err := h.store.Calibrations().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list calibrations")
		return
	}

	response := listCalibrationsResponse{
		Calibrations: make([]calibrationResponse, 0, len(calibrations)),
	}
	for _, c := range calibrations {
		response.Calibrations = append(response.Calibrations, toResponse(c))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/calibrations/{id} and returns a single calibration.
func (h *CalibrationHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.store.Calibrations().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Calibration not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(c))
}

// create handles POST /api/calibrations and creates a new calibration.
func (h *CalibrationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req calibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	name := req.Name
	if name == "" {
		name = "Calibration"
	}

	c := &store.Calibration{
		ID:          uuid.New().String(),
		Name:        name,
		VideoWidth:  req.VideoWidth,
		VideoHeight: req.VideoHeight,
		Grid:        req.grid(),
	}

	if err := h.store.Calibrations().Create(c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create calibration")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(c))
}

// update handles PUT /api/calibrations/{id} and updates an existing calibration.
func (h *CalibrationHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.store.Calibrations().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Calibration not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}

	var req calibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name != "" {
		c.Name = req.Name
	}
	if req.Corners != nil || req.ColumnCount > 0 {
		// Grid replacement requires the full set of grid fields
		if req.VideoWidth == 0 {
			req.VideoWidth = c.VideoWidth
		}
		if req.VideoHeight == 0 {
			req.VideoHeight = c.VideoHeight
		}
		if msg := req.validate(); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		c.VideoWidth = req.VideoWidth
		c.VideoHeight = req.VideoHeight
		c.Grid = req.grid()
	}

	if err := h.store.Calibrations().Update(c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update calibration")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(c))
}

// delete handles DELETE /api/calibrations/{id} and removes a calibration.
func (h *CalibrationHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Calibrations().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Calibration not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete calibration")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getActive handles GET /api/calibrations/active and returns the active calibration.
func (h *CalibrationHandler) getActive(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.GetSetting(store.ActiveCalibrationKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No active calibration")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read active calibration")
		return
	}

	h.get(w, r, id)
}

// setActive handles PUT /api/calibrations/active and switches the active calibration.
func (h *CalibrationHandler) setActive(w http.ResponseWriter, r *http.Request) {
	var req activeCalibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	c, err := h.store.Calibrations().GetByID(req.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Calibration not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}

	if err := h.store.SetSetting(store.ActiveCalibrationKey, c.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to set active calibration")
		return
	}

	if h.OnActivated != nil {
		h.OnActivated(c)
	}

	writeJSON(w, http.StatusOK, toResponse(c))
}
