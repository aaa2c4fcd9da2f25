// Package server provides the HTTP server for the soroban vision service.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/antialias/soroban-vision/internal/calibration"
	"github.com/antialias/soroban-vision/internal/capture"
	"github.com/antialias/soroban-vision/internal/server/api"
	"github.com/antialias/soroban-vision/internal/stability"
	"github.com/antialias/soroban-vision/internal/store"
)

// ReadingSource supplies the current stable-value reading for broadcast.
type ReadingSource interface {
	Reading() stability.Reading
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Camera    capture.Camera
	Editor    *calibration.Editor
	Readings  ReadingSource

	// Grid returns the active calibration grid, or nil before one is
	// set. Used by the rectified preview endpoint.
	Grid func() *calibration.Grid

	// OnCalibrated is called with the completed grid after a calibration
	// session finishes. May be nil.
	OnCalibrated func(grid calibration.Grid)

	// OnActivated is called when a stored calibration is made active via
	// the REST API. May be nil.
	OnActivated func(c *store.Calibration)
}

// Server represents the HTTP server for the soroban vision application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Register calibration API handler if Store is configured
	if s.config.Store != nil {
		calibrationHandler := api.NewCalibrationHandler(s.config.Store)
		calibrationHandler.OnActivated = s.config.OnActivated
		s.mux.Handle("/api/calibrations", calibrationHandler)
		s.mux.Handle("/api/calibrations/", calibrationHandler)
	}

	// Register camera stream endpoint if Camera is configured
	if s.config.Camera != nil {
		streamHandler := NewStreamHandler(s.config.Camera)
		s.mux.Handle("/api/stream", streamHandler)
	}

	// Register rectified-board preview endpoint if a grid source exists
	if s.config.Camera != nil && s.config.Grid != nil {
		previewHandler := NewPreviewHandler(s.config.Camera, s.config.Grid)
		s.mux.Handle("/api/preview", previewHandler)
	}

	// Register readings WebSocket endpoint if a reading source is configured
	if s.config.Readings != nil {
		readingsHandler := NewReadingsHandler(s.config.Readings)
		s.mux.Handle("/api/readings", readingsHandler)
	}

	// Register calibration editor WebSocket endpoint if Editor is configured
	if s.config.Editor != nil {
		calibrateHandler := NewCalibrateHandler(s.config.Editor, s.config.Store, s.config.OnCalibrated)
		s.mux.Handle("/api/calibrate", calibrateHandler)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
