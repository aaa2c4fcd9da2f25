package server

import (
	"image"
	"image/jpeg"
	"net/http"
	"sync"

	"github.com/antialias/soroban-vision/internal/calibration"
	"github.com/antialias/soroban-vision/internal/capture"
	"github.com/antialias/soroban-vision/internal/rectify"
)

// PreviewHandler serves a one-shot JPEG thumbnail of the rectified board so
// the calibration UI can confirm the quad lines up with the beads.
type PreviewHandler struct {
	camera capture.Camera
	grid   func() *calibration.Grid

	// The rectifier reuses its output buffer, so requests take turns
	mu        sync.Mutex
	rectifier *rectify.Rectifier
}

// NewPreviewHandler creates a PreviewHandler reading frames from the given
// camera under the grid returned by grid.
func NewPreviewHandler(camera capture.Camera, grid func() *calibration.Grid) *PreviewHandler {
	return &PreviewHandler{
		camera:    camera,
		grid:      grid,
		rectifier: rectify.NewRectifier(),
	}
}

func (h *PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	grid := h.grid()
	if grid == nil {
		http.Error(w, "No active calibration", http.StatusConflict)
		return
	}

	frame, err := h.camera.ReadFrame()
	if err != nil {
		http.Error(w, "Camera unavailable", http.StatusServiceUnavailable)
		return
	}

	img, err := frame.ToImage()
	frame.Close()
	if err != nil {
		http.Error(w, "Failed to decode frame", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	full, err := h.rectifier.Rectify(img, grid.Corners, rectify.DefaultOutputWidth, rectify.DefaultOutputHeight)
	var thumb image.Image
	if err == nil {
		thumb = rectify.Thumbnail(full, rectify.ThumbnailWidth, rectify.ThumbnailHeight)
	}
	h.mu.Unlock()
	if err != nil {
		http.Error(w, "Calibration quad cannot be rectified", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	jpeg.Encode(w, thumb, nil)
}
