package server

import (
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"gocv.io/x/gocv"

	"github.com/antialias/soroban-vision/internal/calibration"
	"github.com/antialias/soroban-vision/internal/capture"
	"github.com/antialias/soroban-vision/internal/rectify"
)

func previewGrid(width, height float64) *calibration.Grid {
	g := &calibration.Grid{
		Corners: calibration.QuadCorners{
			TopLeft:     calibration.Point{X: 0, Y: 0},
			TopRight:    calibration.Point{X: width, Y: 0},
			BottomLeft:  calibration.Point{X: 0, Y: height},
			BottomRight: calibration.Point{X: width, Y: height},
		},
		ColumnCount: 2,
		Dividers:    []float64{0.5},
	}
	g.ROI = g.Corners.BoundingBox()
	return g
}

func TestPreviewHandler_NoActiveCalibration(t *testing.T) {
	camera := capture.NewMockCamera(nil, false)
	handler := NewPreviewHandler(camera, func() *calibration.Grid { return nil })

	req := httptest.NewRequest(http.MethodGet, "/api/preview", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestPreviewHandler_MethodNotAllowed(t *testing.T) {
	camera := capture.NewMockCamera(nil, false)
	handler := NewPreviewHandler(camera, func() *calibration.Grid { return previewGrid(640, 480) })

	req := httptest.NewRequest(http.MethodPost, "/api/preview", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestPreviewHandler_CameraUnavailable(t *testing.T) {
	// A mock camera that was never opened fails every read
	camera := capture.NewMockCamera(nil, false)
	handler := NewPreviewHandler(camera, func() *calibration.Grid { return previewGrid(640, 480) })

	req := httptest.NewRequest(http.MethodGet, "/api/preview", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestPreviewHandler_Thumbnail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(64, 128, 192, 0))

	camera := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	if err := camera.Open(); err != nil {
		t.Fatalf("camera.Open() error = %v", err)
	}
	defer camera.Close()

	handler := NewPreviewHandler(camera, func() *calibration.Grid { return previewGrid(640, 480) })

	req := httptest.NewRequest(http.MethodGet, "/api/preview", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}

	img, err := jpeg.Decode(rec.Body)
	if err != nil {
		t.Fatalf("response is not a decodable JPEG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != rectify.ThumbnailWidth || b.Dy() != rectify.ThumbnailHeight {
		t.Errorf("thumbnail size = %dx%d, want %dx%d",
			b.Dx(), b.Dy(), rectify.ThumbnailWidth, rectify.ThumbnailHeight)
	}
}

func TestPreviewHandler_DegenerateQuad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	camera := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	if err := camera.Open(); err != nil {
		t.Fatalf("camera.Open() error = %v", err)
	}
	defer camera.Close()

	// All four corners collapsed to one point
	collapsed := &calibration.Grid{
		Corners:     calibration.QuadCorners{},
		ColumnCount: 1,
	}
	handler := NewPreviewHandler(camera, func() *calibration.Grid { return collapsed })

	req := httptest.NewRequest(http.MethodGet, "/api/preview", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}
