package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// OcclusionDetector detects a hand (or any large moving object) in front of
// the board using frame differencing with Gaussian blur for noise reduction.
// It can be scoped to the calibration region so activity elsewhere in the
// frame does not suppress readings.
type OcclusionDetector struct {
	threshold   float64
	region      image.Rectangle
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// Occlusion detection constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
	// DefaultOcclusionThreshold is the percentage of changed pixels in the
	// region above which a hand is assumed to be blocking the board.
	DefaultOcclusionThreshold = 8.0
)

// NewOcclusionDetector creates a detector with the given threshold: the
// percentage of region pixels that must change between frames to count as a
// hand over the board.
func NewOcclusionDetector(threshold float64) *OcclusionDetector {
	if threshold <= 0 {
		threshold = DefaultOcclusionThreshold
	}
	return &OcclusionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// SetRegion restricts detection to a sub-rectangle of the frame, typically
// the calibration grid's bounding box. An empty rectangle means the whole
// frame. Changing the region re-baselines on the next frame.
func (d *OcclusionDetector) SetRegion(r image.Rectangle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r != d.region {
		d.region = r
		d.initialized = false
	}
}

// Detect compares the frame's region against the previous one and reports
// whether the change is large enough to be a hand, plus the raw percentage
// of changed pixels.
//
// Pipeline: crop to region, grayscale, Gaussian blur (21x21), absolute
// difference with the previous frame, binary threshold (25), changed pixel
// ratio. The first frame after construction, Reset or a region change only
// establishes the baseline.
func (d *OcclusionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	// Crop to the configured region, clipped to the frame.
	work := *frame
	cropped := false
	if !d.region.Empty() {
		bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
		roi := d.region.Intersect(bounds)
		if roi.Empty() {
			return false, 0
		}
		work = frame.Region(roi)
		cropped = true
	}
	if cropped {
		defer work.Close()
	}

	// Convert to grayscale
	gray := gocv.NewMat()
	defer gray.Close()

	if work.Channels() > 1 {
		gocv.CvtColor(work, &gray, gocv.ColorBGRToGray)
	} else {
		work.CopyTo(&gray)
	}

	// Apply Gaussian blur to reduce noise
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	// A dimension change (new region or camera mode) also re-baselines.
	if d.initialized && (d.prevGray.Rows() != blurred.Rows() || d.prevGray.Cols() != blurred.Cols()) {
		d.initialized = false
	}

	if !d.initialized {
		blurred.CopyTo(&d.prevGray)
		d.initialized = true
		return false, 0
	}

	// Calculate absolute difference
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, d.prevGray, &diff)

	// Apply binary threshold
	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	// Count non-zero pixels
	nonZero := gocv.CountNonZero(thresh)
	totalPixels := thresh.Rows() * thresh.Cols()

	changePercent := float64(nonZero) / float64(totalPixels) * 100.0

	// Update previous frame
	blurred.CopyTo(&d.prevGray)

	return changePercent > d.threshold, changePercent
}

// Reset clears the detector state so the next frame becomes the baseline.
func (d *OcclusionDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.prevGray.Empty() {
		d.prevGray.Close()
		d.prevGray = gocv.NewMat()
	}
	d.initialized = false
}

// Close releases resources held by the detector.
func (d *OcclusionDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.prevGray.Empty() {
		d.prevGray.Close()
		d.prevGray = gocv.NewMat()
	}
	d.initialized = false
}

// SetThreshold sets the changed-pixel percentage above which the region
// counts as occluded. Values less than or equal to 0 are ignored.
func (d *OcclusionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.threshold = threshold
}

// Threshold returns the current occlusion threshold.
func (d *OcclusionDetector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.threshold
}
