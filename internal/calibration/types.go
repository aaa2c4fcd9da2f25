// Package calibration provides the quadrilateral calibration editor used to
// align a virtual column grid onto a physical soroban visible in a camera feed.
package calibration

import (
	"image"
	"math"
)

// Corner identifies one of the four quad corner roles.
type Corner string

const (
	TopLeft     Corner = "topLeft"
	TopRight    Corner = "topRight"
	BottomLeft  Corner = "bottomLeft"
	BottomRight Corner = "bottomRight"
)

// Default trapezoid placement, as fractions of the video frame. The top edge
// is inset slightly more than the bottom so the starting quad already hints
// at the usual looking-down camera perspective.
const (
	DefaultTopMargin    = 0.15
	DefaultBottomMargin = 0.20
	DefaultSideMargin   = 0.15
	DefaultTopInset     = 0.03
)

// DividerMargin is the minimum fractional gap kept between adjacent column
// dividers and between a divider and the quad edges.
const DividerMargin = 0.05

// Point is a position in source-image pixel space (not display space).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// QuadCorners are the four corners of the calibration quad, in source-image
// pixels. Corner roles are relabeled (not moved) on rotation.
type QuadCorners struct {
	TopLeft     Point `json:"topLeft"`
	TopRight    Point `json:"topRight"`
	BottomLeft  Point `json:"bottomLeft"`
	BottomRight Point `json:"bottomRight"`
}

// At returns the corner with the given role.
func (q QuadCorners) At(c Corner) Point {
	switch c {
	case TopLeft:
		return q.TopLeft
	case TopRight:
		return q.TopRight
	case BottomLeft:
		return q.BottomLeft
	default:
		return q.BottomRight
	}
}

// Set replaces the corner with the given role.
func (q *QuadCorners) Set(c Corner, p Point) {
	switch c {
	case TopLeft:
		q.TopLeft = p
	case TopRight:
		q.TopRight = p
	case BottomLeft:
		q.BottomLeft = p
	case BottomRight:
		q.BottomRight = p
	}
}

// Points returns the corners in topLeft, topRight, bottomLeft, bottomRight order.
func (q QuadCorners) Points() [4]Point {
	return [4]Point{q.TopLeft, q.TopRight, q.BottomLeft, q.BottomRight}
}

// AverageWidth is the mean of the top and bottom edge lengths. Divider drags
// use it to convert a pixel delta into a width fraction.
func (q QuadCorners) AverageWidth() float64 {
	top := distance(q.TopLeft, q.TopRight)
	bottom := distance(q.BottomLeft, q.BottomRight)
	return (top + bottom) / 2
}

// BoundingBox returns the axis-aligned bounding box of the four corners.
func (q QuadCorners) BoundingBox() ROI {
	minX, minY := q.TopLeft.X, q.TopLeft.Y
	maxX, maxY := minX, minY
	for _, p := range q.Points() {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return ROI{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// ROI is an axis-aligned region in source-image pixels.
type ROI struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect converts the region to integer pixel bounds, rounded outward.
func (r ROI) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.Width)), int(math.Ceil(r.Y+r.Height)),
	)
}

// Grid is a completed calibration: the quad, the column layout and the
// derived region of interest. It is an immutable snapshot; a later
// calibration supersedes it rather than mutating it.
type Grid struct {
	Corners     QuadCorners `json:"corners"`
	ColumnCount int         `json:"columnCount"`
	Dividers    []float64   `json:"dividers"`
	ROI         ROI         `json:"roi"`
}

// DefaultCorners synthesizes the starting trapezoid for a video of the given
// pixel dimensions.
func DefaultCorners(videoWidth, videoHeight float64) QuadCorners {
	return QuadCorners{
		TopLeft:     Point{X: videoWidth * (DefaultSideMargin + DefaultTopInset), Y: videoHeight * DefaultTopMargin},
		TopRight:    Point{X: videoWidth * (1 - DefaultSideMargin - DefaultTopInset), Y: videoHeight * DefaultTopMargin},
		BottomLeft:  Point{X: videoWidth * DefaultSideMargin, Y: videoHeight * (1 - DefaultBottomMargin)},
		BottomRight: Point{X: videoWidth * (1 - DefaultSideMargin), Y: videoHeight * (1 - DefaultBottomMargin)},
	}
}

// DefaultDividers returns evenly spaced dividers for the given column count.
func DefaultDividers(columnCount int) []float64 {
	if columnCount < 2 {
		return nil
	}
	dividers := make([]float64, columnCount-1)
	for i := range dividers {
		dividers[i] = float64(i+1) / float64(columnCount)
	}
	return dividers
}

// Viewport describes how the source video is fit into a display container:
// uniform scale with letterbox offsets centering the scaled content.
type Viewport struct {
	VideoWidth      float64
	VideoHeight     float64
	ContainerWidth  float64
	ContainerHeight float64
}

// Scale is the uniform display scale factor.
func (v Viewport) Scale() float64 {
	if v.VideoWidth <= 0 || v.VideoHeight <= 0 {
		return 1
	}
	return math.Min(v.ContainerWidth/v.VideoWidth, v.ContainerHeight/v.VideoHeight)
}

// Offsets returns the letterbox offsets of the scaled video inside the container.
func (v Viewport) Offsets() (float64, float64) {
	s := v.Scale()
	return (v.ContainerWidth - v.VideoWidth*s) / 2, (v.ContainerHeight - v.VideoHeight*s) / 2
}

// ToSource converts a container-space pointer position to source-image pixels.
func (v Viewport) ToSource(p Point) Point {
	s := v.Scale()
	if s == 0 {
		return p
	}
	ox, oy := v.Offsets()
	return Point{X: (p.X - ox) / s, Y: (p.Y - oy) / s}
}

func distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
