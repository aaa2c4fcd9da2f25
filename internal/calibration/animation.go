package calibration

// RotationDurationMs is the fixed length of a 90-degree rotation transition.
const RotationDurationMs = 300

// Direction selects which way a rotation reassigns corner roles.
type Direction string

const (
	RotateLeft  Direction = "left"
	RotateRight Direction = "right"
)

// Animation interpolates the quad corners from a start to an end assignment
// over a fixed duration. It is a pure function of elapsed time: the host
// calls CornersAt once per display tick with the current clock.
type Animation struct {
	StartCorners QuadCorners
	EndCorners   QuadCorners
	StartTimeMs  float64
}

// CornersAt returns the interpolated corners at the given time and whether
// the transition has settled on EndCorners.
func (a *Animation) CornersAt(nowMs float64) (QuadCorners, bool) {
	t := (nowMs - a.StartTimeMs) / RotationDurationMs
	if t >= 1 {
		return a.EndCorners, true
	}
	if t < 0 {
		t = 0
	}
	eased := easeOutCubic(t)
	q := QuadCorners{
		TopLeft:     lerpPoint(a.StartCorners.TopLeft, a.EndCorners.TopLeft, eased),
		TopRight:    lerpPoint(a.StartCorners.TopRight, a.EndCorners.TopRight, eased),
		BottomLeft:  lerpPoint(a.StartCorners.BottomLeft, a.EndCorners.BottomLeft, eased),
		BottomRight: lerpPoint(a.StartCorners.BottomRight, a.EndCorners.BottomRight, eased),
	}
	return q, false
}

// rotatedCorners relabels corner roles for a 90-degree turn. Coordinates are
// untouched; only which point plays which role changes.
func rotatedCorners(q QuadCorners, dir Direction) QuadCorners {
	if dir == RotateRight {
		return QuadCorners{
			TopLeft:     q.BottomLeft,
			TopRight:    q.TopLeft,
			BottomRight: q.TopRight,
			BottomLeft:  q.BottomRight,
		}
	}
	return QuadCorners{
		TopLeft:     q.TopRight,
		TopRight:    q.BottomRight,
		BottomRight: q.BottomLeft,
		BottomLeft:  q.TopLeft,
	}
}

func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

func lerpPoint(a, b Point, t float64) Point {
	return Point{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}
