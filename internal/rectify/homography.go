// Package rectify maps the interior of a calibration quad onto an
// axis-aligned rectangle, removing perspective distortion, and splits the
// result into per-column sub-rasters for digit detection.
package rectify

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/antialias/soroban-vision/internal/calibration"
)

// ErrDegenerateQuad is returned when the four corners are collinear or
// coincident and no projective transform exists. Callers should skip the
// frame rather than crash the capture loop.
var ErrDegenerateQuad = errors.New("degenerate quad: corners do not define a projective transform")

// Homography is a 3x3 projective transform in row-major order with the
// bottom-right element fixed at 1.
type Homography [9]float64

// NewHomography computes the unique transform mapping src[i] to dst[i] for
// four point correspondences. A valid transform requires that no three
// points of either set are collinear; the eight unknowns are then solved as
// an 8x8 linear system.
func NewHomography(src, dst [4]calibration.Point) (Homography, error) {
	if degenerate(src) || degenerate(dst) {
		return Homography{}, ErrDegenerateQuad
	}

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		sx, sy := src[i].X, src[i].Y
		dx, dy := dst[i].X, dst[i].Y
		r := 2 * i

		// dx = (h0*sx + h1*sy + h2) / (h6*sx + h7*sy + 1)
		a.Set(r, 0, sx)
		a.Set(r, 1, sy)
		a.Set(r, 2, 1)
		a.Set(r, 6, -sx*dx)
		a.Set(r, 7, -sy*dx)
		b.SetVec(r, dx)

		// dy = (h3*sx + h4*sy + h5) / (h6*sx + h7*sy + 1)
		a.Set(r+1, 3, sx)
		a.Set(r+1, 4, sy)
		a.Set(r+1, 5, 1)
		a.Set(r+1, 6, -sx*dy)
		a.Set(r+1, 7, -sy*dy)
		b.SetVec(r+1, dy)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, ErrDegenerateQuad
	}

	return Homography{
		h.AtVec(0), h.AtVec(1), h.AtVec(2),
		h.AtVec(3), h.AtVec(4), h.AtVec(5),
		h.AtVec(6), h.AtVec(7), 1,
	}, nil
}

// degenerate reports whether any three of the four points are (nearly)
// collinear, which includes coincident points. The threshold is scaled by
// the triangle's edge lengths so it behaves the same at any pixel scale.
func degenerate(pts [4]calibration.Point) bool {
	for i := 0; i < 2; i++ {
		for j := i + 1; j < 3; j++ {
			for k := j + 1; k < 4; k++ {
				ux, uy := pts[j].X-pts[i].X, pts[j].Y-pts[i].Y
				vx, vy := pts[k].X-pts[i].X, pts[k].Y-pts[i].Y
				cross := ux*vy - uy*vx
				scale := (ux*ux + uy*uy) + (vx*vx + vy*vy)
				if cross*cross <= 1e-12*scale*scale {
					return true
				}
			}
		}
	}
	return false
}

// Apply maps a point through the transform. A zero denominator projects the
// point far out of any raster so sampling treats it as out of bounds.
func (h Homography) Apply(x, y float64) (float64, float64) {
	denom := h[6]*x + h[7]*y + h[8]
	if denom == 0 {
		return -1e9, -1e9
	}
	return (h[0]*x + h[1]*y + h[2]) / denom, (h[3]*x + h[4]*y + h[5]) / denom
}
