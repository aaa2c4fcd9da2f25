package rectify

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/antialias/soroban-vision/internal/calibration"
)

// Default raster sizes for the rectified view and its preview thumbnail.
const (
	DefaultOutputWidth  = 300
	DefaultOutputHeight = 200
	ThumbnailWidth      = 120
	ThumbnailHeight     = 80
)

// Rectifier warps quad interiors into rectangles. It reuses its output
// buffer across calls when the requested dimensions match, so it can run
// every animation frame without allocating. The returned raster (and any
// column sub-rasters) are valid until the next Rectify or Columns call.
type Rectifier struct {
	buf *image.RGBA
}

// NewRectifier creates a Rectifier with no buffer allocated yet.
func NewRectifier() *Rectifier {
	return &Rectifier{}
}

// Rectify samples the source image under the projective transform that maps
// the output rectangle onto the given quad. Sampling is bilinear at pixel
// centers and deterministic for identical inputs. Degenerate corners fail
// with ErrDegenerateQuad.
func (r *Rectifier) Rectify(src image.Image, corners calibration.QuadCorners, outWidth, outHeight int) (*image.RGBA, error) {
	if outWidth <= 0 || outHeight <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", outWidth, outHeight)
	}

	w, h := float64(outWidth), float64(outHeight)
	hom, err := NewHomography(
		[4]calibration.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: 0, Y: h}, {X: w, Y: h}},
		[4]calibration.Point{corners.TopLeft, corners.TopRight, corners.BottomLeft, corners.BottomRight},
	)
	if err != nil {
		return nil, err
	}

	out := r.output(outWidth, outHeight)
	rgba := asRGBA(src)

	for y := 0; y < outHeight; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+outWidth*4]
		for x := 0; x < outWidth; x++ {
			sx, sy := hom.Apply(float64(x)+0.5, float64(y)+0.5)
			cr, cg, cb, ca := sampleBilinear(rgba, sx-0.5, sy-0.5)
			o := x * 4
			row[o+0] = cr
			row[o+1] = cg
			row[o+2] = cb
			row[o+3] = ca
		}
	}

	return out, nil
}

// Columns rectifies the full quad once and returns one sub-raster per
// column, split at the grid's divider fractions of the output width.
func (r *Rectifier) Columns(src image.Image, grid calibration.Grid, outWidth, outHeight int) ([]image.Image, error) {
	full, err := r.Rectify(src, grid.Corners, outWidth, outHeight)
	if err != nil {
		return nil, err
	}

	n := grid.ColumnCount
	if n < 1 {
		n = 1
	}

	// Divider fractions with the implicit 0 and 1 edges.
	bounds := make([]int, 0, n+1)
	bounds = append(bounds, 0)
	for _, d := range grid.Dividers {
		bounds = append(bounds, int(math.Round(d*float64(outWidth))))
	}
	bounds = append(bounds, outWidth)

	columns := make([]image.Image, 0, n)
	for i := 0; i < len(bounds)-1; i++ {
		columns = append(columns, full.SubImage(image.Rect(bounds[i], 0, bounds[i+1], outHeight)))
	}
	return columns, nil
}

// Thumbnail scales an image down for preview display.
func Thumbnail(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// output returns the reusable buffer, reallocating only on a size change.
func (r *Rectifier) output(w, h int) *image.RGBA {
	if r.buf == nil || r.buf.Bounds().Dx() != w || r.buf.Bounds().Dy() != h {
		r.buf = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	return r.buf
}

func asRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	return rgba
}

// sampleBilinear reads the source at a fractional pixel position, blending
// the four neighbors. Positions just past the edge clamp to the border
// pixel; positions projected well outside the raster read as black.
func sampleBilinear(img *image.RGBA, x, y float64) (uint8, uint8, uint8, uint8) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0, 0, 0, 0
	}
	if x < -1 || y < -1 || x > float64(w) || y > float64(h) {
		return 0, 0, 0, 0
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	c00 := pixelAt(img, x0, y0)
	c10 := pixelAt(img, x0+1, y0)
	c01 := pixelAt(img, x0, y0+1)
	c11 := pixelAt(img, x0+1, y0+1)

	var out [4]uint8
	for i := 0; i < 4; i++ {
		top := float64(c00[i])*(1-fx) + float64(c10[i])*fx
		bottom := float64(c01[i])*(1-fx) + float64(c11[i])*fx
		out[i] = uint8(math.Round(top*(1-fy) + bottom*fy))
	}
	return out[0], out[1], out[2], out[3]
}

func pixelAt(img *image.RGBA, x, y int) [4]uint8 {
	b := img.Bounds()
	if x < b.Min.X {
		x = b.Min.X
	}
	if x > b.Max.X-1 {
		x = b.Max.X - 1
	}
	if y < b.Min.Y {
		y = b.Min.Y
	}
	if y > b.Max.Y-1 {
		y = b.Max.Y - 1
	}
	o := img.PixOffset(x, y)
	return [4]uint8{img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3]}
}
