package calibration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoDimensions is returned when an editor is created before the video
// dimensions are known.
var ErrNoDimensions = errors.New("video dimensions not set")

// DragKind discriminates what a drag targets.
type DragKind int

const (
	DragNone DragKind = iota
	DragCorner
	DragQuad
	DragDivider
)

// DragTarget identifies what a pointer drag manipulates: a single corner,
// the whole quad, or one column divider.
type DragTarget struct {
	Kind    DragKind
	Corner  Corner
	Divider int
}

// CornerTarget targets a single corner drag.
func CornerTarget(c Corner) DragTarget { return DragTarget{Kind: DragCorner, Corner: c} }

// QuadTarget targets a whole-quad translation.
func QuadTarget() DragTarget { return DragTarget{Kind: DragQuad} }

// DividerTarget targets the divider at the given index.
func DividerTarget(i int) DragTarget { return DragTarget{Kind: DragDivider, Divider: i} }

// ParseDragTarget parses the wire form of a drag target: a corner name,
// "quad", or "divider-<i>".
func ParseDragTarget(s string) (DragTarget, error) {
	switch s {
	case "quad":
		return QuadTarget(), nil
	case string(TopLeft), string(TopRight), string(BottomLeft), string(BottomRight):
		return CornerTarget(Corner(s)), nil
	}
	if rest, ok := strings.CutPrefix(s, "divider-"); ok {
		i, err := strconv.Atoi(rest)
		if err != nil || i < 0 {
			return DragTarget{}, fmt.Errorf("invalid divider target %q", s)
		}
		return DividerTarget(i), nil
	}
	return DragTarget{}, fmt.Errorf("unknown drag target %q", s)
}

// Snapshot is the immutable state published to listeners after every edit.
type Snapshot struct {
	Corners     QuadCorners `json:"corners"`
	Dividers    []float64   `json:"dividers"`
	ColumnCount int         `json:"columnCount"`
	Rotating    bool        `json:"rotating"`
}

// dragState captures everything at the moment a drag begins. All updates are
// computed from this snapshot plus the current pointer, so out-of-order
// deltas cannot accumulate drift.
type dragState struct {
	target    DragTarget
	origin    Point
	corners   QuadCorners
	dividers  []float64
	quadWidth float64
}

// Editor owns the in-progress calibration state: the quad corners, the
// column dividers and any drag or rotation in flight. It is driven by
// pointer events and animation ticks from a single goroutine (or externally
// serialized); edits are applied in arrival order.
type Editor struct {
	videoWidth  float64
	videoHeight float64
	columnCount int
	corners     QuadCorners
	dividers    []float64
	viewport    Viewport

	drag      *dragState
	rotation  *Animation
	listeners []func(Snapshot)
}

// NewEditor creates an editor for a video of the given pixel dimensions. If
// existing is non-nil its corners and dividers are loaded; otherwise the
// default trapezoid and evenly spaced dividers are synthesized.
func NewEditor(videoWidth, videoHeight float64, columnCount int, existing *Grid) (*Editor, error) {
	if videoWidth <= 0 || videoHeight <= 0 {
		return nil, ErrNoDimensions
	}
	if columnCount < 1 {
		columnCount = 1
	}

	e := &Editor{
		videoWidth:  videoWidth,
		videoHeight: videoHeight,
		columnCount: columnCount,
		viewport: Viewport{
			VideoWidth:      videoWidth,
			VideoHeight:     videoHeight,
			ContainerWidth:  videoWidth,
			ContainerHeight: videoHeight,
		},
	}

	if existing != nil {
		e.corners = existing.Corners
		e.dividers = append([]float64(nil), existing.Dividers...)
		if existing.ColumnCount >= 1 {
			e.columnCount = existing.ColumnCount
		}
	} else {
		e.corners = DefaultCorners(videoWidth, videoHeight)
		e.dividers = DefaultDividers(columnCount)
	}

	return e, nil
}

// Dimensions returns the video pixel dimensions the editor was created with.
func (e *Editor) Dimensions() (float64, float64) {
	return e.videoWidth, e.videoHeight
}

// SetViewport updates the display geometry used to convert pointer positions
// into source-image pixels.
func (e *Editor) SetViewport(v Viewport) {
	e.viewport = v
}

// Subscribe registers a listener invoked with a snapshot after every edit.
func (e *Editor) Subscribe(fn func(Snapshot)) {
	if fn != nil {
		e.listeners = append(e.listeners, fn)
	}
}

// Snapshot returns the current editor state.
func (e *Editor) Snapshot() Snapshot {
	return Snapshot{
		Corners:     e.corners,
		Dividers:    append([]float64(nil), e.dividers...),
		ColumnCount: e.columnCount,
		Rotating:    e.rotation != nil,
	}
}

// Rotating reports whether a rotation transition is in flight.
func (e *Editor) Rotating() bool { return e.rotation != nil }

// BeginDrag starts a drag of the given target at a container-space pointer
// position. A drag started while a rotation is animating is ignored.
func (e *Editor) BeginDrag(target DragTarget, pointer Point) {
	if e.rotation != nil || target.Kind == DragNone {
		return
	}
	if target.Kind == DragDivider && (target.Divider < 0 || target.Divider >= len(e.dividers)) {
		return
	}
	e.drag = &dragState{
		target:    target,
		origin:    e.viewport.ToSource(pointer),
		corners:   e.corners,
		dividers:  append([]float64(nil), e.dividers...),
		quadWidth: e.corners.AverageWidth(),
	}
}

// UpdateDrag applies the pointer movement since BeginDrag. Positions that
// would leave valid ranges are clamped silently; that is normal operation,
// not a failure.
func (e *Editor) UpdateDrag(pointer Point) {
	d := e.drag
	if d == nil {
		return
	}

	src := e.viewport.ToSource(pointer)
	dx := src.X - d.origin.X
	dy := src.Y - d.origin.Y

	switch d.target.Kind {
	case DragCorner:
		start := d.corners.At(d.target.Corner)
		e.corners.Set(d.target.Corner, Point{
			X: clamp(start.X+dx, 0, e.videoWidth),
			Y: clamp(start.Y+dy, 0, e.videoHeight),
		})

	case DragQuad:
		// Clamp the delta against the pre-move bounding box so no corner
		// leaves the frame.
		box := d.corners.BoundingBox()
		dx = clamp(dx, -box.X, e.videoWidth-(box.X+box.Width))
		dy = clamp(dy, -box.Y, e.videoHeight-(box.Y+box.Height))
		e.corners = QuadCorners{
			TopLeft:     Point{X: d.corners.TopLeft.X + dx, Y: d.corners.TopLeft.Y + dy},
			TopRight:    Point{X: d.corners.TopRight.X + dx, Y: d.corners.TopRight.Y + dy},
			BottomLeft:  Point{X: d.corners.BottomLeft.X + dx, Y: d.corners.BottomLeft.Y + dy},
			BottomRight: Point{X: d.corners.BottomRight.X + dx, Y: d.corners.BottomRight.Y + dy},
		}

	case DragDivider:
		i := d.target.Divider
		if d.quadWidth <= 0 {
			return
		}
		frac := d.dividers[i] + dx/d.quadWidth

		lo := DividerMargin
		if i > 0 {
			lo = d.dividers[i-1] + DividerMargin
		}
		hi := 1 - DividerMargin
		if i < len(d.dividers)-1 {
			hi = d.dividers[i+1] - DividerMargin
		}
		e.dividers[i] = clamp(frac, lo, hi)
	}

	e.notify()
}

// EndDrag clears the drag state. Edits were applied live, so there is
// nothing left to commit.
func (e *Editor) EndDrag() {
	e.drag = nil
}

// Rotate reassigns the corner roles by 90 degrees and starts the transition
// animation at the given clock. A rotation requested while one is already in
// flight is ignored; there is no queuing.
func (e *Editor) Rotate(dir Direction, nowMs float64) {
	if e.rotation != nil {
		return
	}
	e.drag = nil
	e.rotation = &Animation{
		StartCorners: e.corners,
		EndCorners:   rotatedCorners(e.corners, dir),
		StartTimeMs:  nowMs,
	}
	e.notify()
}

// Tick advances an in-flight rotation to the given clock, writing the
// interpolated corners back. Returns true while a rotation is animating.
func (e *Editor) Tick(nowMs float64) bool {
	if e.rotation == nil {
		return false
	}
	corners, done := e.rotation.CornersAt(nowMs)
	e.corners = corners
	if done {
		e.rotation = nil
	}
	e.notify()
	return !done
}

// Complete packages the current corners and dividers into an immutable Grid.
func (e *Editor) Complete() Grid {
	return Grid{
		Corners:     e.corners,
		ColumnCount: e.columnCount,
		Dividers:    append([]float64(nil), e.dividers...),
		ROI:         e.corners.BoundingBox(),
	}
}

func (e *Editor) notify() {
	if len(e.listeners) == 0 {
		return
	}
	snap := e.Snapshot()
	for _, fn := range e.listeners {
		fn(snap)
	}
}
