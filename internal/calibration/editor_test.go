package calibration

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewEditor_DefaultTrapezoid(t *testing.T) {
	e, err := NewEditor(1000, 1000, 4, nil)
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	snap := e.Snapshot()

	// Top edge sits at the top margin and is inset narrower than the bottom.
	if !almostEqual(snap.Corners.TopLeft.Y, 150) || !almostEqual(snap.Corners.TopRight.Y, 150) {
		t.Errorf("top edge Y = %v/%v, want 150", snap.Corners.TopLeft.Y, snap.Corners.TopRight.Y)
	}
	if !almostEqual(snap.Corners.BottomLeft.Y, 800) || !almostEqual(snap.Corners.BottomRight.Y, 800) {
		t.Errorf("bottom edge Y = %v/%v, want 800", snap.Corners.BottomLeft.Y, snap.Corners.BottomRight.Y)
	}
	if !almostEqual(snap.Corners.TopLeft.X, 180) || !almostEqual(snap.Corners.BottomLeft.X, 150) {
		t.Errorf("left X = %v (top) / %v (bottom), want 180/150", snap.Corners.TopLeft.X, snap.Corners.BottomLeft.X)
	}
	if snap.Corners.TopRight.X >= snap.Corners.BottomRight.X {
		t.Error("expected top edge narrower than bottom edge")
	}

	// Evenly spaced dividers at i/columnCount.
	want := []float64{0.25, 0.5, 0.75}
	if len(snap.Dividers) != len(want) {
		t.Fatalf("dividers = %v, want %v", snap.Dividers, want)
	}
	for i := range want {
		if !almostEqual(snap.Dividers[i], want[i]) {
			t.Errorf("dividers[%d] = %v, want %v", i, snap.Dividers[i], want[i])
		}
	}
}

func TestNewEditor_RequiresDimensions(t *testing.T) {
	if _, err := NewEditor(0, 480, 4, nil); err != ErrNoDimensions {
		t.Errorf("NewEditor(0, 480) error = %v, want ErrNoDimensions", err)
	}
	if _, err := NewEditor(640, 0, 4, nil); err != ErrNoDimensions {
		t.Errorf("NewEditor(640, 0) error = %v, want ErrNoDimensions", err)
	}
}

func TestNewEditor_LoadsExistingGrid(t *testing.T) {
	existing := &Grid{
		Corners: QuadCorners{
			TopLeft:     Point{X: 10, Y: 20},
			TopRight:    Point{X: 600, Y: 25},
			BottomLeft:  Point{X: 5, Y: 400},
			BottomRight: Point{X: 620, Y: 410},
		},
		ColumnCount: 3,
		Dividers:    []float64{0.3, 0.7},
	}

	e, err := NewEditor(640, 480, 5, existing)
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	snap := e.Snapshot()
	if snap.Corners != existing.Corners {
		t.Errorf("corners = %+v, want %+v", snap.Corners, existing.Corners)
	}
	if snap.ColumnCount != 3 {
		t.Errorf("columnCount = %d, want 3", snap.ColumnCount)
	}

	// Mutating the editor must not touch the loaded grid.
	e.BeginDrag(DividerTarget(0), Point{X: 100, Y: 100})
	e.UpdateDrag(Point{X: 160, Y: 100})
	if !almostEqual(existing.Dividers[0], 0.3) {
		t.Errorf("existing grid mutated: dividers[0] = %v", existing.Dividers[0])
	}
}

func TestCornerDrag_ClampsToBounds(t *testing.T) {
	e, err := NewEditor(1000, 1000, 1, &Grid{
		Corners: QuadCorners{
			TopLeft:     Point{X: 150, Y: 150},
			TopRight:    Point{X: 850, Y: 150},
			BottomLeft:  Point{X: 150, Y: 850},
			BottomRight: Point{X: 850, Y: 850},
		},
		ColumnCount: 1,
	})
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	// Dragging topLeft by (-500,-500) clamps to (0,0), never negative.
	e.BeginDrag(CornerTarget(TopLeft), Point{X: 150, Y: 150})
	e.UpdateDrag(Point{X: -350, Y: -350})
	got := e.Snapshot().Corners.TopLeft
	if got.X != 0 || got.Y != 0 {
		t.Errorf("topLeft after clamped drag = %+v, want (0,0)", got)
	}
	e.EndDrag()

	// And past the far edge clamps to the frame size.
	e.BeginDrag(CornerTarget(BottomRight), Point{X: 850, Y: 850})
	e.UpdateDrag(Point{X: 2000, Y: 2000})
	got = e.Snapshot().Corners.BottomRight
	if got.X != 1000 || got.Y != 1000 {
		t.Errorf("bottomRight after clamped drag = %+v, want (1000,1000)", got)
	}
}

func TestQuadDrag_ClampsThroughBoundingBox(t *testing.T) {
	corners := QuadCorners{
		TopLeft:     Point{X: 100, Y: 100},
		TopRight:    Point{X: 300, Y: 120},
		BottomLeft:  Point{X: 80, Y: 300},
		BottomRight: Point{X: 320, Y: 310},
	}
	e, err := NewEditor(640, 480, 1, &Grid{Corners: corners, ColumnCount: 1})
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	// A huge leftward drag can only move until the leftmost corner (x=80)
	// hits zero; every corner shifts by exactly that delta.
	e.BeginDrag(QuadTarget(), Point{X: 200, Y: 200})
	e.UpdateDrag(Point{X: -800, Y: 200})

	got := e.Snapshot().Corners
	if !almostEqual(got.BottomLeft.X, 0) {
		t.Errorf("bottomLeft.X = %v, want 0", got.BottomLeft.X)
	}
	if !almostEqual(got.TopLeft.X, 20) || !almostEqual(got.TopRight.X, 220) {
		t.Errorf("shape distorted by quad drag: %+v", got)
	}
	if !almostEqual(got.TopLeft.Y, 100) {
		t.Errorf("Y moved on horizontal drag: %v", got.TopLeft.Y)
	}

	// All corners stay in bounds for any drag sequence.
	e.UpdateDrag(Point{X: 4000, Y: -4000})
	for _, p := range e.Snapshot().Corners.Points() {
		if p.X < 0 || p.X > 640 || p.Y < 0 || p.Y > 480 {
			t.Errorf("corner out of bounds after drag: %+v", p)
		}
	}
}

func TestDividerDrag_ClampsAgainstNeighbor(t *testing.T) {
	corners := QuadCorners{
		TopLeft:     Point{X: 0, Y: 0},
		TopRight:    Point{X: 100, Y: 0},
		BottomLeft:  Point{X: 0, Y: 100},
		BottomRight: Point{X: 100, Y: 100},
	}
	e, err := NewEditor(1000, 1000, 3, &Grid{
		Corners:     corners,
		ColumnCount: 3,
		Dividers:    []float64{0.33, 0.66},
	})
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	// Quad width is 100px, so dragging divider 0 rightward by 80px asks for
	// +0.8, far past the neighbor at 0.66; it clamps to 0.66-0.05 = 0.61.
	e.BeginDrag(DividerTarget(0), Point{X: 33, Y: 50})
	e.UpdateDrag(Point{X: 113, Y: 50})

	got := e.Snapshot().Dividers
	if !almostEqual(got[0], 0.61) {
		t.Errorf("dividers[0] = %v, want 0.61", got[0])
	}
	if !almostEqual(got[1], 0.66) {
		t.Errorf("dividers[1] = %v, want 0.66 (untouched)", got[1])
	}
	e.EndDrag()

	// Leftward, the first divider clamps against the quad edge margin.
	e.BeginDrag(DividerTarget(0), Point{X: 61, Y: 50})
	e.UpdateDrag(Point{X: -500, Y: 50})
	got = e.Snapshot().Dividers
	if !almostEqual(got[0], DividerMargin) {
		t.Errorf("dividers[0] = %v, want %v", got[0], DividerMargin)
	}
}

func TestDividerOrdering_HoldsAcrossDrags(t *testing.T) {
	e, err := NewEditor(800, 600, 5, nil)
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	drags := []struct {
		divider int
		fromX   float64
		toX     float64
	}{
		{0, 100, 700},
		{3, 600, -100},
		{1, 300, 310},
		{2, 400, 0},
	}

	for _, d := range drags {
		e.BeginDrag(DividerTarget(d.divider), Point{X: d.fromX, Y: 300})
		e.UpdateDrag(Point{X: d.toX, Y: 300})
		e.EndDrag()

		got := e.Snapshot().Dividers
		prev := 0.0
		for i, f := range got {
			if f < prev+DividerMargin-1e-9 {
				t.Fatalf("after drag %+v: dividers[%d]=%v too close to %v", d, i, f, prev)
			}
			prev = f
		}
		if prev > 1-DividerMargin+1e-9 {
			t.Fatalf("after drag %+v: last divider %v too close to edge", d, prev)
		}
	}
}

func TestViewport_LetterboxMapping(t *testing.T) {
	// A 640x480 video displayed in a 1280x800 container scales by 1.6667
	// and is letterboxed horizontally by (1280-1066.67)/2.
	v := Viewport{VideoWidth: 640, VideoHeight: 480, ContainerWidth: 1280, ContainerHeight: 800}

	scale := v.Scale()
	if !almostEqual(scale, 800.0/480.0) {
		t.Errorf("Scale() = %v, want %v", scale, 800.0/480.0)
	}

	ox, oy := v.Offsets()
	if !almostEqual(oy, 0) {
		t.Errorf("vertical offset = %v, want 0", oy)
	}
	wantOx := (1280 - 640*scale) / 2
	if !almostEqual(ox, wantOx) {
		t.Errorf("horizontal offset = %v, want %v", ox, wantOx)
	}

	// The container center maps back to the video center.
	center := v.ToSource(Point{X: 640, Y: 400})
	if !almostEqual(center.X, 320) || !almostEqual(center.Y, 240) {
		t.Errorf("ToSource(center) = %+v, want (320,240)", center)
	}
}

func TestEditor_DragUsesViewportScale(t *testing.T) {
	e, err := NewEditor(1000, 1000, 1, &Grid{
		Corners: QuadCorners{
			TopLeft:     Point{X: 400, Y: 400},
			TopRight:    Point{X: 600, Y: 400},
			BottomLeft:  Point{X: 400, Y: 600},
			BottomRight: Point{X: 600, Y: 600},
		},
		ColumnCount: 1,
	})
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	// Displayed at half size: a 50px screen drag is a 100px source drag.
	e.SetViewport(Viewport{VideoWidth: 1000, VideoHeight: 1000, ContainerWidth: 500, ContainerHeight: 500})
	e.BeginDrag(CornerTarget(TopLeft), Point{X: 200, Y: 200})
	e.UpdateDrag(Point{X: 250, Y: 200})

	got := e.Snapshot().Corners.TopLeft
	if !almostEqual(got.X, 500) || !almostEqual(got.Y, 400) {
		t.Errorf("topLeft = %+v, want (500,400)", got)
	}
}

func TestComplete_SnapshotsGrid(t *testing.T) {
	e, err := NewEditor(640, 480, 3, nil)
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	grid := e.Complete()
	if grid.ColumnCount != 3 {
		t.Errorf("columnCount = %d, want 3", grid.ColumnCount)
	}

	roi := grid.Corners.BoundingBox()
	if grid.ROI != roi {
		t.Errorf("ROI = %+v, want bounding box %+v", grid.ROI, roi)
	}

	// Later edits must not leak into the completed snapshot.
	e.BeginDrag(DividerTarget(0), Point{X: 200, Y: 200})
	e.UpdateDrag(Point{X: 230, Y: 200})
	if !almostEqual(grid.Dividers[0], 1.0/3.0) {
		t.Errorf("completed grid mutated: dividers[0] = %v", grid.Dividers[0])
	}
}

func TestEditor_NotifiesListeners(t *testing.T) {
	e, err := NewEditor(640, 480, 2, nil)
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}

	var snaps []Snapshot
	e.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })

	e.BeginDrag(CornerTarget(TopLeft), Point{X: 100, Y: 100})
	e.UpdateDrag(Point{X: 110, Y: 105})
	e.UpdateDrag(Point{X: 120, Y: 110})
	e.EndDrag()

	if len(snaps) != 2 {
		t.Fatalf("listener called %d times, want 2", len(snaps))
	}
	if snaps[1].Corners.TopLeft == snaps[0].Corners.TopLeft {
		t.Error("expected listener snapshots to differ between updates")
	}
}

func TestParseDragTarget(t *testing.T) {
	cases := []struct {
		in   string
		want DragTarget
		ok   bool
	}{
		{"quad", QuadTarget(), true},
		{"topLeft", CornerTarget(TopLeft), true},
		{"bottomRight", CornerTarget(BottomRight), true},
		{"divider-2", DividerTarget(2), true},
		{"divider-x", DragTarget{}, false},
		{"divider--1", DragTarget{}, false},
		{"middle", DragTarget{}, false},
	}

	for _, tc := range cases {
		got, err := ParseDragTarget(tc.in)
		if tc.ok != (err == nil) {
			t.Errorf("ParseDragTarget(%q) error = %v, want ok=%v", tc.in, err, tc.ok)
			continue
		}
		if tc.ok && got != tc.want {
			t.Errorf("ParseDragTarget(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
