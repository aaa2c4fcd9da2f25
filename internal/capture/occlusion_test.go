package capture

import (
	"image"
	"testing"

	"gocv.io/x/gocv"
)

func TestNewOcclusionDetector(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		want      float64
	}{
		{name: "explicit threshold", threshold: 5.0, want: 5.0},
		{name: "zero falls back to default", threshold: 0, want: DefaultOcclusionThreshold},
		{name: "negative falls back to default", threshold: -1, want: DefaultOcclusionThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewOcclusionDetector(tt.threshold)
			defer d.Close()

			if got := d.Threshold(); got != tt.want {
				t.Errorf("Threshold() = %f, want %f", got, tt.want)
			}
			if d.initialized {
				t.Error("detector should not be initialized initially")
			}
		})
	}
}

func TestOcclusionDetector_StillBoard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	d := NewOcclusionDetector(DefaultOcclusionThreshold)
	defer d.Close()

	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	// First frame only establishes the baseline.
	occluded, changePercent := d.Detect(&frame1)
	if occluded {
		t.Error("baseline frame should never report occlusion")
	}
	if changePercent != 0 {
		t.Errorf("baseline changePercent = %f, want 0", changePercent)
	}

	// An identical second frame is an unobstructed board.
	occluded, changePercent = d.Detect(&frame2)
	if occluded {
		t.Errorf("identical frames reported occlusion, changePercent = %f", changePercent)
	}
}

func TestOcclusionDetector_HandOverBoard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	d := NewOcclusionDetector(DefaultOcclusionThreshold)
	defer d.Close()

	board := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer board.Close()

	covered := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer covered.Close()
	covered.SetTo(gocv.NewScalar(255, 255, 255, 0))

	d.Detect(&board)
	occluded, changePercent := d.Detect(&covered)
	if !occluded {
		t.Errorf("full-frame change should read as occlusion, changePercent = %f", changePercent)
	}
	if changePercent < 50.0 {
		t.Errorf("changePercent = %f, expected > 50%% for a fully covered board", changePercent)
	}
}

func TestOcclusionDetector_RegionScoping(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	d := NewOcclusionDetector(DefaultOcclusionThreshold)
	defer d.Close()
	d.SetRegion(image.Rect(0, 0, 100, 100))

	board := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer board.Close()

	// A change entirely outside the region must not count as occlusion.
	outside := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer outside.Close()
	patch := outside.Region(image.Rect(300, 300, 500, 460))
	patch.SetTo(gocv.NewScalar(255, 255, 255, 0))
	patch.Close()

	d.Detect(&board)
	occluded, changePercent := d.Detect(&outside)
	if occluded || changePercent != 0 {
		t.Errorf("change outside region reported occlusion: %v, %f", occluded, changePercent)
	}
}

func TestOcclusionDetector_RegionChangeRebaselines(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	d := NewOcclusionDetector(DefaultOcclusionThreshold)
	defer d.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	d.Detect(&frame)
	d.SetRegion(image.Rect(10, 10, 200, 200))

	// First frame after a region change is a new baseline, never occluded.
	occluded, changePercent := d.Detect(&frame)
	if occluded || changePercent != 0 {
		t.Errorf("frame after region change: occluded=%v changePercent=%f, want baseline",
			occluded, changePercent)
	}
}

func TestOcclusionDetector_Reset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	d := NewOcclusionDetector(DefaultOcclusionThreshold)
	defer d.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	d.Detect(&frame)
	if !d.initialized {
		t.Error("detector should be initialized after first Detect")
	}

	d.Reset()
	if d.initialized {
		t.Error("detector should not be initialized after Reset")
	}
	if !d.prevGray.Empty() {
		t.Error("prevGray should be empty after Reset")
	}
}

func TestOcclusionDetector_SetThreshold(t *testing.T) {
	d := NewOcclusionDetector(8.0)
	defer d.Close()

	d.SetThreshold(15.0)
	if got := d.Threshold(); got != 15.0 {
		t.Errorf("Threshold() = %f, want 15.0", got)
	}

	// Non-positive values are ignored.
	d.SetThreshold(-2.0)
	if got := d.Threshold(); got != 15.0 {
		t.Errorf("Threshold() = %f after negative set, want 15.0", got)
	}
}

func TestOcclusionDetector_Close_Multiple(t *testing.T) {
	d := NewOcclusionDetector(8.0)

	d.Close()
	d.Close()
}
