package heatmap

import (
	"testing"

	"detmap-go/internal/types"
)

func TestRampBoundaries(t *testing.T) {
	cases := []struct {
		t       float64
		r, g, b uint8
	}{
		{0.25, 0, 255, 255}, // cyan
		{0.5, 0, 255, 0},    // green
		{0.75, 255, 255, 0}, // yellow
		{1.0, 255, 0, 0},    // red
	}
	for _, tc := range cases {
		r, g, b := rampColor(tc.t)
		if r != tc.r || g != tc.g || b != tc.b {
			t.Errorf("t=%v: got (%d,%d,%d) want (%d,%d,%d)", tc.t, r, g, b, tc.r, tc.g, tc.b)
		}
	}
}

func TestGradientStops(t *testing.T) {
	if got := gradientStop(0); got != 1 {
		t.Fatalf("center intensity: %v", got)
	}
	if got := gradientStop(0.4); got != 0.5 {
		t.Fatalf("mid-stop intensity: %v", got)
	}
	if got := gradientStop(1); got != 0 {
		t.Fatalf("rim intensity: %v", got)
	}
}

func TestSynthesizeEmptyIsTransparent(t *testing.T) {
	img := Synthesize(nil, 40, 40)
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			t.Fatal("empty detection set produced visible pixels")
		}
	}
}

func TestSynthesizeAlphaCap(t *testing.T) {
	objects := []types.DetectedObject{
		{Label: "a", Confidence: 0.95, Box: types.Box{YMin: 400, XMin: 400, YMax: 600, XMax: 600}},
		{Label: "b", Confidence: 0.95, Box: types.Box{YMin: 400, XMin: 400, YMax: 600, XMax: 600}},
	}
	img := Synthesize(objects, 100, 100)
	center := img.NRGBAAt(50, 50)
	if center.A == 0 {
		t.Fatal("center of hot zone is transparent")
	}
	if center.A > 180 {
		t.Fatalf("alpha exceeds cap: %d", center.A)
	}
	// Two stacked full-intensity blobs saturate the buffer: pure red.
	if center.R != 255 || center.G != 0 || center.B != 0 {
		t.Fatalf("saturated center not red: %+v", center)
	}
}

func TestSynthesizeTinyBoxGetsRadiusFloor(t *testing.T) {
	// A 2x2-pixel box on a 200x200 canvas still paints a blob with the
	// 20px minimum radius.
	objects := []types.DetectedObject{
		{Label: "bolt", Confidence: 0.8, Box: types.Box{YMin: 495, XMin: 495, YMax: 505, XMax: 505}},
	}
	img := Synthesize(objects, 200, 200)
	if img.NRGBAAt(100, 100).A == 0 {
		t.Fatal("tiny detection produced no heat at its center")
	}
	if img.NRGBAAt(100+15, 100).A == 0 {
		t.Fatal("tiny detection did not spread to the radius floor")
	}
	if img.NRGBAAt(100+25, 100).A != 0 {
		t.Fatal("tiny detection spread past the radius floor")
	}
}

func TestSynthesizeBackgroundFloor(t *testing.T) {
	// Confidence low enough that the rim contribution stays at or below
	// the background floor and must be forced transparent.
	objects := []types.DetectedObject{
		{Label: "faint", Confidence: 0.5, Box: types.Box{YMin: 450, XMin: 450, YMax: 550, XMax: 550}},
	}
	img := Synthesize(objects, 100, 100)
	if img.NRGBAAt(5, 5).A != 0 {
		t.Fatal("far background is not transparent")
	}
}
