package heatmap

import (
	"image"
	"math"

	"detmap-go/internal/geometry"
	"detmap-go/internal/types"
)

const (
	// radiusDivisor and minRadius keep tiny detections from collapsing
	// into degenerate near-zero heat blobs.
	radiusDivisor = 1.5
	minRadius     = 20.0

	peakIntensity   = 0.9
	midStop         = 0.4
	backgroundFloor = 10
	maxAlpha        = 180
)

// Synthesize accumulates per-object radial intensity into a single-channel
// density buffer and recolors it through the blue-cyan-green-yellow-red
// ramp. The result is a translucent overlay meant to be composited above
// the source media with a lightening blend.
func Synthesize(objects []types.DetectedObject, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if width <= 0 || height <= 0 {
		return img
	}

	acc := make([]float64, width*height)
	for _, obj := range objects {
		accumulate(acc, obj, width, height)
	}

	for i, a := range acc {
		if a > 255 {
			a = 255
		}
		alpha := uint8(a)
		if alpha <= backgroundFloor {
			continue
		}
		r, g, b := rampColor(a / 255)
		out := alpha
		if out > maxAlpha {
			out = maxAlpha
		}
		off := i * 4
		img.Pix[off] = r
		img.Pix[off+1] = g
		img.Pix[off+2] = b
		img.Pix[off+3] = out
	}
	return img
}

// accumulate paints one object's elliptical radial gradient additively, so
// overlapping detections pool into hotter zones instead of occluding.
func accumulate(acc []float64, obj types.DetectedObject, width, height int) {
	rect := geometry.MapBox(obj.Box, float64(width), float64(height))
	cx, cy := rect.Center()
	rx := math.Max(rect.W/radiusDivisor, minRadius)
	ry := math.Max(rect.H/radiusDivisor, minRadius)
	peak := math.Min(obj.Confidence, peakIntensity) * 255

	x0 := clampInt(int(math.Floor(cx-rx)), 0, width)
	x1 := clampInt(int(math.Ceil(cx+rx))+1, 0, width)
	y0 := clampInt(int(math.Floor(cy-ry)), 0, height)
	y1 := clampInt(int(math.Ceil(cy+ry))+1, 0, height)

	for y := y0; y < y1; y++ {
		dy := (float64(y) - cy) / ry
		row := y * width
		for x := x0; x < x1; x++ {
			dx := (float64(x) - cx) / rx
			d := math.Sqrt(dx*dx + dy*dy)
			if d >= 1 {
				continue
			}
			acc[row+x] += peak * gradientStop(d)
		}
	}
}

// gradientStop is the radial profile: full intensity at the center, half at
// 40% radius, zero at the rim, linear between stops.
func gradientStop(d float64) float64 {
	if d <= 0 {
		return 1
	}
	if d <= midStop {
		return 1 - 0.5*(d/midStop)
	}
	return 0.5 * (1 - (d-midStop)/(1-midStop))
}

// rampColor maps normalized intensity t onto the 4-segment color ramp.
func rampColor(t float64) (uint8, uint8, uint8) {
	switch {
	case t < 0.25:
		return 0, scale(t / 0.25), 255
	case t < 0.5:
		return 0, 255, scale(1 - (t-0.25)/0.25)
	case t < 0.75:
		return scale((t - 0.5) / 0.25), 255, 0
	default:
		return 255, scale(1 - (t-0.75)/0.25), 0
	}
}

func scale(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
