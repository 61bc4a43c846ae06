package geometry

import "detmap-go/internal/types"

// coordScale is the normalized coordinate range used by the inference
// service for box coordinates.
const coordScale = 1000.0

// Rect is a pixel-space rectangle on a target canvas.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// MapBox projects a normalized detection box onto a canvas of the given
// pixel size. Coordinates outside [0,1000] project outside the canvas
// rather than erroring. A non-monotonic box yields a zero-area rect.
func MapBox(b types.Box, width, height float64) Rect {
	w := (b.XMax - b.XMin) / coordScale * width
	h := (b.YMax - b.YMin) / coordScale * height
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return Rect{
		X: b.XMin / coordScale * width,
		Y: b.YMin / coordScale * height,
		W: w,
		H: h,
	}
}

// Center returns the midpoint of the rect.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}
