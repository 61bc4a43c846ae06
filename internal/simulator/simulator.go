package simulator

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"detmap-go/internal/geometry"
	"detmap-go/internal/types"
)

// blob is one synthetic scene object. Positions are a pure function of
// time, so the simulated camera and the simulated inference service agree
// on where every blob is without sharing state.
type blob struct {
	label    string
	size     float64 // extent in normalized 0-1000 units
	speed    float64 // radians per second
	phaseX   float64
	phaseY   float64
	baseConf float64
	tint     color.RGBA
}

var blobs = []blob{
	{label: "person", size: 140, speed: 0.45, phaseX: 0.0, phaseY: 1.3, baseConf: 0.85, tint: color.RGBA{230, 90, 70, 255}},
	{label: "dog", size: 90, speed: 0.8, phaseX: 2.1, phaseY: 0.4, baseConf: 0.7, tint: color.RGBA{90, 200, 120, 255}},
	{label: "car", size: 220, speed: 0.25, phaseX: 4.2, phaseY: 2.6, baseConf: 0.92, tint: color.RGBA{80, 120, 230, 255}},
}

// Objects returns the ground-truth detections for the simulated scene at t.
func Objects(t time.Time) []types.DetectedObject {
	secs := float64(t.UnixNano()) / 1e9
	out := make([]types.DetectedObject, 0, len(blobs))
	for _, b := range blobs {
		cx := 500 + 350*math.Sin(secs*b.speed+b.phaseX)
		cy := 500 + 350*math.Cos(secs*b.speed*0.7+b.phaseY)
		half := b.size / 2
		conf := b.baseConf + 0.05*math.Sin(secs*1.7+b.phaseX)
		out = append(out, types.DetectedObject{
			Label:      b.label,
			Confidence: conf,
			Box: types.Box{
				YMin: cy - half,
				XMin: cx - half,
				YMax: cy + half,
				XMax: cx + half,
			},
		})
	}
	return out
}

// Stream emits synthetic camera frames at the given rate: a dark scene with
// the blobs painted at their current positions.
func Stream(ctx context.Context, width, height int, frameRate float64) <-chan types.CameraFrame {
	out := make(chan types.CameraFrame)
	go func() {
		defer close(out)

		if frameRate <= 0 {
			frameRate = 10
		}
		ticker := time.NewTicker(time.Duration(float64(time.Second) / frameRate))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				frame := types.CameraFrame{Image: renderScene(now, width, height), CapturedAt: now}
				select {
				case <-ctx.Done():
					return
				case out <- frame:
				}
			}
		}
	}()
	return out
}

func renderScene(t time.Time, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{24, 26, 30, 255}}, image.Point{}, draw.Src)

	objects := Objects(t)
	for i, obj := range objects {
		rect := geometry.MapBox(obj.Box, float64(width), float64(height))
		x0 := int(rect.X)
		y0 := int(rect.Y)
		x1 := int(rect.X + rect.W)
		y1 := int(rect.Y + rect.H)
		area := image.Rect(x0, y0, x1, y1).Intersect(img.Bounds())
		draw.Draw(img, area, &image.Uniform{blobs[i].tint}, image.Point{}, draw.Src)
	}
	return img
}

// Inferrer is a stand-in for the remote detection service in debug runs.
// It reports the blob boxes for the snapshot's capture time, with a small
// configurable response delay.
type Inferrer struct {
	Delay time.Duration
}

func (s *Inferrer) Infer(ctx context.Context, snap types.Snapshot, _ types.Mode) (types.InferenceResult, error) {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return types.InferenceResult{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	return types.InferenceResult{Objects: Objects(snap.CapturedAt)}, nil
}
