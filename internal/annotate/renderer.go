package annotate

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"detmap-go/internal/geometry"
	"detmap-go/internal/types"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

const (
	strokeWidth   = 2.0
	fillAlpha     = 0.15
	labelFontSize = 13.0
	chipPadX      = 5.0
	chipPadY      = 3.0
)

// Options controls one render pass.
type Options struct {
	Threshold  float64 // minimum confidence to draw
	ShowLabels bool
	HUD        bool    // bracket-corner styling for the live view
	Opacity    float64 // uniform multiplier from the stale-detection fader
}

// Render draws the detection overlay onto a fresh copy of base and returns
// the composed image. The surface is fully redrawn every call; no state is
// carried between invocations.
func Render(base image.Image, objects []types.DetectedObject, opts Options) image.Image {
	bounds := base.Bounds()
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.DrawImage(base, 0, 0)
	DrawObjects(dc, objects, opts)
	return dc.Image()
}

// DrawObjects draws annotations for every detection at or above the
// confidence threshold onto an existing context.
func DrawObjects(dc *gg.Context, objects []types.DetectedObject, opts Options) {
	if opts.Opacity <= 0 {
		return
	}
	opacity := math.Min(opts.Opacity, 1)
	width := float64(dc.Width())
	height := float64(dc.Height())
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: labelFontSize}))

	for i, obj := range objects {
		if obj.Confidence < opts.Threshold {
			continue
		}
		rect := geometry.MapBox(obj.Box, width, height)
		col := ObjectColor(i)
		r, g, b := col.RGB255()
		fr, fg, fb := float64(r)/255, float64(g)/255, float64(b)/255

		dc.SetRGBA(fr, fg, fb, fillAlpha*opacity)
		dc.DrawRectangle(rect.X, rect.Y, rect.W, rect.H)
		dc.Fill()

		dc.SetRGBA(fr, fg, fb, opacity)
		dc.SetLineWidth(strokeWidth)
		if opts.HUD {
			strokeBrackets(dc, rect)
		} else {
			dc.DrawRectangle(rect.X, rect.Y, rect.W, rect.H)
			dc.Stroke()
		}

		if opts.ShowLabels {
			drawLabelChip(dc, rect, obj, fr, fg, fb, opacity)
		}
	}
}

// strokeBrackets draws only the four corners of the rect, HUD style.
func strokeBrackets(dc *gg.Context, rect geometry.Rect) {
	arm := math.Min(rect.W, rect.H) * 0.25
	if arm > 24 {
		arm = 24
	}
	if arm < 2 {
		arm = 2
	}
	x0, y0 := rect.X, rect.Y
	x1, y1 := rect.X+rect.W, rect.Y+rect.H

	dc.DrawLine(x0, y0, x0+arm, y0)
	dc.DrawLine(x0, y0, x0, y0+arm)
	dc.DrawLine(x1, y0, x1-arm, y0)
	dc.DrawLine(x1, y0, x1, y0+arm)
	dc.DrawLine(x0, y1, x0+arm, y1)
	dc.DrawLine(x0, y1, x0, y1-arm)
	dc.DrawLine(x1, y1, x1-arm, y1)
	dc.DrawLine(x1, y1, x1, y1-arm)
	dc.Stroke()
}

func drawLabelChip(dc *gg.Context, rect geometry.Rect, obj types.DetectedObject, fr, fg, fb, opacity float64) {
	text := labelText(obj)
	textW, textH := dc.MeasureString(text)
	chipW := textW + 2*chipPadX
	chipH := textH + 2*chipPadY
	chipX, chipY := placeLabelChip(rect, chipW, chipH, float64(dc.Width()))

	dc.SetRGBA(fr, fg, fb, opacity)
	dc.DrawRectangle(chipX, chipY, chipW, chipH)
	dc.Fill()

	dc.SetRGBA(0, 0, 0, opacity)
	dc.DrawString(text, chipX+chipPadX, chipY+chipH-chipPadY)
}

// placeLabelChip tries above the box first; a chip that would clip past the
// canvas top sits at the box top edge instead. Left-aligned with the box,
// shifted left when it would clip past the right edge.
func placeLabelChip(rect geometry.Rect, chipW, chipH, canvasW float64) (float64, float64) {
	y := rect.Y - chipH
	if y < 0 {
		y = rect.Y
	}
	x := rect.X
	if x+chipW > canvasW {
		x = canvasW - chipW
	}
	if x < 0 {
		x = 0
	}
	return x, y
}

func labelText(obj types.DetectedObject) string {
	pct := int(math.Round(obj.Confidence * 100))
	return fmt.Sprintf("%s %d%%", strings.ToUpper(obj.Label), pct)
}
