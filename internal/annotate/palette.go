package annotate

import "github.com/lucasb-eyer/go-colorful"

const (
	// hueStep is close to the golden angle, so consecutive detection
	// indices land on maximally distinct hues even for small sets.
	hueStep    = 137
	saturation = 0.70
	lightness  = 0.50
)

// ObjectColor returns the deterministic color for detection index i.
func ObjectColor(i int) colorful.Color {
	hue := float64((i * hueStep) % 360)
	return colorful.Hsl(hue, saturation, lightness)
}
