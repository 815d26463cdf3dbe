package render

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// goldenAngle spaces consecutive class hues as far apart as possible.
const goldenAngle = 137.50776405003785

// Palette assigns every class id a stable color.
type Palette struct {
	// Saturation and Value of the generated HSV colors, within [0, 1].
	Saturation float64
	Value      float64
	// Overrides pins specific class ids to a fixed color.
	Overrides map[int]color.RGBA
}

// DefaultPalette returns a palette of saturated, bright colors.
func DefaultPalette() Palette {
	return Palette{Saturation: 0.85, Value: 0.95}
}

// Color returns the color for a class id. The same id always yields the same
// color.
//
// Arguments:
//   - classID: The class index.
//
// Returns:
//   - color.RGBA: An opaque color.
func (p Palette) Color(classID int) color.RGBA {
	if c, ok := p.Overrides[classID]; ok {
		return c
	}

	hue := math.Mod(float64(classID)*goldenAngle, 360)
	if hue < 0 {
		hue += 360
	}
	r, g, b := colorful.Hsv(hue, p.Saturation, p.Value).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
