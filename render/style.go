package render

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Style controls how boxes and labels are drawn.
type Style struct {
	// Thickness of the box outline in pixels.
	Thickness int
	// Font face, scale and stroke thickness of the label text.
	Font          gocv.HersheyFont
	FontScale     float64
	FontThickness int
	// Offset of the label origin from the box's top-left corner.
	LabelOffset image.Point
	// ShowConfidence appends the confidence to the class name.
	ShowConfidence bool
}

// DefaultStyle returns the classic darknet look: a 2px box with a small
// Hershey simplex label just above it.
func DefaultStyle() Style {
	return Style{
		Thickness:      2,
		Font:           gocv.FontHersheySimplex,
		FontScale:      0.5,
		FontThickness:  1,
		LabelOffset:    image.Point{X: -10, Y: -10},
		ShowConfidence: true,
	}
}

// LabelText formats the label drawn next to a detection, e.g. "person: 0.87".
//
// Arguments:
//   - name: The class name.
//   - confidence: The detection confidence.
//   - showConfidence: Whether to append the confidence.
//
// Returns:
//   - string: The label.
func LabelText(name string, confidence float32, showConfidence bool) string {
	if !showConfidence {
		return name
	}
	return fmt.Sprintf("%s: %.2f", name, confidence)
}

// LabelOrigin places the text baseline origin for a box so the label stays
// inside the image.
//
// Arguments:
//   - box: The detection rectangle in pixels.
//   - textSize: The rendered text size from gocv.GetTextSize.
//   - offset: Offset of the origin from the box's top-left corner.
//
// Returns:
//   - image.Point: The bottom-left origin of the text.
func LabelOrigin(box image.Rectangle, textSize image.Point, offset image.Point) image.Point {
	origin := box.Min.Add(offset)
	if origin.X < 0 {
		origin.X = 0
	}
	if origin.Y < textSize.Y {
		origin.Y = textSize.Y
	}
	return origin
}
