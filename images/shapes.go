// Package images - Image processing utilities
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Box is an axis-aligned bounding box in absolute pixel coordinates.
//
// X and Y are the top-left corner. Width and Height may be zero or negative
// for degenerate detections; such boxes never overlap anything.
type Box struct {
	X      float32 `json:"x" yaml:"x"`
	Y      float32 `json:"y" yaml:"y"`
	Width  float32 `json:"width" yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// Right returns the x coordinate of the right edge.
func (b Box) Right() float32 { return b.X + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b Box) Bottom() float32 { return b.Y + b.Height }

// Degenerate reports whether the box has no area.
func (b Box) Degenerate() bool { return b.Width <= 0 || b.Height <= 0 }

// Area returns the area of the box, or 0 for degenerate boxes.
func (b Box) Area() float32 {
	if b.Degenerate() {
		return 0
	}
	return b.Width * b.Height
}

// Rectangle converts the box to an integer image.Rectangle, truncating
// coordinates the same way the drawing routines expect.
//
// Returns:
//   - image.Rectangle: Min is the top-left corner, Max the bottom-right corner.
func (b Box) Rectangle() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.Right()), int(b.Bottom()))
}

// CalculateIoU returns the Intersection over Union of two boxes: the area
// where they overlap divided by the area they cover together.
//
//	IoU = Area(A ∩ B) / (Area(A) + Area(B) - Area(A ∩ B))
//
// The result is in [0, 1]. Identical non-degenerate boxes give 1, boxes that
// do not overlap (including boxes that only touch along an edge) give 0.
// If either box has a width or height <= 0 the result is 0, which keeps the
// union from ever being zero.
//
// See also:
//   - http://ronny.rest/tutorials/module/localization_001/iou
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: The IoU score.
//
// Example Usage:
// ```go
//
//	a := Box{X: 0, Y: 0, Width: 10, Height: 10}
//	b := Box{X: 5, Y: 5, Width: 10, Height: 10}
//
//	score := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(a, b Box) float32 {
	if a.Degenerate() || b.Degenerate() {
		return 0
	}

	ix1 := math32.Max(a.X, b.X)
	iy1 := math32.Max(a.Y, b.Y)
	ix2 := math32.Min(a.Right(), b.Right())
	iy2 := math32.Min(a.Bottom(), b.Bottom())

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}

	return inter / union
}
