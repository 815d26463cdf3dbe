// Package render draws detections onto images.
package render

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Annotate draws a rectangle and a label for every detection onto img.
// Nothing is drawn for an empty set.
//
// Arguments:
//   - img: The image to draw on. It is modified in place.
//   - set: The detections to draw, usually the output of suppression.
//   - catalog: Resolves class ids to names. Unknown ids are labelled "unknown".
//   - palette: Assigns box colors by class id.
//   - style: Box and label appearance.
//
// Returns:
//   - error: An error if the image is missing or empty.
func Annotate(img *gocv.Mat, set []postprocess.Candidate, catalog *models.Catalog, palette Palette, style Style) error {
	if img == nil || img.Empty() {
		return errors.New("cannot annotate an empty image")
	}

	for _, c := range set {
		clr := palette.Color(c.ClassID)
		rect := c.Box.Rectangle()
		gocv.Rectangle(img, rect, clr, style.Thickness)

		name := models.UnknownClass
		if catalog != nil {
			name = catalog.Name(c.ClassID)
		}
		text := LabelText(name, c.Confidence, style.ShowConfidence)
		size := gocv.GetTextSize(text, style.Font, style.FontScale, style.FontThickness)
		origin := LabelOrigin(rect, size, style.LabelOffset)
		gocv.PutText(img, text, origin, style.Font, style.FontScale, clr, style.FontThickness)
	}
	return nil
}
