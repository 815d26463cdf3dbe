// Package postprocess - Postprocessing utilities for models.
package postprocess

import "github.com/nvr-ai/go-detect/images"

// Candidate represents a single decoded detection before or after suppression.
type Candidate struct {
	// The predicted class index, an index into the class catalog.
	ClassID int `json:"class_id" yaml:"class_id"`
	// The confidence score, the winning class score.
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// The bounding box in absolute pixels, top-left origin.
	Box images.Box `json:"box" yaml:"box"`
}
