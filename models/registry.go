// Package models - registry for models.
package models

import (
	"fmt"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/yolov4"
)

// NewModel creates a detection model instance based on the specified model name.
//
// All darknet YOLO generations share a single region-output layout, so
// yolov3, yolov4 and yolov4-tiny resolve to the yolov4 decoder with their own
// name recorded in the options.
//
// Arguments:
//   - args: The model name and optional input shape.
//
// Returns:
//   - model.Model: A configured model.
//   - error: An error if the model name is unsupported or validation fails.
//
// Example:
//
// ```go
//
//	m, err := NewModel(model.NewModelArgs{Name: model.ModelNameYOLOv4Tiny})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
//
// ```
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameYOLOv3, model.ModelNameYOLOv4, model.ModelNameYOLOv4Tiny:
		m, err := yolov4.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", args.Name)
	}
}

// Names lists every model name NewModel accepts.
func Names() []model.Name {
	return []model.Name{model.ModelNameYOLOv3, model.ModelNameYOLOv4, model.ModelNameYOLOv4Tiny}
}
