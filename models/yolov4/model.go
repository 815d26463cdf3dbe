// Package yolov4 - YOLOv4 model.
package yolov4

import (
	"fmt"

	"github.com/nvr-ai/go-detect/models/model"
)

// YOLOv4 is the instance of a darknet region-output model. YOLOv3, YOLOv4
// and YOLOv4-tiny share the same output layout and are all served by it.
type YOLOv4 struct {
	options model.Options
}

// Options returns the options for the model.
//
// Returns:
//   - The options for the model.
func (m *YOLOv4) Options() model.Options {
	return m.options
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model. A zero InputShape selects
//     model.DefaultInputShape.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*YOLOv4, error) {
	switch args.Name {
	case "":
		args.Name = model.ModelNameYOLOv4
	case model.ModelNameYOLOv3, model.ModelNameYOLOv4, model.ModelNameYOLOv4Tiny:
	default:
		return nil, fmt.Errorf("NewModel does not support %q", args.Name)
	}

	shape := args.InputShape
	if shape.X == 0 && shape.Y == 0 {
		shape = model.DefaultInputShape
	}
	if shape.X <= 0 || shape.Y <= 0 || shape.X%32 != 0 || shape.Y%32 != 0 {
		return nil, fmt.Errorf("NewModel requires a positive input shape divisible by 32, got %v", shape)
	}

	return &YOLOv4{
		options: model.Options{
			Name:       args.Name,
			Family:     model.ModelFamilyYOLO,
			InputShape: shape,
		},
	}, nil
}
