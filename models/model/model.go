// Package model - Definitions for detection models and their output formats.
package model

import (
	"image"

	"github.com/nvr-ai/go-detect/models/postprocess"
	"gorgonia.org/tensor"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyYOLO is the YOLO model family (darknet region outputs).
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv3 is the name of the YOLOv3 model.
	ModelNameYOLOv3 Name = "yolov3"
	// ModelNameYOLOv4 is the name of the YOLOv4 model.
	ModelNameYOLOv4 Name = "yolov4"
	// ModelNameYOLOv4Tiny is the name of the YOLOv4-tiny model.
	ModelNameYOLOv4Tiny Name = "yolov4-tiny"
)

// Format is the on-disk format of the network weights.
type Format string

const (
	// FormatDarknet is a darknet .cfg + .weights pair loaded through OpenCV DNN.
	FormatDarknet Format = "darknet"
	// FormatONNX is a single .onnx file loaded through ONNX Runtime.
	FormatONNX Format = "onnx"
)

// DefaultInputShape is the network input resolution used by the darknet configs.
var DefaultInputShape = image.Point{X: 416, Y: 416}

// Options describes a constructed model.
type Options struct {
	Name       Name        `json:"name" yaml:"name"`
	Family     Family      `json:"family" yaml:"family"`
	InputShape image.Point `json:"input_shape" yaml:"input_shape"`
}

// DecodeArgs is the per-call input to a model's output decoder.
type DecodeArgs struct {
	// Raw output tensors, one per output layer.
	Outputs []*tensor.Dense
	// Original image width in pixels.
	Width int
	// Original image height in pixels.
	Height int
	// Minimum class score, exclusive.
	ConfidenceThreshold float32
	// Number of classes in the catalog.
	NumClasses int
}

// Model turns raw network outputs into detection candidates.
type Model interface {
	Options() Options
	Decode(args DecodeArgs) ([]postprocess.Candidate, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name       Name        `json:"name" yaml:"name"`
	InputShape image.Point `json:"input_shape" yaml:"input_shape"`
}
