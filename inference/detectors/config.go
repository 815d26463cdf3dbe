// Package detectors - Detection pipeline configuration.
package detectors

import (
	"fmt"
	"image"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Config represents the thresholds and filters of the detection pipeline.
type Config struct {
	// Backend execution provider configuration
	Provider providers.Config `json:"provider" yaml:"provider"`

	// InputShape defines the network input dimensions (width, height)
	InputShape image.Point `json:"input_shape" yaml:"input_shape"`

	// ConfidenceThreshold drops rows whose best class score is not above it
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// NMSThreshold controls Non-Maximum Suppression IoU threshold
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`

	// ClassAware restricts suppression to boxes of the same class
	ClassAware bool `json:"class_aware" yaml:"class_aware"`

	// MaxDetections caps the number of detections per image (0 = no limit)
	MaxDetections int `json:"max_detections" yaml:"max_detections"`

	// RelevantClasses lists object classes to report (empty = all classes)
	RelevantClasses []string `json:"relevant_classes" yaml:"relevant_classes"`

	// InputName and OutputName are the ONNX graph tensor names (empty = "input", "output")
	InputName  string `json:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`

	// OutputShape is the ONNX output tensor shape (empty = derived from the model and class count)
	OutputShape []int64 `json:"output_shape" yaml:"output_shape"`
}

// DefaultConfig returns the thresholds darknet YOLO models are tuned for:
// confidence 0.5, joint suppression at IoU 0.4 and a 416x416 input.
//
// Returns:
//   - Config: The default configuration.
func DefaultConfig() Config {
	return Config{
		Provider:            providers.DefaultConfig(),
		InputShape:          image.Point{X: 416, Y: 416},
		ConfidenceThreshold: 0.5,
		NMSThreshold:        postprocess.DefaultIoUThreshold,
		ClassAware:          false,
		MaxDetections:       0,
		RelevantClasses:     []string{},
	}
}

// LoadConfig reads a YAML configuration file over DefaultConfig. Fields not
// present in the file keep their defaults.
//
// Arguments:
//   - path: Path to the YAML file.
//
// Returns:
//   - Config: The merged, validated configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for out-of-range values.
//
// Returns:
//   - error: An error describing the first invalid field.
func (c Config) Validate() error {
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("confidence_threshold must be within (0, 1), got %f", c.ConfidenceThreshold)
	}
	if c.InputShape.X <= 0 || c.InputShape.Y <= 0 {
		return fmt.Errorf("input_shape must be positive, got %v", c.InputShape)
	}
	for _, d := range c.OutputShape {
		if d <= 0 {
			return fmt.Errorf("output_shape dimensions must be positive, got %v", c.OutputShape)
		}
	}
	if err := c.NMS().Validate(); err != nil {
		return err
	}
	return c.Provider.Validate()
}

// NMS returns the suppression settings for the configuration.
func (c Config) NMS() postprocess.NMSConfig {
	return postprocess.NMSConfig{
		IoUThreshold:  c.NMSThreshold,
		ClassAware:    c.ClassAware,
		MaxDetections: c.MaxDetections,
	}
}
