package providers

import (
	"fmt"
	"strconv"
)

// Precision is the inference precision requested from OpenVINO.
type Precision string

const (
	// PrecisionAccuracy keeps the model's own precision.
	PrecisionAccuracy Precision = "ACCURACY"
	// PrecisionFP32 is 32-bit floating point.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 is 16-bit floating point.
	PrecisionFP16 Precision = "FP16"
)

// OpenVINOOptions contains arguments for the OpenVINO execution provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	DeviceID string `json:"device_id" yaml:"device_id"`
	// Overrides the accelerator hardware type at runtime (CPU, GPU, NPU).
	DeviceType string `json:"device_type" yaml:"device_type"`
	// Supported precisions for HW {CPU:FP32, GPU:[FP32, FP16, ACCURACY], NPU:FP16}.
	Precision Precision `json:"precision" yaml:"precision"`
	// Overrides the accelerator default number of threads, 0 keeps the default.
	NumOfThreads int `json:"num_of_threads" yaml:"num_of_threads"`
}

// DefaultOpenVINOOptions targets the CPU at FP32.
func DefaultOpenVINOOptions() OpenVINOOptions {
	return OpenVINOOptions{
		DeviceID:     "0",
		DeviceType:   "CPU",
		Precision:    PrecisionFP32,
		NumOfThreads: 4,
	}
}

// Map renders the options in the key/value form ONNX Runtime expects. Empty
// values are left out.
func (o OpenVINOOptions) Map() map[string]string {
	m := make(map[string]string, 4)
	if o.DeviceID != "" {
		m["device_id"] = o.DeviceID
	}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = string(o.Precision)
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	return m
}

// Validate checks the precision and thread count.
func (o OpenVINOOptions) Validate() error {
	switch o.Precision {
	case "", PrecisionAccuracy, PrecisionFP32, PrecisionFP16:
	default:
		return fmt.Errorf("unsupported OpenVINO precision: %s", o.Precision)
	}
	if o.NumOfThreads < 0 {
		return fmt.Errorf("OpenVINO thread count must not be negative, got %d", o.NumOfThreads)
	}
	return nil
}
