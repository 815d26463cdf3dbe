// Package providers - execution backend selection for the inference engines.
package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// Backend represents an execution backend shared by the OpenCV DNN and ONNX
// Runtime engines.
type Backend string

const (
	// CPUBackend runs on the CPU with the engine's default kernels.
	CPUBackend Backend = "cpu"
	// CoreMLBackend uses Apple CoreML (ONNX Runtime only).
	CoreMLBackend Backend = "coreml"
	// OpenVINOBackend uses Intel OpenVINO.
	OpenVINOBackend Backend = "openvino"
)

// Config selects and tunes the execution backend.
type Config struct {
	// Backend specifies the backend to use
	Backend Backend `json:"backend" yaml:"backend"`

	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string `json:"library_path" yaml:"library_path"`

	// IntraOpThreads parallelizes execution within graph nodes, 0 for the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`

	// InterOpThreads parallelizes execution across graph nodes, 0 for the runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`

	// OpenVINO holds options passed through when Backend is OpenVINOBackend.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultConfig returns the CPU backend with runtime-chosen threading.
func DefaultConfig() Config {
	return Config{
		Backend:  CPUBackend,
		OpenVINO: DefaultOpenVINOOptions(),
	}
}

// Validate checks the configuration.
//
// Returns:
//   - error: An error if the backend is unknown or thread counts are negative.
func (c Config) Validate() error {
	switch c.Backend {
	case CPUBackend, CoreMLBackend, OpenVINOBackend:
	case "":
		return fmt.Errorf("backend is required")
	default:
		return fmt.Errorf("no matching provider backend registered: %s", c.Backend)
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return fmt.Errorf("thread counts must not be negative, got intra=%d inter=%d",
			c.IntraOpThreads, c.InterOpThreads)
	}
	if c.Backend == OpenVINOBackend {
		return c.OpenVINO.Validate()
	}
	return nil
}

// SessionOptions builds ONNX Runtime session options for the backend. The
// caller owns the returned options and must Destroy them.
//
// Returns:
//   - *ort.SessionOptions: Configured session options.
//   - error: An error if the options or the execution provider cannot be set up.
func (c Config) SessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	if err := c.applySessionOptions(options); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}

func (c Config) applySessionOptions(options *ort.SessionOptions) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return fmt.Errorf("error setting inter-op threads: %w", err)
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fmt.Errorf("error setting graph optimization level: %w", err)
	}

	switch c.Backend {
	case CoreMLBackend:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return fmt.Errorf("error enabling CoreML: %w", err)
		}
	case OpenVINOBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.OpenVINO.Map()); err != nil {
			return fmt.Errorf("error enabling OpenVINO: %w", err)
		}
	}
	return nil
}

// DNN returns the OpenCV DNN backend and target for the configured backend.
//
// Returns:
//   - gocv.NetBackendType: The DNN backend.
//   - gocv.NetTargetType: The DNN target.
//   - error: An error if OpenCV DNN cannot run on the backend.
func (c Config) DNN() (gocv.NetBackendType, gocv.NetTargetType, error) {
	switch c.Backend {
	case CPUBackend, "":
		return gocv.NetBackendOpenCV, gocv.NetTargetCPU, nil
	case OpenVINOBackend:
		return gocv.NetBackendOpenVINO, gocv.NetTargetCPU, nil
	default:
		return gocv.NetBackendDefault, gocv.NetTargetCPU,
			fmt.Errorf("backend %s is not available for darknet models", c.Backend)
	}
}
