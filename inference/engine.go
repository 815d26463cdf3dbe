// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
)

// Engine produces raw detection tensors for one image at a time.
//
// Implementations are safe for concurrent use; calls are serialized
// internally. The owner of an Engine is responsible for calling Close.
type Engine interface {
	Infer(ctx context.Context, img gocv.Mat) ([]*tensor.Dense, error)
	Close() error
}

// EngineArgs describes the network files and runtime settings of an engine.
type EngineArgs struct {
	// Model is the model name, used to derive default output shapes.
	Model model.Name `json:"model" yaml:"model"`
	// Format selects the engine. Empty means: infer from the weights extension.
	Format model.Format `json:"format" yaml:"format"`
	// Weights is the darknet .weights file or the .onnx file.
	Weights string `json:"weights" yaml:"weights"`
	// Config is the darknet .cfg file. Unused for ONNX.
	Config string `json:"config" yaml:"config"`
	// InputShape is the network input resolution.
	InputShape image.Point `json:"input_shape" yaml:"input_shape"`
	// NumClasses is the number of class scores per row.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// InputName and OutputName are the ONNX graph tensor names.
	InputName  string `json:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`
	// OutputShape overrides the ONNX output tensor shape.
	OutputShape []int64 `json:"output_shape" yaml:"output_shape"`
	// Provider selects the execution backend.
	Provider providers.Config `json:"provider" yaml:"provider"`
}

// ResolveFormat returns the explicit format, or infers it from the weights
// file extension.
func (a EngineArgs) ResolveFormat() (model.Format, error) {
	if a.Format != "" {
		switch a.Format {
		case model.FormatDarknet, model.FormatONNX:
			return a.Format, nil
		default:
			return "", fmt.Errorf("unsupported model format: %s", a.Format)
		}
	}

	switch strings.ToLower(filepath.Ext(a.Weights)) {
	case ".onnx":
		return model.FormatONNX, nil
	case ".weights":
		return model.FormatDarknet, nil
	default:
		return "", fmt.Errorf("cannot infer model format from %q", a.Weights)
	}
}

// Load opens the engine described by args.
//
// Arguments:
//   - args: The engine arguments.
//
// Returns:
//   - Engine: The loaded engine.
//   - error: A *model.ModelLoadError when the network files cannot be loaded.
func Load(args EngineArgs) (Engine, error) {
	format, err := args.ResolveFormat()
	if err != nil {
		return nil, err
	}
	if err := args.Provider.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid provider configuration")
	}

	switch format {
	case model.FormatONNX:
		return NewONNXEngine(args)
	default:
		return NewDarknetEngine(args)
	}
}

// EngineBuilder assembles EngineArgs with a fluent API.
type EngineBuilder struct {
	args EngineArgs
	err  error
}

// NewEngineBuilder creates a new engine builder with the default provider.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{args: EngineArgs{Provider: providers.DefaultConfig()}}
}

// WithModel sets the model name and input shape.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}

	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}

	opts := m.Options()
	b.args.Model = opts.Name
	b.args.InputShape = opts.InputShape
	return b
}

// WithFiles sets the weights and, for darknet models, the config file.
func (b *EngineBuilder) WithFiles(weights, config string) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.args.Weights = weights
	b.args.Config = config
	return b
}

// WithFormat forces the model format instead of inferring it.
func (b *EngineBuilder) WithFormat(format model.Format) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.args.Format = format
	return b
}

// WithClasses sets the number of class scores per output row.
func (b *EngineBuilder) WithClasses(n int) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if n <= 0 {
		b.err = fmt.Errorf("class count must be positive, got %d", n)
		return b
	}
	b.args.NumClasses = n
	return b
}

// WithTensors sets the ONNX input and output tensor names and the output
// shape. Empty values keep the defaults.
//
// Arguments:
//   - input: The input tensor name.
//   - output: The output tensor name.
//   - shape: The output tensor shape.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithTensors(input, output string, shape []int64) *EngineBuilder {
	if b.HasError() {
		return b
	}
	for _, d := range shape {
		if d <= 0 {
			b.err = fmt.Errorf("output shape dimensions must be positive, got %v", shape)
			return b
		}
	}
	b.args.InputName = input
	b.args.OutputName = output
	b.args.OutputShape = append([]int64(nil), shape...)
	return b
}

// WithProvider sets the execution backend.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(cfg providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.Validate(); err != nil {
		b.err = err
		return b
	}
	b.args.Provider = cfg
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Args returns the assembled engine arguments.
func (b *EngineBuilder) Args() (EngineArgs, error) {
	if b.HasError() {
		return EngineArgs{}, b.err
	}
	if b.args.Weights == "" {
		return EngineArgs{}, fmt.Errorf("weights not configured")
	}
	if b.args.InputShape == (image.Point{}) {
		b.args.InputShape = model.DefaultInputShape
	}
	return b.args, nil
}

// Build loads the engine.
//
// Returns:
//   - Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (Engine, error) {
	args, err := b.Args()
	if err != nil {
		return nil, err
	}
	return Load(args)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
