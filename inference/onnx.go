package inference

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/internal/monitoring"
	"github.com/nvr-ai/go-detect/models/model"
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

var ortInit sync.Mutex

// initEnvironment initializes the process-wide ONNX Runtime environment once.
func initEnvironment(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// RegionRows returns the number of region rows a darknet YOLO head emits for
// an input shape: three anchors per cell at strides 32, 16 and 8, or at 32 and
// 16 for the tiny variant.
func RegionRows(name model.Name, shape image.Point) int {
	strides := []int{32, 16, 8}
	if name == model.ModelNameYOLOv4Tiny {
		strides = []int{32, 16}
	}

	rows := 0
	for _, s := range strides {
		rows += 3 * (shape.X / s) * (shape.Y / s)
	}
	return rows
}

// ONNXEngine runs YOLO models exported to ONNX with a single 1xNx(5+C)
// region output.
type ONNXEngine struct {
	mu          sync.Mutex
	session     *Session
	inputShape  image.Point
	outputShape []int
	path        string
}

// NewONNXEngine creates an ONNX Runtime session for args.Weights.
//
// Arguments:
//   - args: The engine arguments. NumClasses is required unless OutputShape is set.
//
// Returns:
//   - *ONNXEngine: The loaded engine.
//   - error: A *model.ModelLoadError if the model or runtime cannot be loaded.
func NewONNXEngine(args EngineArgs) (*ONNXEngine, error) {
	if _, err := os.Stat(args.Weights); err != nil {
		return nil, &model.ModelLoadError{Path: args.Weights, Err: err}
	}

	shape := args.InputShape
	if shape == (image.Point{}) {
		shape = model.DefaultInputShape
	}

	outputShape := args.OutputShape
	if len(outputShape) == 0 {
		if args.NumClasses <= 0 {
			return nil, fmt.Errorf("class count is required to size the ONNX output")
		}
		outputShape = []int64{1, int64(RegionRows(args.Model, shape)), int64(5 + args.NumClasses)}
	}

	if err := initEnvironment(args.Provider.SharedLibPath()); err != nil {
		return nil, &model.ModelLoadError{Path: args.Weights, Err: err}
	}

	session, err := newSession(args, shape, outputShape)
	if err != nil {
		return nil, &model.ModelLoadError{Path: args.Weights, Err: err}
	}

	dims := make([]int, len(outputShape))
	for i, d := range outputShape {
		dims[i] = int(d)
	}

	monitoring.Logf("loaded onnx model %s (input %dx%d, output %v, backend %s)",
		args.Weights, shape.X, shape.Y, dims, args.Provider.Backend)

	return &ONNXEngine{
		session:     session,
		inputShape:  shape,
		outputShape: dims,
		path:        args.Weights,
	}, nil
}

func newSession(args EngineArgs, shape image.Point, outputShape []int64) (*Session, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(shape.Y), int64(shape.X)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := args.Provider.SessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	inputName := args.InputName
	if inputName == "" {
		inputName = defaultInputName
	}
	outputName := args.OutputName
	if outputName == "" {
		outputName = defaultOutputName
	}

	session, err := ort.NewAdvancedSession(
		args.Weights,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &Session{Session: session, Input: inputTensor, Output: outputTensor}, nil
}

// Infer runs the session over img.
//
// Arguments:
//   - ctx: Checked for cancellation before the run.
//   - img: A BGR image of any size.
//
// Returns:
//   - []*tensor.Dense: The single region output.
//   - error: The error if any.
func (e *ONNXEngine) Infer(ctx context.Context, img gocv.Mat) ([]*tensor.Dense, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, errors.New("input image is empty")
	}

	rgb, err := img.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "converting image")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, errors.New("engine is closed")
	}

	if err := PrepareInput(rgb, e.session.Input, e.inputShape); err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}
	if err := e.session.Session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	out, err := Float32Tensor(e.session.Output.GetData(), e.outputShape)
	if err != nil {
		return nil, err
	}
	return []*tensor.Dense{out}, nil
}

// Close releases the session and its tensors. The shared runtime environment
// stays initialized.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		e.session.Close()
		e.session = nil
		monitoring.Logf("closed onnx model %s", e.path)
	}
	return nil
}
