package inference

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/internal/monitoring"
	"github.com/nvr-ai/go-detect/models/model"
)

// blobScale maps 8-bit pixel values into [0, 1].
const blobScale = 1.0 / 255.0

// DarknetEngine runs darknet YOLO networks through the OpenCV DNN module.
type DarknetEngine struct {
	mu          sync.Mutex
	net         gocv.Net
	outputNames []string
	inputShape  image.Point
	weights     string
	closed      bool
}

// NewDarknetEngine loads a darknet network from its .weights and .cfg files.
//
// Arguments:
//   - args: The engine arguments. Weights and Config are required.
//
// Returns:
//   - *DarknetEngine: The loaded engine.
//   - error: A *model.ModelLoadError if either file is missing or OpenCV cannot
//     parse the network.
func NewDarknetEngine(args EngineArgs) (*DarknetEngine, error) {
	for _, path := range []string{args.Weights, args.Config} {
		if _, err := os.Stat(path); err != nil {
			return nil, &model.ModelLoadError{Path: path, Err: err}
		}
	}

	backend, target, err := args.Provider.DNN()
	if err != nil {
		return nil, &model.ModelLoadError{Path: args.Weights, Err: err}
	}

	net := gocv.ReadNet(args.Weights, args.Config)
	if net.Empty() {
		return nil, &model.ModelLoadError{
			Path: args.Weights,
			Err:  errors.Errorf("opencv could not read network (config %s)", args.Config),
		}
	}

	net.SetPreferableBackend(backend)
	net.SetPreferableTarget(target)

	outputNames := outputLayerNames(&net)
	if len(outputNames) == 0 {
		net.Close()
		return nil, &model.ModelLoadError{Path: args.Weights, Err: errors.New("network has no output layers")}
	}

	shape := args.InputShape
	if shape == (image.Point{}) {
		shape = model.DefaultInputShape
	}

	monitoring.Logf("loaded darknet network %s (%d output layers, input %dx%d)",
		args.Weights, len(outputNames), shape.X, shape.Y)

	return &DarknetEngine{
		net:         net,
		outputNames: outputNames,
		inputShape:  shape,
		weights:     args.Weights,
	}, nil
}

// outputLayerNames resolves the names of the unconnected output layers. Layer
// ids reported by OpenCV are 1-based.
func outputLayerNames(net *gocv.Net) []string {
	layerNames := net.GetLayerNames()

	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		if id < 1 || id > len(layerNames) {
			continue
		}
		names = append(names, layerNames[id-1])
	}
	return names
}

// Infer runs a forward pass over img and returns one tensor per output layer.
//
// Arguments:
//   - ctx: Checked for cancellation before the forward pass.
//   - img: A BGR image of any size.
//
// Returns:
//   - []*tensor.Dense: Output tensors in output layer order.
//   - error: The error if any.
func (e *DarknetEngine) Infer(ctx context.Context, img gocv.Mat) ([]*tensor.Dense, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, errors.New("input image is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errors.New("engine is closed")
	}

	blob := gocv.BlobFromImage(img, blobScale, e.inputShape, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")

	outputs := e.net.ForwardLayers(e.outputNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	tensors := make([]*tensor.Dense, 0, len(outputs))
	for i, out := range outputs {
		t, err := MatToTensor(out)
		if err != nil {
			return nil, errors.Wrapf(err, "output layer %s", e.outputNames[i])
		}
		if t != nil {
			tensors = append(tensors, t)
		}
	}

	return tensors, nil
}

// Close releases the network.
func (e *DarknetEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.net.Close(); err != nil {
		return errors.Wrap(err, "closing network")
	}
	monitoring.Logf("closed darknet network %s", e.weights)
	return nil
}
