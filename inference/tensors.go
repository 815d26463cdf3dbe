package inference

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// MatToTensor copies a float32 OpenCV output blob into a dense tensor with
// the same shape. An empty blob yields a nil tensor and no error.
//
// Arguments:
//   - m: The output blob. It may be closed after the call returns.
//
// Returns:
//   - *tensor.Dense: A tensor owning its own backing slice.
//   - error: An error if the blob is not float32.
func MatToTensor(m gocv.Mat) (*tensor.Dense, error) {
	if m.Empty() || m.Total() == 0 {
		return nil, nil
	}
	if m.Type() != gocv.MatTypeCV32F {
		return nil, errors.Errorf("expected a float32 blob, got mat type %v", m.Type())
	}

	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "reading blob data")
	}

	shape := m.Size()
	if len(shape) == 0 {
		shape = []int{m.Rows(), m.Cols()}
	}

	return Float32Tensor(data, shape)
}

// Float32Tensor copies data into a new dense tensor of the given shape.
func Float32Tensor(data []float32, shape []int) (*tensor.Dense, error) {
	total := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, errors.Errorf("invalid tensor shape %v", shape)
		}
		total *= d
	}
	if total != len(data) {
		return nil, errors.Errorf("shape %v needs %d values, got %d", shape, total, len(data))
	}

	backing := make([]float32, total)
	copy(backing, data)

	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)), nil
}
