// Package yolov4 - decode YOLO region-layer outputs.
package yolov4

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"gorgonia.org/tensor"
)

// boxColumns is the number of leading columns in a region row before the
// class scores: center x, center y, width, height, objectness.
const boxColumns = 5

// Decode converts raw region-layer outputs into candidates.
//
// Every row of every output tensor is one anchor prediction laid out as
// [cx, cy, w, h, objectness, score_0 ... score_C-1] with coordinates given as
// fractions of the image size. The winning class is the argmax of the class
// scores, the lowest index on ties, and the row becomes a candidate when that
// score is strictly greater than the confidence threshold. Objectness is not
// used.
//
// Arguments:
//   - args: The outputs, original image size, threshold and class count.
//
// Returns:
//   - []postprocess.Candidate: Candidates in output order, then row order.
//   - error: A *model.MalformedDetectionOutput if any tensor has the wrong
//     layout, or a configuration error for invalid arguments.
func (m *YOLOv4) Decode(args model.DecodeArgs) ([]postprocess.Candidate, error) {
	return Decode(args)
}

// Decode is the stateless form of (*YOLOv4).Decode.
func Decode(args model.DecodeArgs) ([]postprocess.Candidate, error) {
	if args.Width <= 0 || args.Height <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %dx%d", args.Width, args.Height)
	}
	if args.ConfidenceThreshold <= 0 || args.ConfidenceThreshold >= 1 {
		return nil, fmt.Errorf("confidence threshold must be within (0, 1), got %f", args.ConfidenceThreshold)
	}
	if args.NumClasses <= 0 {
		return nil, fmt.Errorf("class count must be positive, got %d", args.NumClasses)
	}

	// Validate every output up front so a bad tensor never yields partial results.
	views := make([]regionView, len(args.Outputs))
	for i, out := range args.Outputs {
		v, err := newRegionView(i, out, args.NumClasses)
		if err != nil {
			return nil, err
		}
		views[i] = v
	}

	width := float32(args.Width)
	height := float32(args.Height)

	candidates := make([]postprocess.Candidate, 0)
	for _, v := range views {
		for r := 0; r < v.rows; r++ {
			row := v.data[r*v.cols : (r+1)*v.cols]
			classID, confidence := argmax(row[boxColumns : boxColumns+args.NumClasses])
			if !(confidence > args.ConfidenceThreshold) {
				continue
			}

			w := row[2] * width
			h := row[3] * height
			candidates = append(candidates, postprocess.Candidate{
				ClassID:    classID,
				Confidence: confidence,
				Box: images.Box{
					X:      row[0]*width - w/2,
					Y:      row[1]*height - h/2,
					Width:  w,
					Height: h,
				},
			})
		}
	}

	return candidates, nil
}

// argmax returns the index and value of the largest score. The first index
// wins ties and NaN scores are skipped. A row of only NaN scores returns NaN.
func argmax(scores []float32) (int, float32) {
	best := -1
	for i, s := range scores {
		if math32.IsNaN(s) {
			continue
		}
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, math32.NaN()
	}
	return best, scores[best]
}

// regionView is a validated row-major 2-D view over one output tensor.
type regionView struct {
	data []float32
	rows int
	cols int
}

func newRegionView(index int, t *tensor.Dense, numClasses int) (regionView, error) {
	if t == nil {
		return regionView{}, &model.MalformedDetectionOutput{Output: index, Reason: "tensor is nil"}
	}

	shape := []int(t.Shape())
	malformed := func(format string, a ...any) error {
		return &model.MalformedDetectionOutput{
			Output: index,
			Shape:  append([]int(nil), shape...),
			Reason: fmt.Sprintf(format, a...),
		}
	}

	if len(shape) < 2 {
		return regionView{}, malformed("expected at least 2 dimensions")
	}

	data, ok := t.Data().([]float32)
	if !ok {
		return regionView{}, malformed("expected float32 data, got %v", t.Dtype())
	}

	cols := shape[len(shape)-1]
	rows := 1
	for _, d := range shape[:len(shape)-1] {
		rows *= d
	}

	if cols < boxColumns+numClasses {
		return regionView{}, malformed("row has %d columns, need at least %d for %d classes",
			cols, boxColumns+numClasses, numClasses)
	}
	if len(data) != rows*cols {
		return regionView{}, malformed("backing holds %d values, shape needs %d", len(data), rows*cols)
	}

	return regionView{data: data, rows: rows, cols: cols}, nil
}
