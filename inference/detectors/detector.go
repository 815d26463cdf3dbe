// Package detectors - single-image object detection pipeline.
package detectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// Stage names a step of the detection pipeline.
type Stage string

const (
	// StageInference is the forward pass through the network.
	StageInference Stage = "inference"
	// StageDecode turns raw outputs into candidates.
	StageDecode Stage = "decode"
	// StageSuppress removes overlapping candidates.
	StageSuppress Stage = "suppress"
)

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Detections is the result of one detection call.
type Detections struct {
	// Candidates that survived suppression and class filtering, in detection order.
	Candidates []postprocess.Candidate `json:"detections"`
	// Width and Height of the analyzed image in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`
	// RawCount is the number of candidates before suppression.
	RawCount int `json:"raw_count"`
	// Timings holds the duration of each stage that ran.
	Timings map[Stage]time.Duration `json:"timings_ns"`
}

// Option configures a Detector.
type Option func(*Detector)

// WithStageTimer records stage durations into st in addition to the per-call
// Timings.
func WithStageTimer(st *profiler.StageTimer) Option {
	return func(d *Detector) { d.timer = st }
}

// Detector runs inference, decoding and suppression for one image at a time.
//
// The engine and catalog are borrowed: they are loaded once by the caller,
// shared by every call and never closed by the Detector. A Detector is safe
// for concurrent use.
type Detector struct {
	engine   inference.Engine
	catalog  *models.Catalog
	model    model.Model
	config   Config
	relevant map[int]bool
	timer    *profiler.StageTimer
}

// NewDetector creates a detection pipeline over an already-loaded engine.
//
// Arguments:
//   - engine: The loaded inference engine.
//   - catalog: The class catalog the model was trained on.
//   - m: The model that decodes the engine outputs.
//   - cfg: Thresholds and filters.
//   - opts: Optional settings.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the configuration is invalid or a relevant class is
//     not in the catalog.
func NewDetector(engine inference.Engine, catalog *models.Catalog, m model.Model, cfg Config, opts ...Option) (*Detector, error) {
	if engine == nil {
		return nil, errors.New("detector requires an engine")
	}
	if catalog == nil || catalog.Len() == 0 {
		return nil, errors.New("detector requires a non-empty class catalog")
	}
	if m == nil {
		return nil, errors.New("detector requires a model")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var relevant map[int]bool
	if len(cfg.RelevantClasses) > 0 {
		relevant = make(map[int]bool, len(cfg.RelevantClasses))
		for _, name := range cfg.RelevantClasses {
			idx, ok := catalog.Index(name)
			if !ok {
				return nil, fmt.Errorf("relevant class %q is not in the catalog", name)
			}
			relevant[idx] = true
		}
	}

	d := &Detector{
		engine:   engine,
		catalog:  catalog,
		model:    m,
		config:   cfg,
		relevant: relevant,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Catalog returns the class catalog the detector reports against.
func (d *Detector) Catalog() *models.Catalog { return d.catalog }

// Model returns the model that decodes the engine outputs.
func (d *Detector) Model() model.Model { return d.model }

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.config }

// Detect runs the full pipeline over one image.
//
// Arguments:
//   - ctx: Checked for cancellation before inference.
//   - img: The BGR image. It is not modified.
//
// Returns:
//   - *Detections: The surviving detections.
//   - error: A *StageError naming the failed stage. No detections are
//     returned on failure.
func (d *Detector) Detect(ctx context.Context, img gocv.Mat) (*Detections, error) {
	if img.Empty() {
		return nil, &StageError{Stage: StageInference, Err: errors.New("image is empty")}
	}

	timings := make(map[Stage]time.Duration, 3)

	stop := d.timer.StartOperation(string(StageInference))
	outputs, err := d.engine.Infer(ctx, img)
	timings[StageInference] = stop()
	if err != nil {
		return nil, &StageError{Stage: StageInference, Err: err}
	}

	return d.process(outputs, img.Cols(), img.Rows(), timings)
}

// Process decodes and suppresses raw engine outputs for an image of the given
// size, without running inference.
//
// Arguments:
//   - outputs: Raw output tensors.
//   - width: Original image width in pixels.
//   - height: Original image height in pixels.
//
// Returns:
//   - *Detections: The surviving detections.
//   - error: A *StageError naming the failed stage.
func (d *Detector) Process(outputs []*tensor.Dense, width, height int) (*Detections, error) {
	return d.process(outputs, width, height, make(map[Stage]time.Duration, 2))
}

func (d *Detector) process(outputs []*tensor.Dense, width, height int, timings map[Stage]time.Duration) (*Detections, error) {
	stop := d.timer.StartOperation(string(StageDecode))
	candidates, err := d.model.Decode(model.DecodeArgs{
		Outputs:             outputs,
		Width:               width,
		Height:              height,
		ConfidenceThreshold: d.config.ConfidenceThreshold,
		NumClasses:          d.catalog.Len(),
	})
	timings[StageDecode] = stop()
	if err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}

	nms := d.config.NMS()
	if err := nms.Validate(); err != nil {
		return nil, &StageError{Stage: StageSuppress, Err: err}
	}

	stop = d.timer.StartOperation(string(StageSuppress))
	kept := postprocess.Apply(candidates, nms)
	timings[StageSuppress] = stop()

	return &Detections{
		Candidates: d.filter(kept),
		Width:      width,
		Height:     height,
		RawCount:   len(candidates),
		Timings:    timings,
	}, nil
}

// filter keeps only relevant classes. It runs after suppression: an
// irrelevant box still suppresses the boxes it overlaps.
func (d *Detector) filter(candidates []postprocess.Candidate) []postprocess.Candidate {
	if d.relevant == nil {
		return candidates
	}

	out := candidates[:0]
	for _, c := range candidates {
		if d.relevant[c.ClassID] {
			out = append(out, c)
		}
	}
	return out
}
