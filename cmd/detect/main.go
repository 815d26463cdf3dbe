// Command detect runs YOLO object detection over an image or a directory of
// images and writes annotated copies.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/render"
	"github.com/nvr-ai/go-detect/util"
)

const (
	// DefaultOutputDir is where annotated images are written.
	DefaultOutputDir = "detections"
	// OutputSuffix is appended to annotated file names.
	OutputSuffix = "_detected"
)

// cliOptions holds the parsed command line.
type cliOptions struct {
	image      string
	dir        string
	weights    string
	netConfig  string
	classes    string
	output     string
	settings   string
	format     string
	modelName  string
	confidence float64
	nms        float64
	classAware bool
	maxDets    int
}

func main() {
	var opts cliOptions
	flag.StringVar(&opts.image, "image", "", "Path to image file (.jpg, .jpeg, .png, .bmp)")
	flag.StringVar(&opts.dir, "dir", "", "Directory of images to process")
	flag.StringVar(&opts.weights, "weights", "yolov4.weights", "Path to .weights or .onnx model file")
	flag.StringVar(&opts.netConfig, "config", "yolov4.cfg", "Path to darknet .cfg file")
	flag.StringVar(&opts.classes, "classes", "", "Path to class names file (default: COCO)")
	flag.StringVar(&opts.output, "output", DefaultOutputDir, "Output directory for annotated images")
	flag.StringVar(&opts.settings, "settings", "", "YAML settings file")
	flag.StringVar(&opts.format, "format", "", "Model format: darknet or onnx (default: from -weights extension)")
	flag.StringVar(&opts.modelName, "model", string(model.ModelNameYOLOv4), fmt.Sprintf("Model name %v", models.Names()))
	flag.Float64Var(&opts.confidence, "confidence", 0.5, "Object detection confidence threshold")
	flag.Float64Var(&opts.nms, "nms", 0.4, "Non-maximum suppression IoU threshold")
	flag.BoolVar(&opts.classAware, "class-aware", false, "Only suppress overlapping boxes of the same class")
	flag.IntVar(&opts.maxDets, "max-detections", 0, "Maximum detections per image (0 = no limit)")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if err := run(opts, set); err != nil {
		log.Fatal(err)
	}
}

func run(opts cliOptions, set map[string]bool) error {
	inputs, err := resolveInputs(opts)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(opts, set)
	if err != nil {
		return err
	}

	timer := profiler.NewStageTimer(0)
	detector, engine, err := detectors.Load(detectors.LoadArgs{
		Model:     model.Name(opts.modelName),
		Format:    model.Format(opts.format),
		Weights:   opts.weights,
		NetConfig: opts.netConfig,
		Classes:   opts.classes,
		Config:    cfg,
		Options:   []detectors.Option{detectors.WithStageTimer(timer)},
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := os.MkdirAll(opts.output, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	fmt.Printf("Model: %s | confidence: %.2f | nms: %.2f | class-aware: %t\n",
		opts.modelName, cfg.ConfidenceThreshold, cfg.NMSThreshold, cfg.ClassAware)

	failed := 0
	for _, path := range inputs {
		if err := processImage(context.Background(), detector, timer, path, opts.output); err != nil {
			log.Printf("%s: %v", path, err)
			failed++
		}
	}

	fmt.Println()
	timer.Report(os.Stdout)

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(inputs))
	}
	return nil
}

// resolveInputs returns the images named by -image or found in -dir.
func resolveInputs(opts cliOptions) ([]string, error) {
	if opts.image != "" && opts.dir != "" {
		return nil, fmt.Errorf("cannot specify both -image and -dir")
	}

	if opts.image != "" {
		info, err := os.Stat(opts.image)
		if err != nil {
			return nil, fmt.Errorf("image validation error: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("image validation error: %s is a directory", opts.image)
		}
		if !util.IsImageFile(opts.image) {
			return nil, fmt.Errorf("image validation error: unsupported extension %q", opts.image)
		}
		return []string{opts.image}, nil
	}

	if opts.dir != "" {
		files, err := util.ListImageFiles(opts.dir)
		if err != nil {
			return nil, fmt.Errorf("directory validation error: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no images found in %s", opts.dir)
		}
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = f.Path
		}
		return paths, nil
	}

	return nil, fmt.Errorf("one of -image or -dir is required")
}

// buildConfig loads -settings when given, then applies the flags that were
// set explicitly on top.
func buildConfig(opts cliOptions, set map[string]bool) (detectors.Config, error) {
	cfg := detectors.DefaultConfig()
	if opts.settings != "" {
		var err error
		cfg, err = detectors.LoadConfig(opts.settings)
		if err != nil {
			return cfg, err
		}
	}

	if opts.settings == "" || set["confidence"] {
		cfg.ConfidenceThreshold = float32(opts.confidence)
	}
	if opts.settings == "" || set["nms"] {
		cfg.NMSThreshold = float32(opts.nms)
	}
	if set["class-aware"] {
		cfg.ClassAware = opts.classAware
	}
	if set["max-detections"] {
		cfg.MaxDetections = opts.maxDets
	}

	return cfg, cfg.Validate()
}

func processImage(ctx context.Context, d *detectors.Detector, timer *profiler.StageTimer, path, outDir string) error {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("failed to read image")
	}
	defer img.Close()

	dets, err := d.Detect(ctx, img)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d detections (%d candidates)\n", path, len(dets.Candidates), dets.RawCount)
	for _, c := range dets.Candidates {
		fmt.Printf("  %s: %.2f [x=%.0f y=%.0f w=%.0f h=%.0f]\n",
			d.Catalog().Name(c.ClassID), c.Confidence, c.Box.X, c.Box.Y, c.Box.Width, c.Box.Height)
	}

	stop := timer.StartOperation("annotate")
	err = render.Annotate(&img, dets.Candidates, d.Catalog(), render.DefaultPalette(), render.DefaultStyle())
	stop()
	if err != nil {
		return err
	}

	out := util.OutputPath(outDir, path, OutputSuffix)
	if ok := gocv.IMWrite(out, img); !ok {
		return fmt.Errorf("failed to write %s", out)
	}
	return nil
}
