package detectors

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/internal/monitoring"
)

// LoadArgs names the files a detector is built from.
type LoadArgs struct {
	// Model is the YOLO generation. Empty selects yolov4.
	Model model.Name
	// Format forces the engine. Empty infers it from Weights.
	Format model.Format
	// Weights is the .weights or .onnx file.
	Weights string
	// NetConfig is the darknet .cfg file.
	NetConfig string
	// Classes is the class names file. Empty selects the 80 COCO classes.
	Classes string
	// Config holds thresholds and the execution provider.
	Config Config
	// Options are applied to the detector.
	Options []Option
}

// Load reads the class catalog, loads the engine once and assembles a
// detector around them.
//
// Arguments:
//   - args: The files and settings to load.
//
// Returns:
//   - *Detector: The detector.
//   - inference.Engine: The loaded engine. The caller must Close it.
//   - error: A *model.CatalogReadError or *model.ModelLoadError when the
//     files cannot be loaded.
func Load(args LoadArgs) (*Detector, inference.Engine, error) {
	if err := args.Config.Validate(); err != nil {
		return nil, nil, err
	}

	catalog := models.COCOCatalog()
	if args.Classes != "" {
		var err error
		catalog, err = models.LoadCatalog(args.Classes)
		if err != nil {
			return nil, nil, err
		}
	}

	name := args.Model
	if name == "" {
		name = model.ModelNameYOLOv4
	}
	m, err := models.NewModel(model.NewModelArgs{Name: name, InputShape: args.Config.InputShape})
	if err != nil {
		return nil, nil, err
	}

	engine, err := inference.NewEngineBuilder().
		WithModel(model.NewModelArgs{Name: name, InputShape: args.Config.InputShape}).
		WithFiles(args.Weights, args.NetConfig).
		WithFormat(args.Format).
		WithClasses(catalog.Len()).
		WithTensors(args.Config.InputName, args.Config.OutputName, args.Config.OutputShape).
		WithProvider(args.Config.Provider).
		Build()
	if err != nil {
		return nil, nil, err
	}

	d, err := NewDetector(engine, catalog, m, args.Config, args.Options...)
	if err != nil {
		if cerr := engine.Close(); cerr != nil {
			monitoring.Logf("failed to close engine: %v", cerr)
		}
		return nil, nil, errors.Wrap(err, "failed to create detector")
	}

	monitoring.Logf("loaded %s detector: weights=%s classes=%d", name, args.Weights, catalog.Len())
	return d, engine, nil
}
