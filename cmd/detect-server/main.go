// Command detect-server serves YOLO object detection over HTTP with one
// model loaded for all requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	detecthistory "github.com/nvr-ai/go-detect/history"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/server"
)

var (
	addr      = flag.String("addr", ":8080", "Listen address")
	weights   = flag.String("weights", "yolov4.weights", "Path to .weights or .onnx model file")
	netConfig = flag.String("config", "yolov4.cfg", "Path to darknet .cfg file")
	classes   = flag.String("classes", "", "Path to class names file (default: COCO)")
	settings  = flag.String("settings", "", "YAML settings file")
	format    = flag.String("format", "", "Model format: darknet or onnx (default: from -weights extension)")
	modelName = flag.String("model", string(model.ModelNameYOLOv4), fmt.Sprintf("Model name %v", models.Names()))
	staticDir = flag.String("static", "", "Directory served at /")
	maxUpload = flag.Int64("max-upload", server.DefaultMaxUploadBytes, "Maximum upload size in bytes")
	history   = flag.String("history", "", "SQLite file recording served detections (disabled when empty)")
	debug     = flag.Bool("debug", false, "Run gin in debug mode")
)

func main() {
	flag.Parse()

	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := detectors.DefaultConfig()
	if *settings != "" {
		var err error
		if cfg, err = detectors.LoadConfig(*settings); err != nil {
			log.Fatal(err)
		}
	}

	timer := profiler.NewStageTimer(0)
	detector, engine, err := detectors.Load(detectors.LoadArgs{
		Model:     model.Name(*modelName),
		Format:    model.Format(*format),
		Weights:   *weights,
		NetConfig: *netConfig,
		Classes:   *classes,
		Config:    cfg,
		Options:   []detectors.Option{detectors.WithStageTimer(timer)},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	opts := server.DefaultOptions()
	opts.StaticDir = *staticDir
	opts.MaxUploadBytes = *maxUpload
	if *history != "" {
		store, err := detecthistory.Open(*history)
		if err != nil {
			log.Fatal(err)
		}
		defer store.Close()
		opts.History = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(detector, timer, opts).Run(ctx, *addr); err != nil {
		log.Print(err)
	}
	timer.Report(os.Stdout)
}
