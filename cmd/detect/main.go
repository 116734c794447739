// Command detect runs an object detection model over an image or a directory
// of frames and prints the labeled boxes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/argusml/go-detect/detector"
	"github.com/argusml/go-detect/images"
	"github.com/argusml/go-detect/inference"
	"github.com/argusml/go-detect/inference/onnx"
	"github.com/argusml/go-detect/inference/opencv"
	"github.com/argusml/go-detect/models"
	"github.com/argusml/go-detect/profiler"
	"github.com/argusml/go-detect/util"
)

func main() {
	var (
		modelPath = flag.String("model", "", "path to the model file")
		backend   = flag.String("backend", "opencv", "inference backend: opencv or onnx")
		input     = flag.String("input", "", "image file or directory of frames")
		labels    = flag.String("labels", "coco", "label set: coco, yolo or voc")
		width     = flag.Int("width", 416, "network input width")
		height    = flag.Int("height", 416, "network input height")
		conf      = flag.Float64("conf", 0.5, "confidence threshold")
		nms       = flag.Float64("nms", 0.4, "IoU threshold for suppression, 0 disables")
		across    = flag.Bool("across-classes", false, "suppress overlaps across classes")
		warmup    = flag.Int("warmup", 1, "warm-up runs before timing")
		report    = flag.Duration("report", 5*time.Second, "throughput report interval, 0 disables")
	)
	flag.Parse()

	if *modelPath == "" || *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	params := inference.DefaultInputParams(*width, *height)

	var (
		engine inference.Engine
		err    error
	)
	switch *backend {
	case "opencv":
		engine, err = opencv.New(opencv.Config{ModelPath: *modelPath, Params: params})
	case "onnx":
		engine, err = onnx.New(onnx.Config{ModelPath: *modelPath, Params: params})
	default:
		log.Fatalf("unknown backend %q", *backend)
	}
	if err != nil {
		log.Fatalf("initializing %s engine: %v", *backend, err)
	}

	classes, err := classSet(*labels)
	if err != nil {
		log.Fatal(err)
	}

	model, err := detector.NewModel(engine, detector.Options{
		Classes:          classes,
		NMSAcrossClasses: *across,
	})
	if err != nil {
		log.Fatalf("building pipeline: %v", err)
	}
	defer model.Close()

	ctx := context.Background()
	if *warmup > 0 {
		if err := model.WarmUp(ctx, *warmup); err != nil {
			log.Fatalf("warm-up: %v", err)
		}
	}

	frames, err := loadInput(*input)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("🎞  %d frame(s) loaded from %s", len(frames), *input)

	prof := profiler.New(*report)
	for _, frame := range frames {
		img, err := images.DecodeFrame(frame.Data, frame.Format)
		if err != nil {
			log.Fatalf("decoding %s: %v", frame.Path, err)
		}

		done := prof.Track("detect")
		results, err := model.Detect(ctx, img, float32(*conf), float32(*nms))
		done()
		prof.FrameDone()
		if err != nil {
			log.Fatalf("detecting on %s: %v", frame.Path, err)
		}

		fmt.Printf("%s: %d detection(s)\n", frame.Path, len(results))
		for _, r := range results {
			fmt.Printf("  %-16s %.3f  [%d %d %dx%d]\n",
				label(r.Label, r.Class), r.Score, r.Box.Left, r.Box.Top, r.Box.Width, r.Box.Height)
		}
	}

	total, reports := prof.Snapshot()
	for _, r := range reports {
		log.Printf("⏱  %s over %d frame(s): avg %s, p95 %s", r.Name, total, r.Avg, r.P95)
	}
}

func classSet(name string) (*models.ClassSet, error) {
	switch name {
	case "coco":
		return models.COCOClasses(), nil
	case "yolo":
		return models.YOLOClasses(), nil
	case "voc":
		return models.VOCClasses(), nil
	default:
		return nil, fmt.Errorf("unknown label set %q", name)
	}
}

func label(name string, class int) string {
	if name == "" {
		return fmt.Sprintf("class-%d", class)
	}
	return name
}

func loadInput(path string) ([]util.FrameFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return util.LoadFrameDirectory(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format, err := images.DetectFormat(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []util.FrameFile{{Path: path, Data: data, Format: format}}, nil
}
