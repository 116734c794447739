// Package opencv - OpenCV DNN backed inference engine.
package opencv

import (
	"context"
	"image"
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/argusml/go-detect/inference"
)

// Config for the OpenCV DNN engine.
type Config struct {
	// ModelPath is the path to the model weights (.onnx, .pb, .caffemodel, ...).
	ModelPath string `json:"model_path" yaml:"model_path"`
	// ConfigPath is the optional network description (.pbtxt, .prototxt, .cfg).
	ConfigPath string `json:"config_path" yaml:"config_path"`
	// Params controls input blob preparation.
	Params inference.InputParams `json:"params" yaml:"params"`
}

// Engine runs a detection network through OpenCV's DNN module. It implements
// inference.Engine.
//
// Unlike the ONNX Runtime engine, the terminal layer type and the presence of
// an image-info input are read from the loaded graph itself.
type Engine struct {
	net          gocv.Net
	outputNames  []string
	terminalType string
	hasImageInfo bool
	params       inference.InputParams
	mu           sync.Mutex
}

// New loads a network with gocv.ReadNet and inspects its layer topology.
//
// Arguments:
//   - config: Model location and input normalization parameters.
//
// Returns:
//   - *Engine: The initialized engine.
//   - error: An error if the model cannot be loaded or exposes no layers.
func New(config Config) (*Engine, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, errors.Errorf("model file not found: %s", config.ModelPath)
	}

	net := gocv.ReadNet(config.ModelPath, config.ConfigPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to load model from %s", config.ModelPath)
	}
	if net.GetLayerNames() == nil {
		net.Close()
		return nil, errors.Errorf("model has no layers: %s", config.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	// The unconnected output layers are the network's terminal layers. Their
	// declared type selects the output decoder downstream.
	ids := net.GetUnconnectedOutLayers()
	if len(ids) == 0 {
		net.Close()
		return nil, errors.Errorf("model has no output layers: %s", config.ModelPath)
	}

	outputNames := make([]string, 0, len(ids))
	terminalType := ""
	for _, id := range ids {
		layer := net.GetLayer(id)
		outputNames = append(outputNames, layer.GetName())
		terminalType = layer.GetType()
		layer.Close()
	}

	// Layer 0 is the input layer; its outputs are the network's inputs.
	inputLayer := net.GetLayer(0)
	hasImageInfo := inputLayer.OutputNameToIndex(inference.ImageInfoInput) != -1
	inputLayer.Close()

	log.Printf("✅ OpenCV engine initialized: %s", config.ModelPath)
	log.Printf("📋 Output layers: %v (type %s)", outputNames, terminalType)

	return &Engine{
		net:          net,
		outputNames:  outputNames,
		terminalType: terminalType,
		hasImageInfo: hasImageInfo,
		params:       config.Params,
	}, nil
}

// Run executes the network on one frame.
func (e *Engine) Run(ctx context.Context, frame image.Image) ([]*tensor.Dense, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	w, h := e.params.Width, e.params.Height
	if w <= 0 || h <= 0 {
		return nil, errors.Wrap(inference.ErrUnconfiguredInput, "run")
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, errors.Wrap(err, "converting frame to Mat")
	}
	defer mat.Close()

	mean := gocv.NewScalar(
		float64(e.params.Mean[0]),
		float64(e.params.Mean[1]),
		float64(e.params.Mean[2]),
		0,
	)
	blob := gocv.BlobFromImage(mat, float64(e.params.Scale), image.Pt(w, h), mean, e.params.SwapRB, e.params.Crop)
	defer blob.Close()

	e.net.SetInput(blob, "")

	if e.hasImageInfo {
		values := inference.ImageInfoTensor(w, h).Data().([]float32)
		info := gocv.NewMatWithSize(1, 3, gocv.MatTypeCV32F)
		for i, v := range values {
			info.SetFloatAt(0, i, v)
		}
		e.net.SetInput(info, inference.ImageInfoInput)
		defer info.Close()
	}

	outputs := e.net.ForwardLayers(e.outputNames)
	defer func() {
		for _, out := range outputs {
			out.Close()
		}
	}()

	denses := make([]*tensor.Dense, 0, len(outputs))
	for i, out := range outputs {
		data, err := out.DataPtrFloat32()
		if err != nil {
			return nil, errors.Wrapf(err, "reading output %q", e.outputNames[i])
		}
		shape := append([]int(nil), out.Size()...)
		if len(shape) == 0 {
			shape = []int{len(data)}
		}
		backing := append([]float32(nil), data...)
		denses = append(denses, tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)))
	}

	return denses, nil
}

// TerminalLayerType returns the declared type of the graph's terminal layer,
// e.g. "DetectionOutput" or "Region".
func (e *Engine) TerminalLayerType() string { return e.terminalType }

// HasInput reports whether the graph declares an input with the given name.
func (e *Engine) HasInput(name string) bool {
	if name == inference.ImageInfoInput {
		return e.hasImageInfo
	}
	inputLayer := e.net.GetLayer(0)
	defer inputLayer.Close()
	return inputLayer.OutputNameToIndex(name) != -1
}

// InputSize returns the configured network input dimensions.
func (e *Engine) InputSize() (width, height int) {
	return e.params.Width, e.params.Height
}

// Close releases the network.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.net.Close(); err != nil {
		return errors.Wrap(err, "closing network")
	}
	log.Printf("🔒 OpenCV engine closed")
	return nil
}
