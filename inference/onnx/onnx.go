// Package onnx - ONNX Runtime backed inference engine.
package onnx

import (
	"context"
	"image"
	"log"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/argusml/go-detect/inference"
)

// Config for the ONNX Runtime engine.
type Config struct {
	// ModelPath is the path to the .onnx model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LibraryPath overrides the ONNX Runtime shared library location. Empty
	// selects the platform default.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// TerminalLayerType declares the output schema of the graph. ONNX graphs
	// do not carry OpenCV layer type strings, so the schema is part of the
	// model configuration. Defaults to "Region" (YOLO style).
	TerminalLayerType string `json:"terminal_layer_type" yaml:"terminal_layer_type"`
	// Params controls input blob preparation.
	Params inference.InputParams `json:"params" yaml:"params"`
	// IntraOpThreads and InterOpThreads bound onnxruntime parallelism.
	// Zero uses the runtime defaults.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// Engine runs a detection network through ONNX Runtime. It implements
// inference.Engine.
type Engine struct {
	session      *ort.DynamicAdvancedSession
	inputNames   []string
	outputNames  []string
	terminalType string
	params       inference.InputParams
	mu           sync.Mutex
}

var initOnce sync.Once

// New creates an ONNX Runtime engine for the given model.
//
// Arguments:
//   - config: Model location, output schema declaration and input
//     normalization parameters.
//
// Returns:
//   - *Engine: The initialized engine.
//   - error: An error if the model or the runtime library cannot be loaded.
func New(config Config) (*Engine, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, errors.Errorf("model file not found: %s", config.ModelPath)
	}

	libPath := config.LibraryPath
	if libPath == "" {
		libPath = sharedLibPath()
	}

	var initErr error
	initOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, errors.Wrap(initErr, "initializing ONNX Runtime environment")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model metadata from %s", config.ModelPath)
	}

	inputNames := make([]string, len(inputs))
	for i, in := range inputs {
		inputNames[i] = in.Name
	}
	outputNames := make([]string, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}
	defer options.Destroy()

	if config.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
			return nil, errors.Wrap(err, "setting intra-op threads")
		}
	}
	if config.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(config.InterOpThreads); err != nil {
			return nil, errors.Wrap(err, "setting inter-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, errors.Wrap(err, "setting graph optimization level")
	}

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, errors.Wrapf(err, "creating session for %s", config.ModelPath)
	}

	terminalType := config.TerminalLayerType
	if terminalType == "" {
		terminalType = "Region"
	}

	log.Printf("✅ ONNX engine initialized: %s", config.ModelPath)
	log.Printf("📋 Inputs: %v, outputs: %v", inputNames, outputNames)

	return &Engine{
		session:      session,
		inputNames:   inputNames,
		outputNames:  outputNames,
		terminalType: terminalType,
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

	blob, err := inference.PrepareInput(frame, e.params)
	if err != nil {
		return nil, err
	}

	inputs := make([]ort.Value, 0, len(e.inputNames))
	for _, name := range e.inputNames {
		var backing []float32
		var shape ort.Shape
		if name == inference.ImageInfoInput {
			info := inference.ImageInfoTensor(e.params.Width, e.params.Height)
			backing = info.Data().([]float32)
			shape = ort.NewShape(1, 3)
		} else {
			backing = blob.Data().([]float32)
			shape = ort.NewShape(1, 3, int64(e.params.Height), int64(e.params.Width))
		}
		in, err := ort.NewTensor(shape, backing)
		if err != nil {
			destroyAll(inputs)
			return nil, errors.Wrapf(err, "creating input tensor %q", name)
		}
		inputs = append(inputs, in)
	}
	defer destroyAll(inputs)

	outputs := make([]ort.Value, len(e.outputNames))
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, errors.Wrap(err, "running inference")
	}
	defer destroyAll(outputs)

	denses := make([]*tensor.Dense, 0, len(outputs))
	for i, out := range outputs {
		t, ok := out.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Errorf("output %q is not a float32 tensor", e.outputNames[i])
		}
		dims := t.GetShape()
		shape := make([]int, len(dims))
		for d, v := range dims {
			shape[d] = int(v)
		}
		data := append([]float32(nil), t.GetData()...)
		denses = append(denses, tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)))
	}

	return denses, nil
}

// TerminalLayerType returns the configured output schema declaration.
func (e *Engine) TerminalLayerType() string { return e.terminalType }

// HasInput reports whether the graph declares an input with the given name.
func (e *Engine) HasInput(name string) bool {
	for _, n := range e.inputNames {
		if n == name {
			return true
		}
	}
	return false
}

// InputSize returns the configured network input dimensions.
func (e *Engine) InputSize() (width, height int) {
	return e.params.Width, e.params.Height
}

// Close releases the session.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return errors.Wrap(err, "destroying session")
		}
		e.session = nil
		log.Printf("🔒 ONNX engine closed")
	}
	return nil
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

// sharedLibPath returns the platform default ONNX Runtime shared library
// location. The ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable
// overrides it.
func sharedLibPath() string {
	if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
		return path
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
