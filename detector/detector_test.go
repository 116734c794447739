package detector

import (
	"context"
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/argusml/go-detect/images"
	"github.com/argusml/go-detect/inference"
	"github.com/argusml/go-detect/models"
	"github.com/argusml/go-detect/models/postprocess"
)

// fakeEngine returns canned tensors, standing in for a real runtime.
type fakeEngine struct {
	outs      []*tensor.Dense
	err       error
	layerType string
	inputs    map[string]bool
	width     int
	height    int
	runCount  int
	closed    bool
}

func (f *fakeEngine) Run(_ context.Context, _ image.Image) ([]*tensor.Dense, error) {
	f.runCount++
	if f.err != nil {
		return nil, f.err
	}
	return f.outs, nil
}

func (f *fakeEngine) TerminalLayerType() string { return f.layerType }

func (f *fakeEngine) HasInput(name string) bool { return f.inputs[name] }

func (f *fakeEngine) InputSize() (int, int) { return f.width, f.height }

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func gridEngine(rows ...[]float32) *fakeEngine {
	cols := len(rows[0])
	backing := make([]float32, 0, len(rows)*cols)
	for _, row := range rows {
		backing = append(backing, row...)
	}
	return &fakeEngine{
		outs:      []*tensor.Dense{tensor.New(tensor.WithShape(len(rows), cols), tensor.WithBacking(backing))},
		layerType: "Region",
		width:     416,
		height:    416,
	}
}

func fixedEngine(records ...[]float32) *fakeEngine {
	backing := make([]float32, 0, len(records)*7)
	for _, rec := range records {
		backing = append(backing, rec...)
	}
	return &fakeEngine{
		outs:      []*tensor.Dense{tensor.New(tensor.WithShape(1, 1, len(records), 7), tensor.WithBacking(backing))},
		layerType: "DetectionOutput",
		width:     300,
		height:    300,
	}
}

func testClasses() *models.ClassSet {
	return &models.ClassSet{Style: models.StyleCOCO, Names: []string{"person", "bicycle", "car"}}
}

func TestDetect_GridEndToEnd(t *testing.T) {
	// One 100x100 frame, one grid row: center (0.5, 0.5), size (0.2, 0.2),
	// class scores [0.1, 0.9].
	engine := gridEngine([]float32{0.5, 0.5, 0.2, 0.2, 0.1, 0.9})
	model, err := NewModel(engine, Options{Classes: testClasses()})
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	results, err := model.Detect(context.Background(), frame, 0.5, 0.4)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 1, results[0].Class)
	assert.Equal(t, "bicycle", results[0].Label)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.Equal(t, images.Rect{Left: 40, Top: 40, Width: 20, Height: 20}, results[0].Box)
}

func TestDetect_GridSuppressesOverlaps(t *testing.T) {
	// Two near-identical boxes of the same class; the weaker one must go.
	engine := gridEngine(
		[]float32{0.5, 0.5, 0.2, 0.2, 0.0, 0.9},
		[]float32{0.5, 0.5, 0.2, 0.2, 0.0, 0.7},
	)
	model, err := NewModel(engine, Options{Classes: testClasses()})
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	results, err := model.Detect(context.Background(), frame, 0.5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
}

func TestDetect_AcrossClassesPolicy(t *testing.T) {
	// Identical boxes, different classes. Per-class keeps both, across-class
	// keeps the stronger one.
	engine := gridEngine(
		[]float32{0.5, 0.5, 0.2, 0.2, 0.9, 0.0},
		[]float32{0.5, 0.5, 0.2, 0.2, 0.0, 0.85},
	)
	model, err := NewModel(engine, Options{Classes: testClasses()})
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))

	results, err := model.Detect(context.Background(), frame, 0.5, 0.5)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	model.SetNMSAcrossClasses(true)
	require.True(t, model.NMSAcrossClasses())

	results, err = model.Detect(context.Background(), frame, 0.5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Class)
}

func TestDetect_FixedSchemaSkipsSuppression(t *testing.T) {
	// The fixed schema comes out of graphs that suppress internally, so two
	// overlapping records both survive regardless of the IoU threshold.
	engine := fixedEngine(
		[]float32{0, 1, 0.9, 10, 10, 110, 110},
		[]float32{0, 1, 0.8, 12, 12, 112, 112},
	)
	model, err := NewModel(engine, Options{Classes: testClasses()})
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, 300, 300))
	results, err := model.Detect(context.Background(), frame, 0.5, 0.5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "bicycle", results[0].Label)
}

func TestDetect_ImageInfoUsesInputSize(t *testing.T) {
	// Graphs with an image-info input emit boxes scaled to the configured
	// input size, so a normalized record resolves against 300x300 even though
	// the frame is 640x480.
	engine := fixedEngine([]float32{0, 2, 0.9, 0.1, 0.1, 0.5, 0.5})
	engine.inputs = map[string]bool{inference.ImageInfoInput: true}

	model, err := NewModel(engine, Options{Classes: testClasses()})
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))
	results, err := model.Detect(context.Background(), frame, 0.5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, images.Rect{Left: 30, Top: 30, Width: 121, Height: 121}, results[0].Box)
	assert.Equal(t, "car", results[0].Label)
}

func TestNewModel_UnknownLayerType(t *testing.T) {
	engine := &fakeEngine{layerType: "Softmax"}

	_, err := NewModel(engine, Options{})
	require.ErrorIs(t, err, postprocess.ErrUnsupportedFormat)
}

func TestNewModel_ImageInfoRequiresInputSize(t *testing.T) {
	engine := &fakeEngine{
		layerType: "DetectionOutput",
		inputs:    map[string]bool{inference.ImageInfoInput: true},
	}

	_, err := NewModel(engine, Options{})
	require.ErrorIs(t, err, inference.ErrUnconfiguredInput)
}

func TestDetect_EngineErrorPropagates(t *testing.T) {
	engine := gridEngine([]float32{0.5, 0.5, 0.2, 0.2, 0.9, 0.0})
	engine.err = errors.New("runtime exploded")

	model, err := NewModel(engine, Options{})
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	results, err := model.Detect(context.Background(), frame, 0.5, 0.5)
	require.Error(t, err)
	assert.Nil(t, results, "no partial results on failure")
}

func TestDetect_MalformedOutputPropagates(t *testing.T) {
	engine := &fakeEngine{
		outs:      []*tensor.Dense{tensor.New(tensor.WithShape(8), tensor.WithBacking(make([]float32, 8)))},
		layerType: "DetectionOutput",
		width:     300,
		height:    300,
	}

	model, err := NewModel(engine, Options{})
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, 300, 300))
	results, err := model.Detect(context.Background(), frame, 0.5, 0)
	require.ErrorIs(t, err, postprocess.ErrMalformedOutput)
	assert.Nil(t, results)
}

func TestDetectROI_OffsetsBoxes(t *testing.T) {
	engine := fixedEngine([]float32{0, 0, 0.9, 10, 10, 30, 40})
	model, err := NewModel(engine, Options{Classes: testClasses()})
	require.NoError(t, err)

	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))
	roi := images.Rect{Left: 100, Top: 50, Width: 200, Height: 200}

	results, err := model.DetectROI(context.Background(), frame, roi, 0.5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, images.Rect{Left: 110, Top: 60, Width: 21, Height: 31}, results[0].Box)
}

func TestWarmUp(t *testing.T) {
	engine := gridEngine([]float32{0.5, 0.5, 0.2, 0.2, 0.9, 0.0})
	model, err := NewModel(engine, Options{})
	require.NoError(t, err)

	before := engine.runCount
	require.NoError(t, model.WarmUp(context.Background(), 3))
	assert.Equal(t, before+3, engine.runCount)
}

func TestWarmUp_UnconfiguredInput(t *testing.T) {
	engine := &fakeEngine{layerType: "Region"}
	model, err := NewModel(engine, Options{})
	require.NoError(t, err)

	require.ErrorIs(t, model.WarmUp(context.Background(), 1), inference.ErrUnconfiguredInput)
}

func TestClose_ReleasesEngine(t *testing.T) {
	engine := gridEngine([]float32{0.5, 0.5, 0.2, 0.2, 0.9, 0.0})
	model, err := NewModel(engine, Options{})
	require.NoError(t, err)

	require.NoError(t, model.Close())
	assert.True(t, engine.closed)
}
