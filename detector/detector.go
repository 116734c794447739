// Package detector - The end-to-end detection pipeline: frame in, labeled
// boxes out.
package detector

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/pkg/errors"

	"github.com/argusml/go-detect/images"
	"github.com/argusml/go-detect/inference"
	"github.com/argusml/go-detect/models"
	"github.com/argusml/go-detect/models/postprocess"
)

// Options configures a Model beyond its engine.
type Options struct {
	// Classes attaches human-readable labels to decoded class ids. Nil leaves
	// labels blank.
	Classes *models.ClassSet
	// NMSAcrossClasses applies suppression over the whole candidate set
	// instead of per class.
	NMSAcrossClasses bool
}

// Model wires an inference engine to the output decoder and suppression
// stage. The decoder is selected once at construction from the engine's
// terminal layer type.
type Model struct {
	engine        inference.Engine
	format        postprocess.OutputFormat
	usesImageInfo bool
	classes       *models.ClassSet

	mu            sync.Mutex
	acrossClasses bool
}

// NewModel builds a detection pipeline on top of an engine.
//
// Arguments:
//   - engine: The inference runtime to execute frames on.
//   - options: Label set and suppression policy.
//
// Returns:
//   - *Model: The pipeline.
//   - error: postprocess.ErrUnsupportedFormat when the engine's terminal
//     layer type names no known decoder, inference.ErrUnconfiguredInput when
//     the graph carries an image-info input but the input size was never
//     established.
func NewModel(engine inference.Engine, options Options) (*Model, error) {
	format, err := postprocess.ParseOutputFormat(engine.TerminalLayerType())
	if err != nil {
		return nil, err
	}

	usesImageInfo := engine.HasInput(inference.ImageInfoInput)
	if usesImageInfo {
		w, h := engine.InputSize()
		if w <= 0 || h <= 0 {
			return nil, errors.Wrap(inference.ErrUnconfiguredInput, "image-info graphs resolve boxes against the input size")
		}
	}

	return &Model{
		engine:        engine,
		format:        format,
		usesImageInfo: usesImageInfo,
		classes:       options.Classes,
		acrossClasses: options.NMSAcrossClasses,
	}, nil
}

// Detect runs the network on a frame and returns decoded, suppressed and
// labeled detections.
//
// Arguments:
//   - ctx: Cancels the underlying inference call.
//   - frame: The frame to analyze.
//   - confThreshold: Minimum confidence for a candidate to survive decoding.
//   - nmsThreshold: IoU above which overlapping boxes are suppressed. Zero
//     disables suppression.
//
// Returns:
//   - []postprocess.Result: Detections with boxes in frame coordinates.
//   - error: The first error from inference or decoding; no partial results.
func (m *Model) Detect(ctx context.Context, frame image.Image, confThreshold, nmsThreshold float32) ([]postprocess.Result, error) {
	outs, err := m.engine.Run(ctx, frame)
	if err != nil {
		return nil, err
	}

	// Graphs with an image-info input rescale their detections to the
	// configured input size internally, so coordinates resolve against that
	// size rather than the frame.
	frameWidth := frame.Bounds().Dx()
	frameHeight := frame.Bounds().Dy()
	if m.usesImageInfo {
		frameWidth, frameHeight = m.engine.InputSize()
	}

	var results []postprocess.Result
	switch m.format {
	case postprocess.FormatFixedSchema:
		results, err = postprocess.DecodeFixedSchema(outs, confThreshold, frameWidth, frameHeight)
	case postprocess.FormatGridAnchor:
		results, err = postprocess.DecodeGridAnchor(outs, confThreshold, frameWidth, frameHeight)
		if err == nil {
			results = postprocess.Suppress(results, confThreshold, nmsThreshold, m.policy())
		}
	default:
		err = errors.Wrapf(postprocess.ErrUnsupportedFormat, "format %v", m.format)
	}
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Label = m.classes.Name(results[i].Class)
	}
	return results, nil
}

// DetectROI runs detection on a sub-region of the frame and maps the
// resulting boxes back into full-frame coordinates.
func (m *Model) DetectROI(ctx context.Context, frame image.Image, roi images.Rect, confThreshold, nmsThreshold float32) ([]postprocess.Result, error) {
	bounds := frame.Bounds()
	region := roi.Clamp(bounds.Dx(), bounds.Dy())

	view := &regionView{
		src:    frame,
		offset: image.Pt(bounds.Min.X+region.Left, bounds.Min.Y+region.Top),
		w:      region.Width,
		h:      region.Height,
	}

	results, err := m.Detect(ctx, view, confThreshold, nmsThreshold)
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Box = results[i].Box.Add(region.Left, region.Top)
	}
	return results, nil
}

// WarmUp runs the engine on blank frames to pull model weights and runtime
// scratch memory into a steady state before real traffic.
func (m *Model) WarmUp(ctx context.Context, runs int) error {
	w, h := m.engine.InputSize()
	if w <= 0 || h <= 0 {
		return errors.Wrap(inference.ErrUnconfiguredInput, "warm up")
	}

	blank := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < runs; i++ {
		if _, err := m.engine.Run(ctx, blank); err != nil {
			return errors.Wrapf(err, "warm-up run %d", i+1)
		}
	}
	return nil
}

// SetNMSAcrossClasses switches between per-class and across-class
// suppression.
func (m *Model) SetNMSAcrossClasses(across bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acrossClasses = across
}

// NMSAcrossClasses reports the active suppression policy.
func (m *Model) NMSAcrossClasses() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acrossClasses
}

// Close releases the underlying engine.
func (m *Model) Close() error {
	return m.engine.Close()
}

func (m *Model) policy() postprocess.SuppressionPolicy {
	if m.NMSAcrossClasses() {
		return postprocess.AcrossClasses
	}
	return postprocess.PerClass
}

// regionView is a zero-copy window over a frame.
type regionView struct {
	src    image.Image
	offset image.Point
	w, h   int
}

func (r *regionView) ColorModel() color.Model { return r.src.ColorModel() }

func (r *regionView) Bounds() image.Rectangle { return image.Rect(0, 0, r.w, r.h) }

func (r *regionView) At(x, y int) color.Color {
	return r.src.At(r.offset.X+x, r.offset.Y+y)
}
