// Package inference - The contract between the detection pipeline and the
// inference runtime, plus input blob preparation.
package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ImageInfoInput is the conventional name of the secondary input carrying the
// image dimensions for Faster-RCNN / R-FCN style graphs. A graph exposing
// this input rescales detections to its configured input size internally, so
// decoded coordinates must be resolved against that size rather than the true
// frame size.
const ImageInfoInput = "im_info"

// imageInfoScale is the scale factor fed alongside the dimensions on the
// image-info input.
const imageInfoScale = 1.6

// ErrUnconfiguredInput reports that the network input size was not
// established before a call. Fatal: no partial output is produced.
var ErrUnconfiguredInput = errors.New("input size not configured")

// Engine runs a trained detection network on one frame and exposes the graph
// metadata the postprocessing pipeline needs.
//
// Engines own their runtime resources and are not required to be safe for
// concurrent use; callers that process frames concurrently must either
// serialize access or give each goroutine its own engine.
type Engine interface {
	// Run executes the network on the frame and returns its raw output
	// tensors in graph output order.
	Run(ctx context.Context, frame image.Image) ([]*tensor.Dense, error)

	// TerminalLayerType returns the declared type string of the graph's
	// terminal layer, which selects the output decoder.
	TerminalLayerType() string

	// HasInput reports whether the graph declares an input with the given
	// name.
	HasInput(name string) bool

	// InputSize returns the configured network input dimensions. Zero values
	// mean the size was never established.
	InputSize() (width, height int)

	// Close releases the engine's runtime resources.
	Close() error
}

// ImageInfoTensor builds the [1, 3] tensor fed to the image-info input:
// height, width and the conventional scale factor.
func ImageInfoTensor(width, height int) *tensor.Dense {
	return tensor.New(
		tensor.WithShape(1, 3),
		tensor.WithBacking([]float32{float32(height), float32(width), imageInfoScale}),
	)
}
