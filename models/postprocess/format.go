package postprocess

import "github.com/pkg/errors"

// Decode and suppression failures. All of them are fatal for the current
// call: the caller receives either a complete detection list or an error,
// never a truncated list.
var (
	// ErrUnsupportedFormat reports a terminal layer type that is neither of
	// the two known output schemas.
	ErrUnsupportedFormat = errors.New("unsupported output layer type")
	// ErrMalformedOutput reports an output tensor whose shape is inconsistent
	// with the expected per-record width.
	ErrMalformedOutput = errors.New("malformed output tensor")
)

// OutputFormat is the decoded-output schema of a detection graph, resolved
// once from the graph's terminal layer type.
type OutputFormat int

const (
	// FormatFixedSchema is the fixed 7-tuple schema produced by
	// "DetectionOutput" terminal layers (SSD, Faster-RCNN, R-FCN). The graph
	// has already suppressed overlapping boxes internally.
	FormatFixedSchema OutputFormat = iota
	// FormatGridAnchor is the per-cell anchor schema produced by "Region"
	// terminal layers (YOLO). Candidates require arg-max over class scores
	// and a suppression pass.
	FormatGridAnchor
)

// String returns the OpenCV layer type string for the format.
func (f OutputFormat) String() string {
	switch f {
	case FormatFixedSchema:
		return "DetectionOutput"
	case FormatGridAnchor:
		return "Region"
	default:
		return "unknown"
	}
}

// ParseOutputFormat maps a terminal layer type string to an OutputFormat.
//
// Any type other than the two known schemas yields ErrUnsupportedFormat. The
// decoder never guesses an unknown format.
//
// Arguments:
//   - layerType: The declared type string of the graph's terminal layer.
//
// Returns:
//   - OutputFormat: The resolved format.
//   - error: ErrUnsupportedFormat for unknown layer types.
func ParseOutputFormat(layerType string) (OutputFormat, error) {
	switch layerType {
	case "DetectionOutput":
		return FormatFixedSchema, nil
	case "Region":
		return FormatGridAnchor, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedFormat, "layer type %q", layerType)
	}
}
