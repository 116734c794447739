// Package postprocess - Decoding and suppression of detection network outputs.
package postprocess

import "github.com/argusml/go-detect/images"

// Result represents a single decoded detection.
type Result struct {
	// The bounding box of the detection in frame pixel coordinates.
	Box images.Rect
	// The confidence score of the detection, in [0, 1].
	Score float32
	// The predicted class index of the detection.
	Class int
	// The human-readable label, when a class set is configured. Empty
	// otherwise.
	Label string
}
