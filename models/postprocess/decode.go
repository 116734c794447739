package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/argusml/go-detect/images"
)

// fixedSchemaRecordSize is the per-record width of the fixed-schema format:
// [batchId, classId, confidence, left, top, right, bottom].
const fixedSchemaRecordSize = 7

// gridAnchorMinCols is the minimum per-row width of the grid-anchor format:
// [centerX, centerY, width, height] plus at least one class score.
const gridAnchorMinCols = 5

// DecodeFixedSchema decodes "DetectionOutput" style tensors into final
// detections.
//
// Every tensor is a flat sequence of 7-float records
// [batchId, classId, confidence, left, top, right, bottom]. Records are
// visited in row order across tensors, so the output order is deterministic.
// Corner coordinates are usually absolute pixels, but some exported graphs
// emit normalized fractions in the same layout; a decoded box that collapses
// to two pixels or less on either axis is taken as the signal that the
// pixel-absolute interpretation was wrong and the corners are rescaled by the
// frame size instead.
//
// The graph has already suppressed overlapping boxes internally, so no NMS
// runs on this path.
//
// Arguments:
//   - outs: Raw output tensors with float32 backing. Read, never mutated.
//   - confThreshold: Records below this confidence are discarded.
//   - frameWidth: Frame width the coordinates resolve against.
//   - frameHeight: Frame height the coordinates resolve against.
//
// Returns:
//   - []Result: The decoded detections.
//   - error: ErrMalformedOutput when a tensor is not a whole number of
//     7-float records.
func DecodeFixedSchema(
	outs []*tensor.Dense,
	confThreshold float32,
	frameWidth, frameHeight int,
) ([]Result, error) {
	var results []Result

	for i, out := range outs {
		data, err := tensorFloats(out)
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		if len(data)%fixedSchemaRecordSize != 0 {
			return nil, errors.Wrapf(ErrMalformedOutput,
				"output %d holds %d floats, not a multiple of %d", i, len(data), fixedSchemaRecordSize)
		}

		for j := 0; j < len(data); j += fixedSchemaRecordSize {
			conf := data[j+2]
			if conf < confThreshold {
				continue
			}

			left := int(data[j+3])
			top := int(data[j+4])
			right := int(data[j+5])
			bottom := int(data[j+6])
			width := right - left + 1
			height := bottom - top + 1

			// A box this small means the corners were normalized fractions,
			// not pixels. Rescale by the frame size and rebuild the box.
			if width <= 2 || height <= 2 {
				left = int(data[j+3] * float32(frameWidth))
				top = int(data[j+4] * float32(frameHeight))
				right = int(data[j+5] * float32(frameWidth))
				bottom = int(data[j+6] * float32(frameHeight))
				width = right - left + 1
				height = bottom - top + 1
			}

			box := images.Rect{Left: left, Top: top, Width: width, Height: height}.
				Clamp(frameWidth, frameHeight)

			results = append(results, Result{
				Box:   box,
				Score: conf,
				Class: int(math32.Round(data[j+1])),
			})
		}
	}

	return results, nil
}

// DecodeGridAnchor decodes "Region" (YOLO) style tensors into raw candidate
// detections. Suppression has not run yet; callers must pass the candidates
// through Suppress.
//
// Every tensor holds rows of [centerX, centerY, width, height,
// classScore_0 .. classScore_{C-1}], all normalized to [0, 1]. The best class
// per row is the arg-max over the score sub-vector, ties broken by the lowest
// index.
//
// Arguments:
//   - outs: Raw output tensors with float32 backing, shaped [rows, cols] or
//     [1, rows, cols]. Read, never mutated.
//   - confThreshold: Rows whose best class score is below this are discarded.
//   - frameWidth: Frame width used to denormalize coordinates.
//   - frameHeight: Frame height used to denormalize coordinates.
//
// Returns:
//   - []Result: The raw candidate detections in row order.
//   - error: ErrMalformedOutput when a tensor is not a rows-by-cols grid with
//     at least 5 columns.
func DecodeGridAnchor(
	outs []*tensor.Dense,
	confThreshold float32,
	frameWidth, frameHeight int,
) ([]Result, error) {
	var results []Result

	for i, out := range outs {
		data, err := tensorFloats(out)
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		rows, cols, err := gridShape(out.Shape())
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}

		for r := 0; r < rows; r++ {
			row := data[r*cols : (r+1)*cols]

			// Arg-max over the class score sub-vector. Strict greater-than
			// keeps the lowest index on ties.
			bestClass := 0
			bestScore := row[4]
			for c := 5; c < cols; c++ {
				if row[c] > bestScore {
					bestScore = row[c]
					bestClass = c - 4
				}
			}

			if bestScore < confThreshold {
				continue
			}

			centerX := int(row[0] * float32(frameWidth))
			centerY := int(row[1] * float32(frameHeight))
			width := int(row[2] * float32(frameWidth))
			height := int(row[3] * float32(frameHeight))

			box := images.Rect{
				Left:   centerX - width/2,
				Top:    centerY - height/2,
				Width:  width,
				Height: height,
			}.Clamp(frameWidth, frameHeight)

			results = append(results, Result{
				Box:   box,
				Score: bestScore,
				Class: bestClass,
			})
		}
	}

	return results, nil
}

// tensorFloats returns the float32 backing of an output tensor.
func tensorFloats(t *tensor.Dense) ([]float32, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedOutput, "backing type %T, want []float32", t.Data())
	}
	return data, nil
}

// gridShape interprets a tensor shape as a [rows, cols] grid. A leading
// batch dimension of 1 is tolerated.
func gridShape(shape tensor.Shape) (rows, cols int, err error) {
	dims := []int(shape)
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return 0, 0, errors.Wrapf(ErrMalformedOutput, "shape %v, want [rows, cols]", shape)
	}
	rows, cols = dims[0], dims[1]
	if cols < gridAnchorMinCols {
		return 0, 0, errors.Wrapf(ErrMalformedOutput,
			"%d columns per row, need at least %d", cols, gridAnchorMinCols)
	}
	return rows, cols, nil
}
