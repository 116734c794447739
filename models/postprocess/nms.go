package postprocess

import (
	"sort"

	"github.com/argusml/go-detect/images"
)

// SuppressionPolicy selects how candidates are partitioned before greedy NMS.
type SuppressionPolicy int

const (
	// PerClass partitions candidates by class id and suppresses each
	// partition independently: a high-confidence box of one class never
	// suppresses an overlapping box of another class. Partitions are emitted
	// in ascending class id order for determinism.
	PerClass SuppressionPolicy = iota
	// AcrossClasses lets all candidates compete in a single suppression pass
	// regardless of class.
	AcrossClasses
)

// Suppress filters candidate detections with greedy Non-Maximum Suppression.
//
// An iouThreshold of 0 disables suppression entirely: the candidates pass
// through as an order-preserving copy. Otherwise candidates below
// confThreshold are dropped (decoders have already applied the threshold;
// this is a defensive re-check), the remainder is sorted by descending
// confidence with a stable sort, and boxes whose IoU with an already-kept box
// of the same partition exceeds iouThreshold are discarded.
//
// Arguments:
//   - detections: Candidate detections, typically from DecodeGridAnchor.
//   - confThreshold: Minimum confidence to participate in suppression.
//   - iouThreshold: Overlap threshold above which a box is suppressed.
//     0 disables suppression.
//   - policy: PerClass or AcrossClasses partitioning.
//
// Returns:
//   - Filtered slice of detections. Never shares backing storage with the
//     input.
func Suppress(
	detections []Result,
	confThreshold, iouThreshold float32,
	policy SuppressionPolicy,
) []Result {
	if iouThreshold == 0 {
		out := make([]Result, len(detections))
		copy(out, detections)
		return out
	}

	if policy == AcrossClasses {
		candidates := make([]Result, 0, len(detections))
		for _, d := range detections {
			if d.Score >= confThreshold {
				candidates = append(candidates, d)
			}
		}
		return greedyNMS(candidates, iouThreshold)
	}

	// Per-class: partition candidate indices by class id, then suppress each
	// partition independently in ascending class order.
	classToIndices := make(map[int][]int)
	for i, d := range detections {
		if d.Score >= confThreshold {
			classToIndices[d.Class] = append(classToIndices[d.Class], i)
		}
	}

	classes := make([]int, 0, len(classToIndices))
	for class := range classToIndices {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	filtered := make([]Result, 0, len(detections))
	for _, class := range classes {
		indices := classToIndices[class]
		partition := make([]Result, 0, len(indices))
		for _, idx := range indices {
			partition = append(partition, detections[idx])
		}
		filtered = append(filtered, greedyNMS(partition, iouThreshold)...)
	}

	return filtered
}

// greedyNMS performs standard greedy Non-Maximum Suppression on one
// partition.
//
// Candidates are sorted by descending confidence (stable, so equal scores
// keep their decode order); the highest-remaining box is kept and every
// remaining box overlapping it beyond iouThreshold is discarded, until the
// partition is empty.
func greedyNMS(detections []Result, iouThreshold float32) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make([]Result, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
