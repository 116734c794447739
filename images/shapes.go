// Package images - Pixel-space geometry for detection postprocessing.
package images

// Rect is a lightweight integer bounding box in pixel space.
//
// Left and Top are the inclusive top-left corner; Width and Height are the
// box dimensions, so the exclusive right edge is Left+Width and the exclusive
// bottom edge is Top+Height (like image.Rectangle).
type Rect struct {
	Left, Top     int
	Width, Height int
}

// Right returns the exclusive right edge of the box.
func (r Rect) Right() int { return r.Left + r.Width }

// Bottom returns the exclusive bottom edge of the box.
func (r Rect) Bottom() int { return r.Top + r.Height }

// Area returns the box area in pixels.
func (r Rect) Area() int { return r.Width * r.Height }

// Add returns the box translated by (dx, dy). Used to map a box detected
// inside a region of interest back to full-frame coordinates.
func (r Rect) Add(dx, dy int) Rect {
	return Rect{Left: r.Left + dx, Top: r.Top + dy, Width: r.Width, Height: r.Height}
}

// Clamp constrains the box to a frame of the given dimensions.
//
// The corner is clamped into [0, dim-1] first and the size is then clamped
// into [1, dim-corner] against the clamped corner, so the result always has
// Width >= 1 and Height >= 1 and lies fully inside the frame.
//
// Arguments:
//   - frameWidth: Frame width in pixels, must be > 0.
//   - frameHeight: Frame height in pixels, must be > 0.
//
// Returns:
//   - The clamped box.
func (r Rect) Clamp(frameWidth, frameHeight int) Rect {
	left := max(0, min(r.Left, frameWidth-1))
	top := max(0, min(r.Top, frameHeight-1))
	width := max(1, min(r.Width, frameWidth-left))
	height := max(1, min(r.Height, frameHeight-top))
	return Rect{Left: left, Top: top, Width: width, Height: height}
}

// CalculateIoU computes the Intersection over Union of two boxes.
//
// IoU is the standard overlap metric for axis-aligned boxes:
//
//	IoU = Area(intersection) / Area(union)
//
// 1.0 means the boxes are identical, 0.0 means they do not overlap at all.
// Boxes that merely share an edge have zero intersection area and score 0.0.
//
// Arguments:
//   - r: The first box.
//   - o: The second box.
//
// Returns:
//   - float32: The IoU score in [0, 1].
func CalculateIoU(r, o Rect) float32 {
	// The intersection corner is the max of the top-left corners and the min
	// of the bottom-right corners.
	ix1 := max(r.Left, o.Left)
	iy1 := max(r.Top, o.Top)
	ix2 := min(r.Right(), o.Right())
	iy2 := min(r.Bottom(), o.Bottom())

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Inclusion-exclusion: Union(A, B) = Area(A) + Area(B) - Intersection(A, B).
	unionArea := r.Area() + o.Area() - interArea

	return float32(interArea) / float32(unionArea)
}
