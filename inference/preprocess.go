package inference

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// InputParams describes how a frame becomes a normalized input blob:
// target size, per-channel mean subtraction, scale factor, channel swap and
// crop policy.
type InputParams struct {
	// Width and Height are the network input dimensions.
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
	// Scale multiplies every channel value after mean subtraction.
	Scale float32 `json:"scale" yaml:"scale"`
	// Mean is subtracted per channel, in the blob's channel order.
	Mean [3]float32 `json:"mean" yaml:"mean"`
	// SwapRB swaps the red and blue channels in the blob.
	SwapRB bool `json:"swap_rb" yaml:"swap_rb"`
	// Crop resizes preserving aspect ratio and center-crops to the target
	// size instead of stretching.
	Crop bool `json:"crop" yaml:"crop"`
}

// DefaultInputParams returns the [0, 1] normalization used by most exported
// detection graphs: scale 1/255, zero mean, RGB order, stretch resize.
func DefaultInputParams(width, height int) InputParams {
	return InputParams{
		Width:  width,
		Height: height,
		Scale:  1.0 / 255.0,
		SwapRB: false,
		Crop:   false,
	}
}

// PrepareInput converts a frame into a normalized NCHW float32 blob of shape
// [1, 3, Height, Width].
//
// Arguments:
//   - img: The frame to convert.
//   - params: Target size and normalization parameters.
//
// Returns:
//   - *tensor.Dense: The input blob.
//   - error: ErrUnconfiguredInput when the target size is not set.
func PrepareInput(img image.Image, params InputParams) (*tensor.Dense, error) {
	if params.Width <= 0 || params.Height <= 0 {
		return nil, errors.Wrap(ErrUnconfiguredInput, "prepare input")
	}

	w, h := params.Width, params.Height
	img = resizeForBlob(img, w, h, params.Crop)

	channelSize := w * h
	data := make([]float32, 3*channelSize)
	c0 := data[0:channelSize]
	c1 := data[channelSize : 2*channelSize]
	c2 := data[2*channelSize : 3*channelSize]

	bounds := img.Bounds()
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			red := float32(r >> 8)
			green := float32(g >> 8)
			blue := float32(b >> 8)
			if params.SwapRB {
				red, blue = blue, red
			}
			c0[i] = (red - params.Mean[0]) * params.Scale
			c1[i] = (green - params.Mean[1]) * params.Scale
			c2[i] = (blue - params.Mean[2]) * params.Scale
			i++
		}
	}

	return tensor.New(tensor.WithShape(1, 3, h, w), tensor.WithBacking(data)), nil
}

// resizeForBlob resizes the frame to the target size, either by stretching or
// by aspect-preserving resize plus center crop.
func resizeForBlob(img image.Image, w, h int, crop bool) image.Image {
	if !crop {
		return resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
	}

	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	// Scale so both target dimensions are covered, then crop the center.
	scaleW := float64(w) / float64(srcW)
	scaleH := float64(h) / float64(srcH)
	scale := scaleW
	if scaleH > scale {
		scale = scaleH
	}

	resizedW := uint(float64(srcW)*scale + 0.5)
	resizedH := uint(float64(srcH)*scale + 0.5)
	resized := resize.Resize(resizedW, resizedH, img, resize.Lanczos3)

	offsetX := (int(resizedW) - w) / 2
	offsetY := (int(resizedH) - h) / 2
	return &croppedImage{
		src:    resized,
		offset: image.Pt(resized.Bounds().Min.X+offsetX, resized.Bounds().Min.Y+offsetY),
		w:      w,
		h:      h,
	}
}

// croppedImage is a zero-copy center-crop view over a resized frame.
type croppedImage struct {
	src    image.Image
	offset image.Point
	w, h   int
}

func (c *croppedImage) ColorModel() color.Model { return c.src.ColorModel() }

func (c *croppedImage) Bounds() image.Rectangle { return image.Rect(0, 0, c.w, c.h) }

func (c *croppedImage) At(x, y int) color.Color {
	return c.src.At(c.offset.X+x, c.offset.Y+y)
}
