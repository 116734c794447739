package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformImage returns a w-by-h frame filled with one color.
func uniformImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPrepareInput_ShapeAndNormalization(t *testing.T) {
	img := uniformImage(8, 6, color.RGBA{R: 255, G: 128, B: 0, A: 255})
	params := DefaultInputParams(4, 4)

	blob, err := PrepareInput(img, params)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 4}, []int(blob.Shape()))

	data := blob.Data().([]float32)
	require.Len(t, data, 3*4*4)

	channelSize := 4 * 4
	for i := 0; i < channelSize; i++ {
		assert.InDelta(t, 1.0, data[i], 0.02, "red channel")
		assert.InDelta(t, 128.0/255.0, data[channelSize+i], 0.02, "green channel")
		assert.InDelta(t, 0.0, data[2*channelSize+i], 0.02, "blue channel")
	}
}

func TestPrepareInput_SwapRB(t *testing.T) {
	img := uniformImage(4, 4, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	params := DefaultInputParams(4, 4)
	params.SwapRB = true

	blob, err := PrepareInput(img, params)
	require.NoError(t, err)

	data := blob.Data().([]float32)
	channelSize := 4 * 4
	assert.InDelta(t, 0.0, data[0], 0.02, "channel 0 holds blue after swap")
	assert.InDelta(t, 1.0, data[2*channelSize], 0.02, "channel 2 holds red after swap")
}

func TestPrepareInput_MeanAndScale(t *testing.T) {
	img := uniformImage(4, 4, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	params := InputParams{
		Width:  4,
		Height: 4,
		Scale:  1.0 / 127.5,
		Mean:   [3]float32{127.5, 127.5, 127.5},
	}

	blob, err := PrepareInput(img, params)
	require.NoError(t, err)

	// (255 - 127.5) / 127.5 = 1.0
	for _, v := range blob.Data().([]float32) {
		assert.InDelta(t, 1.0, v, 0.02)
	}
}

func TestPrepareInput_CenterCrop(t *testing.T) {
	// A wide frame: crop keeps the aspect ratio and still produces the
	// configured blob shape.
	img := uniformImage(16, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	params := DefaultInputParams(4, 4)
	params.Crop = true

	blob, err := PrepareInput(img, params)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4, 4}, []int(blob.Shape()))
}

func TestPrepareInput_UnconfiguredSize(t *testing.T) {
	img := uniformImage(4, 4, color.RGBA{A: 255})

	_, err := PrepareInput(img, InputParams{Scale: 1})
	require.ErrorIs(t, err, ErrUnconfiguredInput)
}

func TestImageInfoTensor(t *testing.T) {
	info := ImageInfoTensor(640, 480)
	assert.Equal(t, []int{1, 3}, []int(info.Shape()))

	data := info.Data().([]float32)
	require.Len(t, data, 3)
	assert.Equal(t, float32(480), data[0], "height first")
	assert.Equal(t, float32(640), data[1])
}
