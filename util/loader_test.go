package util

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusml/go-detect/images"
)

func writeFrame(t *testing.T, dir, name string, encode func(*bytes.Buffer)) {
	t.Helper()
	var buf bytes.Buffer
	encode(&buf)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func TestLoadFrameDirectory(t *testing.T) {
	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.SetRGBA(4, 4, color.RGBA{R: 255, A: 255})

	// Written out of order; loading must sort by the parsed frame index.
	writeFrame(t, dir, "frame-0010.jpg", func(buf *bytes.Buffer) {
		require.NoError(t, jpeg.Encode(buf, img, nil))
	})
	writeFrame(t, dir, "frame-0002.png", func(buf *bytes.Buffer) {
		require.NoError(t, png.Encode(buf, img))
	})
	writeFrame(t, dir, "frame-0007.jpg", func(buf *bytes.Buffer) {
		require.NoError(t, jpeg.Encode(buf, img, nil))
	})

	// Sidecar files are skipped, not errors.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.txt"), []byte("person\n"), 0o644))

	frames, err := LoadFrameDirectory(dir)
	require.NoError(t, err)
	require.Len(t, frames, 3)

	assert.Equal(t, []int{2, 7, 10}, []int{frames[0].Index, frames[1].Index, frames[2].Index})
	assert.Equal(t, images.FormatPNG, frames[0].Format)
	assert.Equal(t, images.FormatJPEG, frames[1].Format)

	for _, frame := range frames {
		assert.NotEmpty(t, frame.Data)
		assert.NotEmpty(t, frame.Path)
	}
}

func TestLoadFrameDirectory_Missing(t *testing.T) {
	_, err := LoadFrameDirectory(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestFrameIndex(t *testing.T) {
	tests := []struct {
		name  string
		index int
		ok    bool
	}{
		{"frame-0042.jpg", 42, true},
		{"cam1-000123.png", 123, true},
		{"7.webp", 7, true},
		{"snapshot.jpg", 0, false},
		{"frame-12a.jpg", 0, false},
	}

	for _, tt := range tests {
		index, ok := frameIndex(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if ok {
			assert.Equal(t, tt.index, index, tt.name)
		}
	}
}
