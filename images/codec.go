package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ImageFormat represents supported encoded frame formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// DetectFormat sniffs the format of an encoded frame from its magic bytes.
//
// Arguments:
//   - data: The encoded frame bytes.
//
// Returns:
//   - ImageFormat: The detected format.
//   - error: An error when the bytes match no supported format.
func DetectFormat(data []byte) (ImageFormat, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG, nil
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return FormatPNG, nil
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP, nil
	default:
		return "", errors.Errorf("unrecognized image format (%d bytes)", len(data))
	}
}

// DecodeFrame decodes an encoded frame into a Go-native image.Image.
func DecodeFrame(data []byte, format ImageFormat) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}

	switch format {
	case FormatJPEG:
		img, err := jpeg.Decode(bytes.NewReader(data))
		return img, errors.Wrap(err, "decoding JPEG")
	case FormatPNG:
		img, err := png.Decode(bytes.NewReader(data))
		return img, errors.Wrap(err, "decoding PNG")
	case FormatWebP:
		img, err := webp.Decode(bytes.NewReader(data))
		return img, errors.Wrap(err, "decoding WebP")
	default:
		return nil, errors.Errorf("unsupported image format: %s", format)
	}
}

// DecodeResizedFrame decodes an encoded frame and resizes it to the given
// dimensions, suitable for feeding straight into an inference engine.
//
// Arguments:
//   - data: The encoded frame bytes.
//   - width: The width to resize the frame to.
//   - height: The height to resize the frame to.
//   - format: The encoding of the frame.
//
// Returns:
//   - image.Image: The resized frame.
//   - error: An error if decoding fails or the dimensions are not positive.
func DecodeResizedFrame(data []byte, width, height int, format ImageFormat) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	img, err := DecodeFrame(data, format)
	if err != nil {
		return nil, err
	}
	return resize.Resize(uint(width), uint(height), img, resize.Lanczos3), nil
}
