// Package util - Filesystem helpers for feeding frame sequences through the
// detection pipeline.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/argusml/go-detect/images"
)

// FrameFile is one encoded frame of a sequence on disk.
type FrameFile struct {
	// Path is the path to the frame file.
	Path string
	// Data is the raw encoded bytes of the frame.
	Data []byte
	// Format is the sniffed encoding of the frame.
	Format images.ImageFormat
	// Index is the frame number parsed from the file name, or the file's
	// position in the directory listing when the name carries no number.
	Index int
}

// LoadFrameDirectory reads every supported frame file from a directory and
// returns them in frame order.
//
// Arguments:
//   - dir: Directory path containing encoded frames.
//
// Returns:
//   - []FrameFile: The frames, sorted by index.
//   - error: An error if the directory or a frame cannot be read.
func LoadFrameDirectory(dir string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", dir)
	}

	var frames []FrameFile
	for position, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}

		format, err := images.DetectFormat(data)
		if err != nil {
			// Not a frame; skip sidecar files like labels or manifests.
			continue
		}

		index, ok := frameIndex(entry.Name())
		if !ok {
			index = position
		}

		frames = append(frames, FrameFile{
			Path:   path,
			Data:   data,
			Format: format,
			Index:  index,
		})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})

	return frames, nil
}

// frameIndex parses the trailing run of digits in a file name, e.g.
// "frame-0042.jpg" -> 42.
func frameIndex(name string) (int, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))

	end := len(base)
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}

	index, err := strconv.Atoi(base[start:end])
	if err != nil {
		return 0, false
	}
	return index, true
}
