package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-objrec/images"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number of the image file.
	Frame int
	// Format is the encoding inferred from the extension.
	Format images.ImageFormat
}

// LoadDirectoryImageFiles reads all image files named frame-N.<ext> from a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile ordered by frame number.
// - error: Error if loading fails or a file name does not carry a frame number.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "util: reading %s", dir)
	}

	var frames []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		format, ok := images.FormatFromPath(file.Name())
		if !ok {
			continue
		}
		ext := filepath.Ext(file.Name())
		frame, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file.Name(), "frame-"), ext))
		if err != nil {
			return nil, errors.Wrapf(err, "util: %s is not named frame-N%s", file.Name(), ext)
		}

		imgPath := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(imgPath)
		if err != nil {
			return nil, errors.Wrapf(err, "util: reading %s", imgPath)
		}
		frames = append(frames, ImageFile{
			Path:   imgPath,
			Data:   data,
			Frame:  frame,
			Format: format,
		})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Frame < frames[j].Frame
	})

	return frames, nil
}
