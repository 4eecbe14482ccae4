// Package images - Image formats understood by frame loading and snapshots.
package images

import (
	"path/filepath"
	"strings"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
)

// FormatFromPath infers the format from a file extension.
//
// Returns:
//   - ImageFormat: The format.
//   - bool: false if the extension is not an image format.
func FormatFromPath(path string) (ImageFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".webp":
		return FormatWebP, true
	case ".png":
		return FormatPNG, true
	case ".bmp":
		return FormatBMP, true
	default:
		return "", false
	}
}

// Extension returns the file extension, including the dot.
func (f ImageFormat) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}
