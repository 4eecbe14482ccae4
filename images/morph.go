// Package images - Morphological cleanup of binary foreground masks using OpenCV (via gocv).
//
// Segmentation leaves speckle noise on the background and pinholes inside objects.
// The Cleaner removes both with two fixed passes over the mask:
//
// ┌──────────────┐
// │ Binary mask  │
// └──────┬───────┘
// ┌────────────────────────────────────┐
// │ Opening (erode, dilate): speckles  │
// └──────┬─────────────────────────────┘
// ┌────────────────────────────────────┐
// │ Closing (dilate, erode): pinholes  │
// └──────┬─────────────────────────────┘
// ┌──────────────┐
// │ Clean mask   │
// └──────────────┘
//
// Usage:
//
//	cleaner := images.NewCleaner(images.DefaultKernelSize)
//	defer cleaner.Close()
//
//	if err := cleaner.Clean(mask, &cleaned); err != nil {
//	    return err
//	}
package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultKernelSize is the side of the elliptical structuring element.
const DefaultKernelSize = 5

// Cleaner applies an opening followed by a closing with an elliptical kernel.
//
// The kernel is allocated once and reused across frames. Always call Close() when
// done to release native resources.
type Cleaner struct {
	Kernel gocv.Mat
	opened gocv.Mat
}

// NewCleaner constructs a Cleaner with a size x size elliptical structuring element.
func NewCleaner(size int) *Cleaner {
	if size < 1 {
		size = DefaultKernelSize
	}
	return &Cleaner{
		Kernel: gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(size, size)),
		opened: gocv.NewMat(),
	}
}

// Clean writes the cleaned version of src to dst. dst has the size and type of src.
//
// Arguments:
//   - src: The CV_8UC1 binary mask.
//   - dst: Receives the cleaned mask.
//
// Returns:
//   - error: An error if src is empty.
func (c *Cleaner) Clean(src gocv.Mat, dst *gocv.Mat) error {
	if src.Empty() {
		return errors.New("images: empty mask")
	}
	gocv.MorphologyEx(src, &c.opened, gocv.MorphOpen, c.Kernel)
	gocv.MorphologyEx(c.opened, dst, gocv.MorphClose, c.Kernel)
	return nil
}

// Close releases all OpenCV native resources used by the cleaner.
func (c *Cleaner) Close() {
	c.Kernel.Close()
	c.opened.Close()
}
