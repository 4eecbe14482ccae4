// Package images - Region crops for display.
package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// MaskedCrop copies the pixels of one labelled component out of frame. Pixels inside
// bounds that belong to other labels or the background are black.
//
// Arguments:
//   - frame: The BGR frame.
//   - labels: The CV_32S label map of the same size.
//   - id: The component label.
//   - bounds: The component bounding rectangle.
//
// Returns:
//   - gocv.Mat: The crop, bounds-sized. Owned by the caller.
//   - error: An error if bounds fall outside frame.
func MaskedCrop(frame, labels gocv.Mat, id int, bounds image.Rectangle) (gocv.Mat, error) {
	full := image.Rect(0, 0, frame.Cols(), frame.Rows())
	if bounds.Empty() || !bounds.In(full) {
		return gocv.NewMat(), errors.Errorf("images: crop %v outside frame %v", bounds, full)
	}
	if labels.Rows() != frame.Rows() || labels.Cols() != frame.Cols() {
		return gocv.NewMat(), errors.New("images: label map and frame differ in size")
	}

	roi := frame.Region(bounds)
	crop := roi.Clone()
	roi.Close()

	channels := crop.Channels()
	buf, err := crop.DataPtrUint8()
	if err != nil {
		crop.Close()
		return gocv.NewMat(), errors.Wrap(err, "images: reading crop")
	}
	w := bounds.Dx()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < w; x++ {
			if int(labels.GetIntAt(bounds.Min.Y+y, bounds.Min.X+x)) == id {
				continue
			}
			i := (y*w + x) * channels
			for c := 0; c < channels; c++ {
				buf[i+c] = 0
			}
		}
	}
	return crop, nil
}
