// Package classifier - Canonical pose of a region for embedding.
package classifier

import (
	"image"
	"math"

	"github.com/nvr-ai/go-objrec/region"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// CanonicalRect returns the crop, in the rotated frame, that holds the region once
// its principal axis is horizontal. The frame is rotated about the rounded centroid,
// so the crop spans the extents around that point, clamped to bounds.
func CanonicalRect(r region.Stats, bounds image.Rectangle) image.Rectangle {
	c := r.Centroid.ImagePoint()
	return image.Rect(
		c.X+int(math.Floor(r.Extent.MinE1)),
		c.Y+int(math.Floor(r.Extent.MinE2)),
		c.X+int(math.Ceil(r.Extent.MaxE1))+1,
		c.Y+int(math.Ceil(r.Extent.MaxE2))+1,
	).Intersect(bounds)
}

// Canonicalize rotates frame so the region's principal axis is horizontal and crops
// the region out of it.
//
// Arguments:
//   - frame: The full color frame.
//   - r: The region, with centroid, angle and extents populated.
//
// Returns:
//   - gocv.Mat: The canonical crop. Owned by the caller.
//   - error: An error if the crop falls outside the frame.
func Canonicalize(frame gocv.Mat, r region.Stats) (gocv.Mat, error) {
	size := image.Pt(frame.Cols(), frame.Rows())
	rect := CanonicalRect(r, image.Rectangle{Max: size})
	if rect.Empty() {
		return gocv.NewMat(), errors.Errorf("classifier: region %d has an empty canonical crop", r.ID)
	}

	rotation := gocv.GetRotationMatrix2D(r.Centroid.ImagePoint(), r.Angle*180/math.Pi, 1.0)
	defer rotation.Close()

	rotated := gocv.NewMat()
	defer rotated.Close()
	gocv.WarpAffine(frame, &rotated, rotation, size)

	roi := rotated.Region(rect)
	defer roi.Close()
	return roi.Clone(), nil
}
