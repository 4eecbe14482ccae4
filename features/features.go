// Package features - Scale, rotation and translation invariant region descriptors.
package features

import (
	"image"
	"math"

	"github.com/nvr-ai/go-objrec/region"
	"gocv.io/x/gocv"
)

// Dim is the length of a feature vector.
const Dim = 7

// Names are the short display names of each feature, in vector order.
var Names = [Dim]string{"PF", "AR", "CO", "CR", "HU1", "HU2", "HU3"}

// Indexes into a feature vector.
const (
	PercentFilled = iota
	AspectRatio
	Compactness
	Circularity
	Hu1
	Hu2
	Hu3
)

// huFloor keeps the log of a vanishing Hu moment finite. Perfectly symmetric shapes
// have exact zeros in the higher invariants.
const huFloor = 1e-30

// Compute derives the feature vector of a region and stores it in r.Features.
//
// The region must carry moments, an oriented box and its outer contour.
//
// Arguments:
//   - r: The region to describe.
//
// Returns:
//   - []float64: The feature vector, also stored on the region.
func Compute(r *region.Stats) []float64 {
	area := r.Moments.M00
	v := make([]float64, Dim)

	v[PercentFilled] = area / (r.Box.Width * r.Box.Height)
	v[AspectRatio] = r.Box.Height / r.Box.Width

	if len(r.Contour) > 0 {
		p := Perimeter(r.Contour)
		v[Compactness] = p * p / (4 * math.Pi * area)
		if v[Compactness] > 0 {
			v[Circularity] = 1 / v[Compactness]
		}
	}

	hu := r.Moments.Hu()
	for i, h := range hu {
		v[Hu1+i] = math.Log(math.Max(math.Abs(h), huFloor))
	}

	r.Features = v
	return v
}

// ComputeAll describes every region in place.
func ComputeAll(regions []region.Stats) {
	for i := range regions {
		Compute(&regions[i])
	}
}

// Perimeter is the length of the closed polyline through points.
func Perimeter(points []image.Point) float64 {
	pv := gocv.NewPointVectorFromPoints(points)
	defer pv.Close()
	return gocv.ArcLength(pv, true)
}
