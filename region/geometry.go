// Package region - Principal-axis geometry.
package region

import (
	"image"
	"math"
)

// isotropicTolerance is the relative size below which both moment differences are
// treated as rounding noise.
const isotropicTolerance = 1e-6

// PrincipalAngle returns the orientation of the axis minimizing the second moment of
// inertia, derived from the central moments. Shapes with no preferred axis, such as
// squares and discs, get angle 0.
func PrincipalAngle(mu20, mu11, mu02 float64) float64 {
	limit := isotropicTolerance * (mu20 + mu02)
	if math.Abs(2*mu11) <= limit && math.Abs(mu20-mu02) <= limit {
		return 0
	}
	return 0.5 * math.Atan2(2*mu11, mu20-mu02)
}

// ComputeExtent projects every point onto the axis at angle and its perpendicular,
// relative to centroid.
//
// Arguments:
//   - points: The pixel coordinates of the region.
//   - centroid: The region center of mass.
//   - angle: The principal-axis angle in radians.
//
// Returns:
//   - AxisExtent: The signed min/max projections. Zero for an empty point set.
func ComputeExtent(points []image.Point, centroid Point, angle float64) AxisExtent {
	if len(points) == 0 {
		return AxisExtent{}
	}

	c, s := math.Cos(angle), math.Sin(angle)
	ext := AxisExtent{
		MinE1: math.Inf(1), MaxE1: math.Inf(-1),
		MinE2: math.Inf(1), MaxE2: math.Inf(-1),
	}
	for _, p := range points {
		dx := float64(p.X) - centroid.X
		dy := float64(p.Y) - centroid.Y
		e1 := dx*c + dy*s
		e2 := -dx*s + dy*c
		ext.MinE1 = math.Min(ext.MinE1, e1)
		ext.MaxE1 = math.Max(ext.MaxE1, e1)
		ext.MinE2 = math.Min(ext.MinE2, e2)
		ext.MaxE2 = math.Max(ext.MaxE2, e2)
	}
	return ext
}

// MajorAxis rotates the frame of reference so that E1 is the longer axis and
// normalizes the angle into (-pi/2, pi/2].
//
// Arguments:
//   - angle: The principal-axis angle the extents were measured against.
//   - ext: The extents along angle.
//
// Returns:
//   - float64: The angle of the major axis.
//   - AxisExtent: The extents re-expressed along the major axis.
func MajorAxis(angle float64, ext AxisExtent) (float64, AxisExtent) {
	if ext.SpanE2() > ext.SpanE1() {
		// E1' = E2 and E2' = -E1 after a quarter turn.
		angle += math.Pi / 2
		ext = AxisExtent{
			MinE1: ext.MinE2, MaxE1: ext.MaxE2,
			MinE2: -ext.MaxE1, MaxE2: -ext.MinE1,
		}
	}
	for angle > math.Pi/2 {
		angle -= math.Pi
		ext = flip(ext)
	}
	for angle <= -math.Pi/2 {
		angle += math.Pi
		ext = flip(ext)
	}
	return angle, ext
}

func flip(e AxisExtent) AxisExtent {
	return AxisExtent{MinE1: -e.MaxE1, MaxE1: -e.MinE1, MinE2: -e.MaxE2, MaxE2: -e.MinE2}
}

// BoxFromExtent builds the oriented box from a centroid, angle and extents.
//
// The box center is offset from the centroid by the midpoint of the extents, so it
// follows the true mass distribution of asymmetric shapes.
func BoxFromExtent(centroid Point, angle float64, ext AxisExtent) OrientedBox {
	c, s := math.Cos(angle), math.Sin(angle)
	o1 := (ext.MaxE1 + ext.MinE1) / 2
	o2 := (ext.MaxE2 + ext.MinE2) / 2

	return OrientedBox{
		Center: Point{
			X: centroid.X + o1*c - o2*s,
			Y: centroid.Y + o1*s + o2*c,
		},
		Width:  ext.SpanE1(),
		Height: ext.SpanE2(),
		Angle:  angle,
	}
}

// AngleDelta is the absolute difference between two axis orientations, taken modulo
// pi since an axis has no direction.
func AngleDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), math.Pi)
	return math.Min(d, math.Pi-d)
}
