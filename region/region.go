// Package region - Geometric description of connected foreground components.
package region

import (
	"image"
	"image/color"
	"math"
)

// Unknown is the label carried by a region that no classifier could match.
const Unknown = "Unknown"

// Point is a sub-pixel image coordinate.
type Point struct {
	X float64
	Y float64
}

// ImagePoint rounds the point to the nearest pixel.
func (p Point) ImagePoint() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// AxisExtent holds the signed minimum and maximum projections of every pixel of a
// region onto its principal axis (E1) and the perpendicular secondary axis (E2),
// measured from the region centroid.
type AxisExtent struct {
	MinE1 float64
	MaxE1 float64
	MinE2 float64
	MaxE2 float64
}

// SpanE1 is the pixel footprint of the region along the principal axis.
func (e AxisExtent) SpanE1() float64 {
	return e.MaxE1 - e.MinE1 + 1
}

// SpanE2 is the pixel footprint of the region along the secondary axis.
func (e AxisExtent) SpanE2() float64 {
	return e.MaxE2 - e.MinE2 + 1
}

// ContainsCentroid reports whether the extents straddle the origin on both axes.
func (e AxisExtent) ContainsCentroid() bool {
	return e.MinE1 <= 0 && e.MaxE1 >= 0 && e.MinE2 <= 0 && e.MaxE2 >= 0
}

// OrientedBox is a rectangle aligned with a region's principal axis.
//
// Width always spans the principal axis and Height the secondary axis. Angle is in
// radians, measured in image coordinates (y down), and lies in (-pi/2, pi/2].
type OrientedBox struct {
	Center Point
	Width  float64
	Height float64
	Angle  float64
}

// Corners returns the four box vertices in drawing order.
func (b OrientedBox) Corners() [4]Point {
	c, s := math.Cos(b.Angle), math.Sin(b.Angle)
	hw, hh := b.Width/2, b.Height/2
	offsets := [4][2]float64{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}

	var out [4]Point
	for i, o := range offsets {
		out[i] = Point{
			X: b.Center.X + o[0]*c - o[1]*s,
			Y: b.Center.Y + o[0]*s + o[1]*c,
		}
	}
	return out
}

// Moments are the raw, central and normalized central image moments of a region.
type Moments struct {
	M00, M10, M01, M20, M11, M02, M30, M21, M12, M03 float64
	Mu20, Mu11, Mu02, Mu30, Mu21, Mu12, Mu03        float64
	Nu20, Nu11, Nu02, Nu30, Nu21, Nu12, Nu03        float64
}

// MomentsFromMap converts the key/value form returned by gocv.Moments.
func MomentsFromMap(m map[string]float64) Moments {
	return Moments{
		M00: m["m00"], M10: m["m10"], M01: m["m01"],
		M20: m["m20"], M11: m["m11"], M02: m["m02"],
		M30: m["m30"], M21: m["m21"], M12: m["m12"], M03: m["m03"],
		Mu20: m["mu20"], Mu11: m["mu11"], Mu02: m["mu02"],
		Mu30: m["mu30"], Mu21: m["mu21"], Mu12: m["mu12"], Mu03: m["mu03"],
		Nu20: m["nu20"], Nu11: m["nu11"], Nu02: m["nu02"],
		Nu30: m["nu30"], Nu21: m["nu21"], Nu12: m["nu12"], Nu03: m["nu03"],
	}
}

// Centroid is the center of mass (m10/m00, m01/m00).
func (m Moments) Centroid() Point {
	if m.M00 == 0 {
		return Point{}
	}
	return Point{X: m.M10 / m.M00, Y: m.M01 / m.M00}
}

// Hu returns the first three Hu invariant moments.
func (m Moments) Hu() [3]float64 {
	d := m.Nu20 - m.Nu02
	a := m.Nu30 - 3*m.Nu12
	b := 3*m.Nu21 - m.Nu03
	return [3]float64{
		m.Nu20 + m.Nu02,
		d*d + 4*m.Nu11*m.Nu11,
		a*a + b*b,
	}
}

// Stats describes one foreground component of a single frame. Stats are rebuilt on
// every frame; only Color survives, through the Tracker.
type Stats struct {
	// ID is the connected-component label. It is not stable across frames.
	ID       int
	Area     float64
	Moments  Moments
	Centroid Point
	// Angle is the principal-axis orientation in radians.
	Angle  float64
	Extent AxisExtent
	Box    OrientedBox
	// Bounds is the axis-aligned pixel bounding rectangle.
	Bounds image.Rectangle
	// Contour is the outer boundary of the component.
	Contour []image.Point

	Features          []float64
	Label             string
	Confidence        float64
	EmbeddingLabel    string
	EmbeddingDistance float64
	Color             color.RGBA
}

// Clone returns a deep copy so held tracker state is not aliased by callers.
func (s Stats) Clone() Stats {
	out := s
	out.Contour = append([]image.Point(nil), s.Contour...)
	out.Features = append([]float64(nil), s.Features...)
	return out
}
