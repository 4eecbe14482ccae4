package region

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rectPoints(x0, y0, w, h int) []image.Point {
	var pts []image.Point
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			pts = append(pts, image.Pt(x, y))
		}
	}
	return pts
}

func centroidOf(pts []image.Point) Point {
	var c Point
	for _, p := range pts {
		c.X += float64(p.X)
		c.Y += float64(p.Y)
	}
	c.X /= float64(len(pts))
	c.Y /= float64(len(pts))
	return c
}

func TestComputeExtent(t *testing.T) {
	pts := rectPoints(10, 20, 40, 10)
	c := centroidOf(pts)
	assert.InDelta(t, 29.5, c.X, 1e-9)
	assert.InDelta(t, 24.5, c.Y, 1e-9)

	ext := ComputeExtent(pts, c, 0)
	assert.InDelta(t, -19.5, ext.MinE1, 1e-9)
	assert.InDelta(t, 19.5, ext.MaxE1, 1e-9)
	assert.InDelta(t, -4.5, ext.MinE2, 1e-9)
	assert.InDelta(t, 4.5, ext.MaxE2, 1e-9)
	assert.InDelta(t, 40, ext.SpanE1(), 1e-9)
	assert.InDelta(t, 10, ext.SpanE2(), 1e-9)
	assert.True(t, ext.ContainsCentroid())

	assert.Equal(t, AxisExtent{}, ComputeExtent(nil, c, 0))
}

func TestMajorAxis(t *testing.T) {
	tests := []struct {
		name      string
		angle     float64
		ext       AxisExtent
		wantAngle float64
		wantSpan1 float64
		wantSpan2 float64
	}{
		{
			name:      "already major",
			angle:     0.2,
			ext:       AxisExtent{MinE1: -20, MaxE1: 20, MinE2: -5, MaxE2: 5},
			wantAngle: 0.2,
			wantSpan1: 41,
			wantSpan2: 11,
		},
		{
			name:      "secondary is longer",
			angle:     0.2,
			ext:       AxisExtent{MinE1: -5, MaxE1: 5, MinE2: -20, MaxE2: 18},
			wantAngle: 0.2 + math.Pi/2 - math.Pi,
			wantSpan1: 39,
			wantSpan2: 11,
		},
		{
			name:      "quarter turn stays in range",
			angle:     -0.4,
			ext:       AxisExtent{MinE1: -3, MaxE1: 4, MinE2: -10, MaxE2: 10},
			wantAngle: -0.4 + math.Pi/2,
			wantSpan1: 21,
			wantSpan2: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			angle, ext := MajorAxis(tt.angle, tt.ext)
			assert.InDelta(t, tt.wantAngle, angle, 1e-9)
			assert.InDelta(t, tt.wantSpan1, ext.SpanE1(), 1e-9)
			assert.InDelta(t, tt.wantSpan2, ext.SpanE2(), 1e-9)
			assert.True(t, ext.ContainsCentroid())
			assert.Greater(t, angle, -math.Pi/2)
			assert.LessOrEqual(t, angle, math.Pi/2)
		})
	}
}

func TestMajorAxisKeepsPixelsInBox(t *testing.T) {
	// A tall rectangle measured along the x axis must be re-expressed along y
	// without changing where its pixels project.
	pts := rectPoints(0, 0, 10, 30)
	c := centroidOf(pts)
	angle, ext := MajorAxis(0, ComputeExtent(pts, c, 0))
	require.InDelta(t, math.Pi/2, angle, 1e-9)

	recomputed := ComputeExtent(pts, c, angle)
	assert.InDelta(t, recomputed.MinE1, ext.MinE1, 1e-9)
	assert.InDelta(t, recomputed.MaxE1, ext.MaxE1, 1e-9)
	assert.InDelta(t, recomputed.MinE2, ext.MinE2, 1e-9)
	assert.InDelta(t, recomputed.MaxE2, ext.MaxE2, 1e-9)
}

func TestBoxFromExtent(t *testing.T) {
	// An L shape: the centroid is pulled toward the heavy corner while the box
	// centre stays at the geometric middle.
	pts := append(rectPoints(0, 0, 60, 10), rectPoints(0, 10, 10, 50)...)
	c := centroidOf(pts)
	ext := ComputeExtent(pts, c, 0)
	box := BoxFromExtent(c, 0, ext)

	assert.InDelta(t, 29.5, box.Center.X, 1e-9)
	assert.InDelta(t, 29.5, box.Center.Y, 1e-9)
	assert.InDelta(t, 60, box.Width, 1e-9)
	assert.InDelta(t, 60, box.Height, 1e-9)
	assert.Less(t, c.X, box.Center.X)
	assert.True(t, ext.ContainsCentroid())

	corners := box.Corners()
	assert.InDelta(t, -0.5, corners[0].X, 1e-9)
	assert.InDelta(t, -0.5, corners[0].Y, 1e-9)
	assert.InDelta(t, 59.5, corners[2].X, 1e-9)
	assert.InDelta(t, 59.5, corners[2].Y, 1e-9)
}

func TestAngleDelta(t *testing.T) {
	assert.InDelta(t, 0.1, AngleDelta(0.05, -0.05), 1e-9)
	assert.InDelta(t, 0.1, AngleDelta(math.Pi/2-0.05, -math.Pi/2+0.05), 1e-9)
	assert.InDelta(t, 0, AngleDelta(math.Pi/2, -math.Pi/2), 1e-9)
}

func TestPrincipalAngle(t *testing.T) {
	assert.InDelta(t, 0, PrincipalAngle(10, 0, 2), 1e-9)
	assert.InDelta(t, math.Pi/2, PrincipalAngle(2, 0, 10), 1e-9)
	assert.InDelta(t, math.Pi/4, PrincipalAngle(5, 3, 5), 1e-9)
}

func TestMomentsHu(t *testing.T) {
	m := Moments{Nu20: 0.1, Nu02: 0.05, Nu11: 0.01, Nu30: 0.002, Nu12: 0.001, Nu21: 0.0005, Nu03: 0.0001}
	hu := m.Hu()
	assert.InDelta(t, 0.15, hu[0], 1e-12)
	assert.InDelta(t, 0.05*0.05+4*0.0001, hu[1], 1e-12)
	a := 0.002 - 0.003
	b := 0.0015 - 0.0001
	assert.InDelta(t, a*a+b*b, hu[2], 1e-12)
}

func TestPrincipalAngleIsotropic(t *testing.T) {
	assert.Equal(t, 0.0, PrincipalAngle(8.3e6, 1e-7, 8.3e6+2e-7))
	assert.Equal(t, 0.0, PrincipalAngle(0, 0, 0))
}
