// Package images - Region overlays drawn onto display frames.
package images

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/nvr-ai/go-objrec/region"
	"gocv.io/x/gocv"
)

// OverlayOptions controls what DrawRegions renders.
type OverlayOptions struct {
	// FeatureNames labels the feature vector in the summary lines. Features are
	// omitted when empty.
	FeatureNames []string
	// ShowEmbedding adds the embedding label.
	ShowEmbedding bool
}

// DrawRegions draws, for every region, its oriented box, principal and secondary
// axes, centroid and labels, plus one summary line per region at the top left.
//
// Arguments:
//   - img: The BGR frame to draw on.
//   - regions: The annotated regions.
//   - opts: What to render.
func DrawRegions(img *gocv.Mat, regions []region.Stats, opts OverlayOptions) {
	for i, r := range regions {
		drawBox(img, r.Box, r.Color)
		drawAxes(img, r)
		gocv.Circle(img, r.Centroid.ImagePoint(), 4, r.Color, -1)

		tag := r.Label
		if opts.ShowEmbedding {
			tag += " / " + r.EmbeddingLabel
		}
		at := r.Centroid.ImagePoint().Add(image.Pt(8, -8))
		gocv.PutText(img, tag, at, gocv.FontHersheySimplex, 0.7, r.Color, 2)

		gocv.PutText(img, Summary(r, opts), image.Pt(10, 20*(i+1)), gocv.FontHersheySimplex, 0.45, r.Color, 1)
	}
}

// Summary formats the one-line description of a region.
func Summary(r region.Stats, opts OverlayOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Label: %s (%.2f)", r.Label, r.Confidence)
	if opts.ShowEmbedding {
		fmt.Fprintf(&b, " | DNN: %s", r.EmbeddingLabel)
	}
	if len(opts.FeatureNames) > 0 && len(r.Features) > 0 {
		b.WriteString(" |")
		for i, v := range r.Features {
			if i < len(opts.FeatureNames) {
				fmt.Fprintf(&b, " %s = %.2f", opts.FeatureNames[i], v)
			}
		}
	}
	fmt.Fprintf(&b, " | ANGLE = %.2f", r.Angle*180/math.Pi)
	return b.String()
}

func drawBox(img *gocv.Mat, box region.OrientedBox, c color.RGBA) {
	corners := box.Corners()
	for i := range corners {
		gocv.Line(img, corners[i].ImagePoint(), corners[(i+1)%4].ImagePoint(), c, 3)
	}
}

// drawAxes draws the principal axis across the box length and the secondary axis
// across its width, both through the box center.
func drawAxes(img *gocv.Mat, r region.Stats) {
	cos, sin := math.Cos(r.Box.Angle), math.Sin(r.Box.Angle)
	center := r.Box.Center
	hw, hh := r.Box.Width/2, r.Box.Height/2

	major := [2]region.Point{
		{X: center.X - hw*cos, Y: center.Y - hw*sin},
		{X: center.X + hw*cos, Y: center.Y + hw*sin},
	}
	minor := [2]region.Point{
		{X: center.X + hh*sin, Y: center.Y - hh*cos},
		{X: center.X - hh*sin, Y: center.Y + hh*cos},
	}
	gocv.Line(img, major[0].ImagePoint(), major[1].ImagePoint(), r.Color, 2)
	gocv.Line(img, minor[0].ImagePoint(), minor[1].ImagePoint(), r.Color, 1)
}
