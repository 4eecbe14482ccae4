// Package test provides synthetic scenes for end-to-end tests of the
// recognition pipeline.
package test

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-objrec/images"
)

// Ink is the color objects are drawn with.
var Ink = color.RGBA{R: 25, G: 30, B: 35, A: 255}

// Shape draws one object onto a frame.
type Shape func(img *gocv.Mat)

// MockFrameGenerator creates deterministic frames of dark objects on a white
// surface.
//
// @example
// gen := NewMockFrameGenerator(640, 480)
// frame := gen.Scene(gen.Rect(image.Pt(320, 240), 200, 100, 0))
// defer frame.Close()
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with specified dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A configured MockFrameGenerator instance.
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{width: width, height: height}
}

// Blank returns an empty white surface.
func (g *MockFrameGenerator) Blank() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), g.height, g.width, gocv.MatTypeCV8UC3)
}

// Scene returns a white surface with every shape drawn on it.
func (g *MockFrameGenerator) Scene(shapes ...Shape) gocv.Mat {
	frame := g.Blank()
	for _, s := range shapes {
		s(&frame)
	}
	return frame
}

// Rect is a filled w by h rectangle centered at center and rotated by angle
// degrees.
func (g *MockFrameGenerator) Rect(center image.Point, w, h int, angle float64) Shape {
	return func(img *gocv.Mat) {
		theta := angle * math.Pi / 180
		cos, sin := math.Cos(theta), math.Sin(theta)
		hw, hh := float64(w)/2, float64(h)/2

		corners := make([]image.Point, 0, 4)
		for _, c := range [][2]float64{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}} {
			x := float64(center.X) + c[0]*cos - c[1]*sin
			y := float64(center.Y) + c[0]*sin + c[1]*cos
			corners = append(corners, image.Pt(int(math.Round(x)), int(math.Round(y))))
		}

		pv := gocv.NewPointsVectorFromPoints([][]image.Point{corners})
		defer pv.Close()
		gocv.FillPoly(img, pv, Ink)
	}
}

// Ellipse is a filled ellipse with the given semi-axes, rotated by angle degrees.
func (g *MockFrameGenerator) Ellipse(center image.Point, a, b int, angle float64) Shape {
	return func(img *gocv.Mat) {
		gocv.Ellipse(img, center, image.Pt(a, b), angle, 0, 360, Ink, -1)
	}
}

// WriteFrames encodes frames as frame-N files in dir, N starting at 0.
//
// Returns:
//   - []string: The files written.
//   - error: The first write failure.
func WriteFrames(dir string, format images.ImageFormat, frames ...gocv.Mat) ([]string, error) {
	paths := make([]string, 0, len(frames))
	for i, f := range frames {
		path := filepath.Join(dir, "frame-"+strconv.Itoa(i)+format.Extension())
		data, err := images.EncodeFrame(f, format)
		if err != nil {
			return paths, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
