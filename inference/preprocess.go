package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Recipe describes how an image is turned into a model input: resize to a
// Size×Size square, optionally reorder BGR to RGB, subtract Mean per output
// channel and multiply by Scale.
type Recipe struct {
	Size   int        `yaml:"size"`
	Mean   [3]float64 `yaml:"mean"`
	Scale  float64    `yaml:"scale"`
	SwapRB bool       `yaml:"swap_rb"`
}

// DefaultRecipe returns the ImageNet preprocessing used by the ResNet family.
func DefaultRecipe() Recipe {
	return Recipe{
		Size:   224,
		Mean:   [3]float64{124, 116, 104},
		Scale:  1.0 / (255.0 * 0.226),
		SwapRB: true,
	}
}

// Validate reports whether the recipe can produce a tensor.
func (r Recipe) Validate() error {
	if r.Size <= 0 {
		return errors.Errorf("inference: recipe size must be positive, got %d", r.Size)
	}
	if r.Scale == 0 {
		return errors.New("inference: recipe scale must be non-zero")
	}
	return nil
}

// TensorLen is the number of float32 values in one NCHW input with batch size 1.
func (r Recipe) TensorLen() int {
	return 3 * r.Size * r.Size
}

// Blob converts a BGR frame into an NCHW blob for the OpenCV DNN module. The
// caller owns the returned Mat.
func (r Recipe) Blob(img gocv.Mat) gocv.Mat {
	return gocv.BlobFromImage(
		img,
		r.Scale,
		image.Pt(r.Size, r.Size),
		gocv.NewScalar(r.Mean[0], r.Mean[1], r.Mean[2], 0),
		r.SwapRB,
		false,
	)
}

// PrepareInput fills dst with the planar representation of img.
//
// The image is resized to the recipe size with bilinear interpolation, which is
// what the DNN module does for Blob. Planes are ordered R, G, B when SwapRB is
// set and B, G, R otherwise; Mean is indexed by plane.
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The destination buffer, at least TensorLen values long.
//   - r: The preprocessing recipe.
//
// Returns:
//   - error: An error if dst is too small.
func PrepareInput(img image.Image, dst []float32, r Recipe) error {
	channelSize := r.Size * r.Size
	if len(dst) < r.TensorLen() {
		return errors.Errorf("inference: destination holds %d floats, needs %d", len(dst), r.TensorLen())
	}

	planes := [3][]float32{
		dst[0:channelSize],
		dst[channelSize : channelSize*2],
		dst[channelSize*2 : channelSize*3],
	}
	if !r.SwapRB {
		planes[0], planes[2] = planes[2], planes[0]
	}
	mean := r.Mean
	if !r.SwapRB {
		mean[0], mean[2] = mean[2], mean[0]
	}

	bounds := img.Bounds()
	if bounds.Dx() != r.Size || bounds.Dy() != r.Size {
		img = resize.Resize(uint(r.Size), uint(r.Size), img, resize.Bilinear)
		bounds = img.Bounds()
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			planes[0][i] = float32((float64(cr>>8) - mean[0]) * r.Scale)
			planes[1][i] = float32((float64(cg>>8) - mean[1]) * r.Scale)
			planes[2][i] = float32((float64(cb>>8) - mean[2]) * r.Scale)
			i++
		}
	}
	return nil
}
