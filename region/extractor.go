// Package region - Connected-component extraction using OpenCV (via gocv).
package region

import (
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Column layout of the stats matrix produced by gocv.ConnectedComponentsWithStats.
const (
	ccStatLeft = iota
	ccStatTop
	ccStatWidth
	ccStatHeight
	ccStatArea
)

// ExtractorConfig contains configuration parameters for region extraction.
type ExtractorConfig struct {
	// MinArea is the minimum pixel count of a component to be kept.
	MinArea float64 `yaml:"min_area"`
}

// DefaultExtractorConfig returns the default region extraction configuration.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MinArea: 9000,
	}
}

// Extractor labels the connected components of a binary mask and describes each
// component large enough to be an object.
type Extractor struct {
	config ExtractorConfig
	logger *zap.SugaredLogger
}

// NewExtractor creates a new region extractor.
//
// Arguments:
//   - config: The extraction configuration.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *Extractor: The region extractor.
func NewExtractor(config ExtractorConfig, logger *zap.SugaredLogger) *Extractor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Extractor{config: config, logger: logger}
}

// Extract labels mask with 8-connectivity and returns one Stats per component whose
// area meets the minimum. Smaller components are dropped.
//
// Arguments:
//   - mask: Single-channel 8-bit mask, non-zero is foreground.
//   - labels: Receives the CV_32S label map (0 is background). Owned by the caller.
//
// Returns:
//   - []Stats: The surviving regions in label order.
//   - error: An error if the mask is empty or of the wrong type.
//
// @example
// labels := gocv.NewMat()
// defer labels.Close()
// regions, err := extractor.Extract(cleaned, &labels)
func (e *Extractor) Extract(mask gocv.Mat, labels *gocv.Mat) ([]Stats, error) {
	if mask.Empty() {
		return nil, errors.New("region: empty mask")
	}
	if mask.Type() != gocv.MatTypeCV8UC1 {
		return nil, errors.Errorf("region: mask must be CV_8UC1, got %v", mask.Type())
	}

	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(mask, labels, &stats, &centroids)

	var regions []Stats
	index := make(map[int32]int)
	for i := 1; i < n; i++ {
		area := float64(stats.GetIntAt(i, ccStatArea))
		if area < e.config.MinArea {
			continue
		}
		left := int(stats.GetIntAt(i, ccStatLeft))
		top := int(stats.GetIntAt(i, ccStatTop))
		index[int32(i)] = len(regions)
		regions = append(regions, Stats{
			ID:   i,
			Area: area,
			Bounds: image.Rect(left, top,
				left+int(stats.GetIntAt(i, ccStatWidth)),
				top+int(stats.GetIntAt(i, ccStatHeight))),
			Label:          Unknown,
			EmbeddingLabel: Unknown,
		})
	}
	e.logger.Debugw("labelled components", "components", n-1, "kept", len(regions))
	if len(regions) == 0 {
		return nil, nil
	}

	data, err := labels.DataPtrInt32()
	if err != nil {
		return nil, errors.Wrap(err, "region: reading label map")
	}
	rows, cols := labels.Rows(), labels.Cols()
	pixels := make([][]image.Point, len(regions))
	for y := 0; y < rows; y++ {
		row := data[y*cols : (y+1)*cols]
		for x, l := range row {
			if idx, ok := index[l]; ok {
				pixels[idx] = append(pixels[idx], image.Pt(x, y))
			}
		}
	}

	for i := range regions {
		if err := describe(&regions[i], pixels[i], rows, cols); err != nil {
			return nil, err
		}
	}
	return regions, nil
}

// describe fills moments, orientation, extents, oriented box and contour.
func describe(r *Stats, pixels []image.Point, rows, cols int) error {
	mask := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	defer mask.Close()
	buf, err := mask.DataPtrUint8()
	if err != nil {
		return errors.Wrap(err, "region: reading component mask")
	}
	for i := range buf {
		buf[i] = 0
	}
	for _, p := range pixels {
		buf[p.Y*cols+p.X] = 255
	}

	r.Moments = MomentsFromMap(gocv.Moments(mask, true))
	r.Centroid = r.Moments.Centroid()

	angle := PrincipalAngle(r.Moments.Mu20, r.Moments.Mu11, r.Moments.Mu02)
	r.Angle, r.Extent = MajorAxis(angle, ComputeExtent(pixels, r.Centroid, angle))
	r.Box = BoxFromExtent(r.Centroid, r.Angle, r.Extent)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	best := -1
	for i := 0; i < contours.Size(); i++ {
		if best < 0 || contours.At(i).Size() > contours.At(best).Size() {
			best = i
		}
	}
	if best >= 0 {
		r.Contour = contours.At(best).ToPoints()
	}
	return nil
}
