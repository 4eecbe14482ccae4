// Package threshold - Background capture and subtraction.
package threshold

import (
	"image"
	"math"

	"github.com/muesli/clusters"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	// ErrBackgroundRejected is returned when a captured background is not bright and
	// neutral enough. The caller should clear the surface and try again.
	ErrBackgroundRejected = errors.New("threshold: background rejected")
	// ErrNoBackground is returned by Apply in background mode before a capture.
	ErrNoBackground = errors.New("threshold: no background captured")
)

// AverageColor is the per-channel mean of samples.
func AverageColor(samples []clusters.Coordinates) clusters.Coordinates {
	obs := make(clusters.Observations, len(samples))
	for i, s := range samples {
		obs[i] = s
	}
	center, err := obs.Center()
	if err != nil {
		return clusters.Coordinates{0, 0, 0}
	}
	return center
}

// CheckBackground verifies that color is bright and close to gray.
//
// Arguments:
//   - color: The BGR channel means.
//
// Returns:
//   - error: ErrBackgroundRejected, wrapped with the reason, or nil.
func (c Config) CheckBackground(color clusters.Coordinates) error {
	for i, v := range color {
		if v < c.WhiteMin {
			return errors.Wrapf(ErrBackgroundRejected, "channel %d mean %.1f is below %.1f", i, v, c.WhiteMin)
		}
	}
	for i := 0; i < len(color); i++ {
		for j := i + 1; j < len(color); j++ {
			if d := math.Abs(color[i] - color[j]); d > c.GrayTolerance {
				return errors.Wrapf(ErrBackgroundRejected, "channels %d and %d differ by %.1f", i, j, d)
			}
		}
	}
	return nil
}

// CaptureBackground validates frame as an empty background and stores a blurred copy
// of it as the reference.
//
// Arguments:
//   - frame: A BGR CV_8UC3 frame of the empty surface.
//
// Returns:
//   - error: ErrBackgroundRejected if validation fails; the previous reference is kept.
func (s *Segmenter) CaptureBackground(frame gocv.Mat) error {
	if frame.Empty() || frame.Type() != gocv.MatTypeCV8UC3 {
		return errors.New("threshold: background must be a non-empty CV_8UC3 frame")
	}
	if !frame.IsContinuous() {
		frame = frame.Clone()
		defer frame.Close()
	}

	samples, err := SampleGrid(frame, s.config.SampleStep)
	if err != nil {
		return err
	}
	avg := AverageColor(samples)
	if err := s.config.CheckBackground(avg); err != nil {
		s.logger.Debugw("background rejected", "mean", avg, "error", err)
		return err
	}

	k := s.config.BlurKernel
	gocv.Blur(frame, &s.background, image.Pt(k, k))
	s.hasBackground = true
	s.logger.Infow("background captured", "mean", avg)
	return nil
}

// ResetBackground discards the reference so the next frame must be captured again.
func (s *Segmenter) ResetBackground() {
	s.hasBackground = false
}

// Background returns the stored reference. It must not be modified.
func (s *Segmenter) Background() gocv.Mat {
	return s.background
}

// subtract is the ModeBackground strategy.
func (s *Segmenter) subtract(frame gocv.Mat, dst *gocv.Mat) error {
	if !s.hasBackground {
		return ErrNoBackground
	}
	if frame.Rows() != s.background.Rows() || frame.Cols() != s.background.Cols() {
		return errors.Errorf("threshold: frame is %dx%d, background is %dx%d",
			frame.Cols(), frame.Rows(), s.background.Cols(), s.background.Rows())
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(s.background, frame, &diff)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)

	gocv.Threshold(gray, dst, float32(s.config.DiffThreshold), 255, gocv.ThresholdBinary)
	return nil
}
