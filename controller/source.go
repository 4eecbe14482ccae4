// Package controller - Frame sources.
package controller

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-objrec/images"
	"github.com/nvr-ai/go-objrec/util"
)

// FrameSource produces BGR frames.
type FrameSource interface {
	// Read fills dst with the next frame. It returns false when no frame is available.
	Read(dst *gocv.Mat) bool
	// Close releases the source.
	Close() error
}

// CaptureSource reads frames from a camera or a video file.
type CaptureSource struct {
	capture *gocv.VideoCapture
}

// NewCaptureSource opens a capture device.
//
// Arguments:
//   - device: A camera index (int) or a video file path or URL (string).
//   - res: The frame size to request. The zero Resolution keeps the device default.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *CaptureSource: The opened source.
//   - error: An error if the device cannot be opened.
func NewCaptureSource(device interface{}, res images.Resolution, logger *zap.SugaredLogger) (*CaptureSource, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(err, "controller: opening capture device %v", device)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("controller: capture device %v is not open", device)
	}

	if !res.IsZero() {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))
	}
	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	if !res.IsZero() && (width != res.Width || height != res.Height) {
		logger.Warnw("capture resolution not honored", "requested", res.String(), "width", width, "height", height)
	}

	logger.Infow("video device opened", "device", device, "width", width, "height", height)
	return &CaptureSource{capture: capture}, nil
}

// Read implements FrameSource.
func (s *CaptureSource) Read(dst *gocv.Mat) bool {
	return s.capture.Read(dst)
}

// Close implements FrameSource.
func (s *CaptureSource) Close() error {
	return s.capture.Close()
}

// DirectorySource replays frame-N image files in frame order.
type DirectorySource struct {
	frames  []util.ImageFile
	next    int
	skipped int
	logger  *zap.SugaredLogger
}

// NewDirectorySource loads the frames of dir.
//
// Arguments:
//   - dir: A directory of frame-N.<ext> images.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *DirectorySource: The source, positioned at the first frame.
//   - error: An error if the directory cannot be read or holds no frames.
func NewDirectorySource(dir string, logger *zap.SugaredLogger) (*DirectorySource, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	frames, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, errors.Errorf("controller: no frames in %s", dir)
	}
	logger.Infow("replaying frames", "dir", dir, "frames", len(frames))
	return &DirectorySource{frames: frames, logger: logger}, nil
}

// Len returns the number of frames.
func (s *DirectorySource) Len() int { return len(s.frames) }

// Skipped returns the number of frames that failed to decode.
func (s *DirectorySource) Skipped() int { return s.skipped }

// Read implements FrameSource. Frames that fail to decode are logged, counted and
// skipped. It returns false after the last frame.
func (s *DirectorySource) Read(dst *gocv.Mat) bool {
	for s.next < len(s.frames) {
		f := s.frames[s.next]
		s.next++

		m, err := images.DecodeFrame(f.Data, f.Format)
		if err != nil {
			m.Close()
			s.skipped++
			s.logger.Warnw("skipping frame", "path", f.Path, "error", err)
			continue
		}
		m.CopyTo(dst)
		m.Close()
		return true
	}
	return false
}

// Close implements FrameSource.
func (s *DirectorySource) Close() error {
	s.frames = nil
	return nil
}
