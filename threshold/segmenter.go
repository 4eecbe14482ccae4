// Package threshold - Foreground segmentation of color frames into binary masks.
//
// Two strategies are available and one is selected when the Segmenter is built:
//
//   - ModeClustering re-clusters every frame into a dark and a light group with a
//     seeded 2-means and marks the dark group as foreground. It needs no setup.
//   - ModeBackground compares every pixel against a captured, validated reference of
//     the empty white surface.
//
// Masks are single-channel 8-bit: 255 is foreground, 0 background.
package threshold

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Mode selects the segmentation strategy.
type Mode int

const (
	// ModeClustering segments by per-frame 2-means color clustering.
	ModeClustering Mode = iota
	// ModeBackground segments by difference from a captured background.
	ModeBackground
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeClustering:
		return "clustering"
	case ModeBackground:
		return "background"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name as accepted on the command line.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clustering", "kmeans", "dynamic":
		return ModeClustering, nil
	case "background", "white", "white-screen":
		return ModeBackground, nil
	default:
		return 0, errors.Errorf("threshold: unknown mode %q", s)
	}
}

// Config contains configuration parameters for foreground segmentation.
type Config struct {
	// Mode selects the strategy.
	Mode Mode `yaml:"-"`
	// SampleStep is the pixel stride of the sampling grid in both directions.
	SampleStep int `yaml:"sample_step"`
	// MaxIterations bounds the 2-means iterations.
	MaxIterations int `yaml:"max_iterations"`
	// StopDistance ends clustering once both centers move by at most this squared distance.
	StopDistance float64 `yaml:"stop_distance"`
	// WhiteMin is the lowest accepted channel mean of a background.
	WhiteMin float64 `yaml:"white_min"`
	// GrayTolerance is the largest accepted difference between two channel means of a background.
	GrayTolerance float64 `yaml:"gray_tolerance"`
	// BlurKernel is the box blur size applied to the captured background, must be odd.
	BlurKernel int `yaml:"blur_kernel"`
	// DiffThreshold is the gray-level difference above which a pixel is foreground.
	DiffThreshold float64 `yaml:"diff_threshold"`
}

// DefaultConfig returns the default segmentation configuration in clustering mode.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeClustering,
		SampleStep:    4,
		MaxIterations: 10,
		StopDistance:  1,
		WhiteMin:      245,
		GrayTolerance: 5,
		BlurKernel:    7,
		DiffThreshold: 10,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	switch {
	case c.Mode != ModeClustering && c.Mode != ModeBackground:
		return errors.Errorf("threshold: invalid mode %d", c.Mode)
	case c.SampleStep < 1:
		return errors.Errorf("threshold: sample step must be positive, got %d", c.SampleStep)
	case c.MaxIterations < 1:
		return errors.Errorf("threshold: max iterations must be positive, got %d", c.MaxIterations)
	case c.BlurKernel < 1 || c.BlurKernel%2 == 0:
		return errors.Errorf("threshold: blur kernel must be odd and positive, got %d", c.BlurKernel)
	}
	return nil
}

// Segmenter turns color frames into foreground masks.
type Segmenter struct {
	config        Config
	background    gocv.Mat
	hasBackground bool
	logger        *zap.SugaredLogger
}

// New creates a segmenter.
//
// Arguments:
//   - config: The segmentation configuration.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *Segmenter: The segmenter. Call Close when done.
//   - error: An error if the configuration is invalid.
//
// @example
// seg, err := threshold.New(threshold.DefaultConfig(), logger)
// if err != nil {
//     return err
// }
// defer seg.Close()
func New(config Config, logger *zap.SugaredLogger) (*Segmenter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Segmenter{
		config:     config,
		background: gocv.NewMat(),
		logger:     logger,
	}, nil
}

// Mode returns the strategy selected at construction.
func (s *Segmenter) Mode() Mode { return s.config.Mode }

// NeedsBackground reports whether Apply cannot run until a background is captured.
func (s *Segmenter) NeedsBackground() bool {
	return s.config.Mode == ModeBackground && !s.hasBackground
}

// Apply segments frame into dst.
//
// Arguments:
//   - frame: A BGR CV_8UC3 frame.
//   - dst: Receives the CV_8UC1 mask.
//
// Returns:
//   - error: ErrNoBackground in background mode before a capture, or an input error.
func (s *Segmenter) Apply(frame gocv.Mat, dst *gocv.Mat) error {
	if frame.Empty() {
		return errors.New("threshold: empty frame")
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return errors.Errorf("threshold: frame must be CV_8UC3, got %v", frame.Type())
	}

	switch s.config.Mode {
	case ModeBackground:
		return s.subtract(frame, dst)
	default:
		return s.cluster(frame, dst)
	}
}

// Close releases the captured background.
func (s *Segmenter) Close() {
	s.background.Close()
}
