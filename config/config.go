// Package config loads the recognizer configuration.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-objrec/classifier"
	"github.com/nvr-ai/go-objrec/images"
	"github.com/nvr-ai/go-objrec/inference"
	"github.com/nvr-ai/go-objrec/region"
	"github.com/nvr-ai/go-objrec/threshold"
)

// Matcher names accepted in TrackerConfig.
const (
	MatcherFirst     = "first"
	MatcherHungarian = "hungarian"
)

// SourceConfig selects where frames come from. Exactly one of FramesDir, Video
// or Device is used, in that order of precedence.
type SourceConfig struct {
	Device    int    `yaml:"device"`
	Video     string `yaml:"video"`
	FramesDir string `yaml:"frames_dir"`
	// Resolution is requested from a camera, as a name such as "720p" or WIDTHxHEIGHT.
	// Empty keeps the camera default.
	Resolution string `yaml:"resolution"`
}

// TrackerConfig configures frame-to-frame region matching.
type TrackerConfig struct {
	Matcher    string            `yaml:"matcher"`
	Tolerances region.Tolerances `yaml:"tolerances"`
}

// SnapshotConfig configures the `s` command.
type SnapshotConfig struct {
	Dir    string             `yaml:"dir"`
	Format images.ImageFormat `yaml:"format"`
}

// Config is the complete recognizer configuration.
type Config struct {
	// Mode is the segmentation strategy name, see threshold.ParseMode.
	Mode string `yaml:"mode"`
	// Database is the hand-crafted feature CSV. It must exist.
	Database string `yaml:"database"`
	// EmbeddingDatabase is the embedding CSV. It is created on first flush.
	EmbeddingDatabase string `yaml:"embedding_database"`
	// KernelSize is the side of the elliptical morphology kernel.
	KernelSize int `yaml:"kernel_size"`
	// ReportEvery logs pipeline timings every N frames. Zero disables the report.
	ReportEvery int `yaml:"report_every"`
	// ShowEmbedding enables embedding classification at startup.
	ShowEmbedding bool `yaml:"show_embedding"`

	Source      SourceConfig                 `yaml:"source"`
	Segmenter   threshold.Config             `yaml:"segmenter"`
	Extractor   region.ExtractorConfig       `yaml:"extractor"`
	Tracker     TrackerConfig                `yaml:"tracker"`
	Handcrafted classifier.HandcraftedConfig `yaml:"handcrafted"`
	Embedding   classifier.EmbeddingConfig   `yaml:"embedding"`
	Model       inference.Config             `yaml:"model"`
	Snapshots   SnapshotConfig               `yaml:"snapshots"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Mode:              "clustering",
		Database:          "db.csv",
		EmbeddingDatabase: "embeddings.csv",
		KernelSize:        images.DefaultKernelSize,
		ReportEvery:       0,
		ShowEmbedding:     true,
		Segmenter:         threshold.DefaultConfig(),
		Extractor:         region.DefaultExtractorConfig(),
		Tracker: TrackerConfig{
			Matcher:    MatcherFirst,
			Tolerances: region.DefaultTolerances(),
		},
		Handcrafted: classifier.DefaultHandcraftedConfig(),
		Embedding:   classifier.DefaultEmbeddingConfig(),
		Model:       inference.DefaultConfig(),
		Snapshots: SnapshotConfig{
			Dir:    ".",
			Format: images.FormatPNG,
		},
	}
}

// Load reads the YAML file at path over the defaults. Keys missing from the
// file keep their default values.
//
// Arguments:
//   - path: The configuration file. An empty path returns the defaults.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read or parsed, or fails validation.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, errors.Wrapf(err, "config: parsing %s", path)
	}
	if err := c.Validate(); err != nil {
		return c, errors.Wrapf(err, "config: %s", path)
	}
	return c, nil
}

// SegmenterConfig returns the segmenter configuration with the mode resolved.
func (c Config) SegmenterConfig() (threshold.Config, error) {
	mode, err := threshold.ParseMode(c.Mode)
	if err != nil {
		return threshold.Config{}, err
	}
	s := c.Segmenter
	s.Mode = mode
	return s, nil
}

// NewMatcher returns the configured region matcher.
func (c Config) NewMatcher() (region.Matcher, error) {
	switch c.Tracker.Matcher {
	case "", MatcherFirst:
		return region.FirstMatch{Tolerances: c.Tracker.Tolerances}, nil
	case MatcherHungarian:
		return region.HungarianMatch{Tolerances: c.Tracker.Tolerances}, nil
	default:
		return nil, errors.Errorf("config: unknown matcher %q", c.Tracker.Matcher)
	}
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	s, err := c.SegmenterConfig()
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := c.NewMatcher(); err != nil {
		return err
	}

	switch {
	case c.Database == "":
		return errors.New("config: database is required")
	case c.KernelSize < 1 || c.KernelSize%2 == 0:
		return errors.Errorf("config: kernel size must be odd and positive, got %d", c.KernelSize)
	case c.Extractor.MinArea < 0:
		return errors.Errorf("config: min area must not be negative, got %v", c.Extractor.MinArea)
	case c.Handcrafted.Threshold <= 0:
		return errors.Errorf("config: handcrafted threshold must be positive, got %v", c.Handcrafted.Threshold)
	case c.Embedding.Threshold <= 0:
		return errors.Errorf("config: embedding threshold must be positive, got %v", c.Embedding.Threshold)
	case c.ReportEvery < 0:
		return errors.Errorf("config: report interval must not be negative, got %d", c.ReportEvery)
	}

	if _, err := images.ParseResolution(c.Source.Resolution); err != nil {
		return err
	}

	switch c.Snapshots.Format {
	case images.FormatPNG, images.FormatJPEG, images.FormatWebP, images.FormatBMP:
	default:
		return errors.Errorf("config: unsupported snapshot format %q", c.Snapshots.Format)
	}
	return nil
}
