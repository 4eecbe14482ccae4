// Package controller - The per-frame recognition loop and its keyboard commands.
package controller

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-objrec/classifier"
	"github.com/nvr-ai/go-objrec/config"
	"github.com/nvr-ai/go-objrec/features"
	"github.com/nvr-ai/go-objrec/images"
	"github.com/nvr-ai/go-objrec/profiler"
	"github.com/nvr-ai/go-objrec/region"
	"github.com/nvr-ai/go-objrec/threshold"
	"github.com/nvr-ai/go-objrec/util"
)

// ErrEmptyFrame is returned when the frame source yields no frame.
var ErrEmptyFrame = errors.New("controller: no video frame")

// DefaultKeyDelay is the per-frame key wait in milliseconds.
const DefaultKeyDelay = 10

// Snapshot file name prefixes.
const (
	SnapshotOriginal  = "original_"
	SnapshotOverlay   = "overlayed_"
	SnapshotThreshold = "threshold_"
	SnapshotMorphed   = "morphed_"
)

// State is the controller state.
type State int

const (
	// StateSegmenting is the steady state.
	StateSegmenting State = iota
	// StateAwaitingBackground blocks segmentation until a background is accepted.
	StateAwaitingBackground
)

func (s State) String() string {
	if s == StateAwaitingBackground {
		return "awaiting-background"
	}
	return "segmenting"
}

// Options are the collaborators of a Controller.
type Options struct {
	// Config is the pipeline configuration.
	Config config.Config
	// Source provides frames. Closed by Controller.Close.
	Source FrameSource
	// Display shows windows and reads keys. Closed by Controller.Close.
	Display Display
	// Prompter narrates and reads labels.
	Prompter Prompter
	// Handcrafted is the feature classifier. Required.
	Handcrafted *classifier.Handcrafted
	// Embedding is the embedding classifier. Nil disables embedding classification.
	Embedding *classifier.Embedding
	// Colors assigns colors to new objects. region.RandomColors when nil.
	Colors region.ColorSource
	// Now stamps snapshots. time.Now when nil.
	Now func() time.Time
	// KeyDelay is the per-frame key wait in milliseconds. DefaultKeyDelay when zero.
	KeyDelay int
	// Logger is the logger to use. A no-op logger is used when nil.
	Logger *zap.SugaredLogger
}

// Controller runs the recognition pipeline one frame at a time: read, segment,
// clean, extract, describe, classify, track, render, then handle one key.
type Controller struct {
	config      config.Config
	source      FrameSource
	display     Display
	prompter    Prompter
	segmenter   *threshold.Segmenter
	cleaner     *images.Cleaner
	extractor   *region.Extractor
	tracker     *region.Tracker
	handcrafted *classifier.Handcrafted
	embedding   *classifier.Embedding
	trainer     *Trainer
	profiler    *profiler.Profiler

	state         State
	showThreshold bool
	showMorph     bool
	showEmbedding bool

	frame   gocv.Mat
	binary  gocv.Mat
	morphed gocv.Mat
	labels  gocv.Mat
	overlay gocv.Mat
	regions []region.Stats

	now      func() time.Time
	keyDelay int
	closed   bool
	logger   *zap.SugaredLogger
}

// New creates a controller.
//
// Arguments:
//   - opts: The collaborators and configuration.
//
// Returns:
//   - *Controller: The controller, in StateAwaitingBackground when the segmenter
//     needs a background and StateSegmenting otherwise.
//   - error: An error if the configuration is invalid or a collaborator is missing.
func New(opts Options) (*Controller, error) {
	if opts.Source == nil || opts.Display == nil || opts.Prompter == nil || opts.Handcrafted == nil {
		return nil, errors.New("controller: source, display, prompter and handcrafted classifier are required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	segConfig, err := opts.Config.SegmenterConfig()
	if err != nil {
		return nil, err
	}
	segmenter, err := threshold.New(segConfig, logger.Named("threshold"))
	if err != nil {
		return nil, err
	}
	matcher, err := opts.Config.NewMatcher()
	if err != nil {
		segmenter.Close()
		return nil, err
	}

	c := &Controller{
		config:        opts.Config,
		source:        opts.Source,
		display:       opts.Display,
		prompter:      opts.Prompter,
		segmenter:     segmenter,
		cleaner:       images.NewCleaner(opts.Config.KernelSize),
		extractor:     region.NewExtractor(opts.Config.Extractor, logger.Named("region")),
		tracker:       region.NewTracker(matcher, opts.Colors, logger.Named("tracker")),
		handcrafted:   opts.Handcrafted,
		embedding:     opts.Embedding,
		trainer:       NewTrainer(opts.Display, opts.Prompter, logger.Named("trainer")),
		profiler:      profiler.New(profiler.Options{ReportEvery: opts.Config.ReportEvery}, logger.Named("profiler")),
		showEmbedding: opts.Embedding != nil && opts.Config.ShowEmbedding,
		frame:         gocv.NewMat(),
		binary:        gocv.NewMat(),
		morphed:       gocv.NewMat(),
		labels:        gocv.NewMat(),
		overlay:       gocv.NewMat(),
		now:           opts.Now,
		keyDelay:      opts.KeyDelay,
		logger:        logger,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.keyDelay <= 0 {
		c.keyDelay = DefaultKeyDelay
	}
	if segmenter.NeedsBackground() {
		c.awaitBackground()
	}

	logger.Infow("controller ready",
		"mode", segConfig.Mode,
		"state", c.state,
		"handcrafted_examples", c.handcrafted.Len(),
		"embedding", c.embedding != nil,
	)
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Regions returns the regions of the last processed frame.
func (c *Controller) Regions() []region.Stats { return c.regions }

// Profiler returns the stage profiler.
func (c *Controller) Profiler() *profiler.Profiler { return c.profiler }

func (c *Controller) awaitBackground() {
	c.state = StateAwaitingBackground
	c.tracker.Reset()
	c.regions = nil
	c.prompter.Say("Reading white screen. Ensure platform is empty with only white background.")
	c.prompter.Say("White screen can be reset later by pressing the key 'w'.")
}

// embeddingActive reports whether embedding labels are computed and shown.
func (c *Controller) embeddingActive() bool {
	return c.embedding != nil && c.showEmbedding && c.embedding.HasTrainingData()
}

// Step processes one frame and one key.
//
// Arguments:
//   - ctx: Cancelling ctx stops the loop before the next frame is read.
//
// Returns:
//   - bool: false when the user quit.
//   - error: ErrEmptyFrame when the source is exhausted or failing, ctx.Err() on
//     cancellation, or a pipeline failure.
func (c *Controller) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !c.source.Read(&c.frame) || c.frame.Empty() {
		return false, ErrEmptyFrame
	}
	defer c.profiler.Frame()

	if c.state == StateAwaitingBackground {
		err := c.segmenter.CaptureBackground(c.frame)
		switch {
		case errors.Is(err, threshold.ErrBackgroundRejected):
			c.prompter.Say("White screen not picked up. Clean WS.")
			c.display.Show(WindowMain, c.frame)
			if CommandFromKey(c.display.WaitKey(c.keyDelay)) == CommandQuit {
				return c.dispatch(CommandQuit)
			}
			return true, nil
		case err != nil:
			return false, err
		}
		c.state = StateSegmenting
		c.prompter.Say("White screen captured! Starting object recognition...")
	}

	if err := c.process(); err != nil {
		return false, err
	}
	c.render()

	cmd := CommandFromKey(c.display.WaitKey(c.keyDelay))
	return c.dispatch(cmd)
}

// process runs segmentation through tracking on the current frame.
func (c *Controller) process() error {
	done := c.profiler.StartOperation("segment")
	err := c.segmenter.Apply(c.frame, &c.binary)
	done()
	if err != nil {
		return errors.Wrap(err, "controller: segmenting")
	}

	done = c.profiler.StartOperation("clean")
	err = c.cleaner.Clean(c.binary, &c.morphed)
	done()
	if err != nil {
		return errors.Wrap(err, "controller: cleaning mask")
	}

	done = c.profiler.StartOperation("extract")
	regions, err := c.extractor.Extract(c.morphed, &c.labels)
	done()
	if err != nil {
		return errors.Wrap(err, "controller: extracting regions")
	}

	done = c.profiler.StartOperation("features")
	features.ComputeAll(regions)
	done()

	done = c.profiler.StartOperation("classify")
	if c.handcrafted.HasTrainingData() {
		c.handcrafted.PredictAll(regions)
	}
	done()

	if c.embeddingActive() {
		done = c.profiler.StartOperation("embed")
		err := c.embedding.ClassifyAll(c.frame, regions)
		done()
		if err != nil {
			c.logger.Warnw("embedding classification failed", "error", err)
		}
	}

	done = c.profiler.StartOperation("track")
	c.tracker.Assign(regions)
	done()

	c.regions = regions
	c.profiler.RecordMetric("regions", float64(len(regions)))
	return nil
}

func (c *Controller) render() {
	done := c.profiler.StartOperation("render")
	defer done()

	c.frame.CopyTo(&c.overlay)
	images.DrawRegions(&c.overlay, c.regions, images.OverlayOptions{
		FeatureNames:  features.Names[:],
		ShowEmbedding: c.embeddingActive(),
	})

	c.display.Show(WindowMain, c.overlay)
	if c.showThreshold {
		c.display.Show(WindowThreshold, c.binary)
	}
	if c.showMorph {
		c.display.Show(WindowMorph, c.morphed)
	}
}

// dispatch handles one command. It returns false on quit.
func (c *Controller) dispatch(cmd Command) (bool, error) {
	if cmd != CommandNone {
		c.logger.Debugw("command", "command", cmd)
	}

	switch cmd {
	case CommandQuit:
		c.prompter.Say("Terminating program...")
		return false, nil

	case CommandTrain:
		return true, c.trainHandcrafted()

	case CommandTrainEmbedding:
		if c.embedding == nil {
			c.prompter.Say("No embedding model loaded.")
			return true, nil
		}
		return true, c.trainEmbedding()

	case CommandToggleEmbedding:
		if c.embedding == nil {
			c.prompter.Say("No embedding model loaded.")
			return true, nil
		}
		c.showEmbedding = !c.showEmbedding
		c.prompter.Say("Embedding classification enabled: %t", c.showEmbedding)

	case CommandToggleThreshold:
		c.showThreshold = !c.showThreshold
		if !c.showThreshold {
			c.display.Hide(WindowThreshold)
		}

	case CommandToggleMorph:
		c.showMorph = !c.showMorph
		if !c.showMorph {
			c.display.Hide(WindowMorph)
		}

	case CommandResetBackground:
		if c.segmenter.Mode() == threshold.ModeBackground {
			c.segmenter.ResetBackground()
			c.awaitBackground()
		}

	case CommandSnapshot:
		paths, err := c.SaveSnapshots()
		if err != nil {
			c.logger.Errorw("saving snapshots", "error", err)
		}
		for _, p := range paths {
			c.prompter.Say("Saved %s", p)
		}
	}
	return true, nil
}

// trainingError keeps the loop alive when the user closed the prompt input.
func (c *Controller) trainingError(err error) error {
	if errors.Is(err, ErrPromptClosed) {
		c.logger.Warnw("training aborted", "error", err)
		return nil
	}
	return err
}

func (c *Controller) trainHandcrafted() error {
	samples := make([]Sample, 0, len(c.regions))
	for _, r := range c.regions {
		crop, err := images.MaskedCrop(c.frame, c.labels, r.ID, r.Bounds)
		if err != nil {
			crop.Close()
			c.logger.Warnw("skipping region", "region", r.ID, "error", err)
			continue
		}
		samples = append(samples, Sample{Crop: crop, Vector: r.Features})
	}
	defer closeSamples(samples)

	_, err := c.trainer.Session(c.handcrafted, WindowTraining, samples)
	return c.trainingError(err)
}

func (c *Controller) trainEmbedding() error {
	samples := make([]Sample, 0, len(c.regions))
	for _, r := range c.regions {
		crop, err := classifier.Canonicalize(c.frame, r)
		if err != nil {
			crop.Close()
			c.logger.Warnw("skipping region", "region", r.ID, "error", err)
			continue
		}
		vec, err := c.embedding.EmbedCrop(crop)
		if err != nil {
			crop.Close()
			c.logger.Warnw("skipping region", "region", r.ID, "error", err)
			continue
		}
		samples = append(samples, Sample{Crop: crop, Vector: vec})
	}
	defer closeSamples(samples)

	_, err := c.trainer.Session(c.embedding, WindowEmbedding, samples)
	return c.trainingError(err)
}

func closeSamples(samples []Sample) {
	for _, s := range samples {
		s.Crop.Close()
	}
}

// SaveSnapshots writes the original frame, the overlay, the binary mask and the
// cleaned mask of the last processed frame.
//
// Returns:
//   - []string: The paths written.
//   - error: Every write failure, combined.
func (c *Controller) SaveSnapshots() ([]string, error) {
	at := c.now()
	shots := []struct {
		prefix string
		img    gocv.Mat
	}{
		{SnapshotOriginal, c.frame},
		{SnapshotOverlay, c.overlay},
		{SnapshotThreshold, c.binary},
		{SnapshotMorphed, c.morphed},
	}

	var written []string
	var err error
	for _, s := range shots {
		if s.img.Empty() {
			continue
		}
		path := util.SnapshotPath(c.config.Snapshots.Dir, s.prefix, at, c.config.Snapshots.Format)
		if werr := images.WriteFrame(path, s.img); werr != nil {
			err = multierr.Append(err, werr)
			continue
		}
		written = append(written, path)
	}
	return written, err
}

// Flush persists the examples added to both classifiers this session.
func (c *Controller) Flush() error {
	n, err := c.handcrafted.Flush()
	if err == nil && n > 0 {
		c.logger.Infow("hand-crafted examples appended", "count", n)
	}
	if c.embedding != nil {
		m, eerr := c.embedding.Flush()
		if eerr == nil && m > 0 {
			c.logger.Infow("embedding examples appended", "count", m)
		}
		err = multierr.Append(err, eerr)
	}
	return err
}

// Run loops Step until the user quits, the source runs dry or ctx is cancelled,
// then flushes both classifiers.
//
// Returns:
//   - error: nil on quit or cancellation, otherwise the Step error combined with
//     any flush error.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, c.Flush())
	}()

	for {
		ok, stepErr := c.Step(ctx)
		if stepErr != nil {
			if errors.Is(stepErr, context.Canceled) || errors.Is(stepErr, context.DeadlineExceeded) {
				c.logger.Infow("stopping", "reason", stepErr)
				return nil
			}
			return stepErr
		}
		if !ok {
			return nil
		}
	}
}

// Close releases the pipeline, the source, the display and the embedding model.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.segmenter.Close()
	c.cleaner.Close()
	for _, m := range []*gocv.Mat{&c.frame, &c.binary, &c.morphed, &c.labels, &c.overlay} {
		m.Close()
	}

	err := multierr.Combine(c.source.Close(), c.display.Close())
	if c.embedding != nil {
		err = multierr.Append(err, c.embedding.Close())
	}
	return err
}
