// Package main is the real-time object recognition command.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nvr-ai/go-objrec/classifier"
	"github.com/nvr-ai/go-objrec/config"
	"github.com/nvr-ai/go-objrec/controller"
	"github.com/nvr-ai/go-objrec/features"
	"github.com/nvr-ai/go-objrec/images"
	"github.com/nvr-ai/go-objrec/inference"
	"github.com/nvr-ai/go-objrec/region"
	"github.com/nvr-ai/go-objrec/store"
	"github.com/nvr-ai/go-objrec/util"
)

const (
	// Flags.
	flagConfig       = "config"
	flagDebug        = "debug"
	flagDB           = "db"
	flagEmbeddingDB  = "embedding-db"
	flagModel        = "model"
	flagModelBackend = "model-backend"
	flagORTLib       = "ort-lib"
	flagMode         = "mode"
	flagDevice       = "device"
	flagVideo        = "video"
	flagFramesDir    = "frames-dir"
	flagMinArea      = "min-area"
	flagSnapshotDir  = "snapshot-dir"
	flagReportEvery  = "report-every"
	flagResolution   = "resolution"
)

func main() {
	var logger *zap.SugaredLogger

	app := &cli.App{
		Name:      "rtor",
		Usage:     "recognize and train objects on a white surface in real time",
		UsageText: "rtor [options] [DATABASE.csv]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagDB,
				Usage: "hand-crafted feature database `FILE` (.csv), also accepted as the first argument",
			},
			&cli.StringFlag{
				Name:  flagEmbeddingDB,
				Usage: "embedding database `FILE`, created on first save",
			},
			&cli.StringFlag{
				Name:  flagModel,
				Usage: "ONNX embedding model `FILE`; embedding classification is off without it",
			},
			&cli.StringFlag{
				Name:  flagModelBackend,
				Usage: "embedding runtime (opencv|onnxruntime)",
			},
			&cli.StringFlag{
				Name:  flagORTLib,
				Usage: "onnxruntime shared library `FILE`",
			},
			&cli.StringFlag{
				Name:  flagMode,
				Usage: "thresholding mode (clustering|background)",
			},
			&cli.IntFlag{
				Name:  flagDevice,
				Usage: "video capture device `ID`",
			},
			&cli.StringFlag{
				Name:  flagResolution,
				Usage: "camera frame size, a name such as 720p or WIDTHxHEIGHT",
			},
			&cli.StringFlag{
				Name:  flagVideo,
				Usage: "read frames from a video `FILE` instead of a camera",
			},
			&cli.StringFlag{
				Name:  flagFramesDir,
				Usage: "replay frame-<n> images from `DIR`",
			},
			&cli.Float64Flag{
				Name:  flagMinArea,
				Usage: "minimum region area in pixels",
			},
			&cli.StringFlag{
				Name:  flagSnapshotDir,
				Usage: "write snapshots to `DIR`",
			},
			&cli.IntFlag{
				Name:  flagReportEvery,
				Usage: "log pipeline timing every `N` frames; 0 disables",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			logger, err = newLogger(c.Bool(flagDebug))
			return err
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				//nolint:errcheck
				logger.Sync()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return l.Sugar(), nil
}

// loadConfig reads the configuration file and applies the flags set on the
// command line over it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return cfg, err
	}

	if c.Args().Present() {
		cfg.Database = c.Args().First()
	}
	if c.IsSet(flagDB) {
		cfg.Database = c.String(flagDB)
	}
	if c.IsSet(flagEmbeddingDB) {
		cfg.EmbeddingDatabase = c.String(flagEmbeddingDB)
	}
	if c.IsSet(flagModel) {
		cfg.Model.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagModelBackend) {
		backend, err := inference.ParseBackend(c.String(flagModelBackend))
		if err != nil {
			return cfg, err
		}
		cfg.Model.Backend = backend
	}
	if c.IsSet(flagORTLib) {
		cfg.Model.SharedLibPath = c.String(flagORTLib)
	}
	if c.IsSet(flagMode) {
		cfg.Mode = c.String(flagMode)
	}
	if c.IsSet(flagDevice) {
		cfg.Source.Device = c.Int(flagDevice)
	}
	if c.IsSet(flagResolution) {
		cfg.Source.Resolution = c.String(flagResolution)
	}
	if c.IsSet(flagVideo) {
		cfg.Source.Video = c.String(flagVideo)
	}
	if c.IsSet(flagFramesDir) {
		cfg.Source.FramesDir = c.String(flagFramesDir)
	}
	if c.IsSet(flagMinArea) {
		cfg.Extractor.MinArea = c.Float64(flagMinArea)
	}
	if c.IsSet(flagSnapshotDir) {
		cfg.Snapshots.Dir = c.String(flagSnapshotDir)
	}
	if c.IsSet(flagReportEvery) {
		cfg.ReportEvery = c.Int(flagReportEvery)
	}
	return cfg, cfg.Validate()
}

func openSource(cfg config.SourceConfig, logger *zap.SugaredLogger) (controller.FrameSource, error) {
	switch {
	case cfg.FramesDir != "":
		return controller.NewDirectorySource(cfg.FramesDir, logger.Named("source"))
	case cfg.Video != "":
		return controller.NewCaptureSource(cfg.Video, images.Resolution{}, logger.Named("source"))
	default:
		res, err := images.ParseResolution(cfg.Resolution)
		if err != nil {
			return nil, err
		}
		return controller.NewCaptureSource(cfg.Device, res, logger.Named("source"))
	}
}

// openEmbedding loads the embedding model and its store. A missing or broken
// model leaves the recognizer running on hand-crafted features alone.
func openEmbedding(cfg config.Config, logger *zap.SugaredLogger) *classifier.Embedding {
	if cfg.Model.ModelPath == "" {
		logger.Infow("no embedding model configured")
		return nil
	}

	embedder, err := inference.NewEmbedder(cfg.Model, logger.Named("inference"))
	if err != nil {
		logger.Warnw("embedding model unavailable, using hand-crafted features only", "error", err)
		return nil
	}
	s, err := store.Open(cfg.EmbeddingDatabase, embedder.Dim(), logger.Named("store"))
	if err != nil {
		embedder.Close()
		logger.Warnw("embedding database unavailable, using hand-crafted features only", "error", err)
		return nil
	}
	emb, err := classifier.NewEmbedding(embedder, s, cfg.Embedding, logger.Named("embedding"))
	if err != nil {
		embedder.Close()
		logger.Warnw("embedding classifier unavailable", "error", err)
		return nil
	}
	return emb
}

func run(c *cli.Context, logger *zap.SugaredLogger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := util.CheckFile(cfg.Database, ".csv"); err != nil {
		return errors.Wrap(err, "hand-crafted database")
	}

	s, err := store.Open(cfg.Database, features.Dim, logger.Named("store"))
	if err != nil {
		return err
	}
	handcrafted, err := classifier.NewHandcrafted(s, cfg.Handcrafted, logger.Named("handcrafted"))
	if err != nil {
		return err
	}
	embedding := openEmbedding(cfg, logger)

	source, err := openSource(cfg.Source, logger)
	if err != nil {
		if embedding != nil {
			embedding.Close()
		}
		return err
	}

	ctrl, err := controller.New(controller.Options{
		Config:      cfg,
		Source:      source,
		Display:     controller.NewWindowDisplay(),
		Prompter:    controller.NewLinePrompter(os.Stdin, os.Stdout),
		Handcrafted: handcrafted,
		Embedding:   embedding,
		Colors:      region.RandomColors(),
		Logger:      logger,
	})
	if err != nil {
		source.Close()
		if embedding != nil {
			embedding.Close()
		}
		return err
	}
	defer func() {
		if cerr := ctrl.Close(); cerr != nil {
			logger.Warnw("closing", "error", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = ctrl.Run(ctx)
	if dir, ok := source.(*controller.DirectorySource); ok && errors.Is(err, controller.ErrEmptyFrame) {
		if dir.Skipped() == dir.Len() {
			return errors.Errorf("no frame in %s could be decoded", cfg.Source.FramesDir)
		}
		if dir.Skipped() > 0 {
			logger.Warnw("replay skipped undecodable frames", "skipped", dir.Skipped(), "frames", dir.Len())
		}
		logger.Infow("replay finished", "frames", ctrl.Profiler().Frames())
		return nil
	}
	return err
}
