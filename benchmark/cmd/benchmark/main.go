// Package main replays a frame corpus through the recognition pipeline under
// several configurations and saves the timings.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-objrec/benchmark"
	"github.com/nvr-ai/go-objrec/config"
)

func main() {
	app := &cli.App{
		Name:  "benchmark",
		Usage: "benchmark the recognition pipeline on recorded frames",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "frames",
				Usage:    "`DIR` holding frame-N images",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "pipeline configuration `FILE`",
			},
			&cli.StringFlag{
				Name:  "scenarios",
				Usage: "JSON scenario `FILE`; quick scenarios are used without it",
			},
			&cli.StringFlag{
				Name:  "output",
				Value: "./benchmark_results",
				Usage: "output `DIR` for results",
			},
			&cli.BoolFlag{
				Name:  "formats",
				Usage: "also compare frame encodings",
			},
			&cli.IntFlag{
				Name:  "passes",
				Value: 3,
				Usage: "replays of the corpus per format scenario",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Minute,
				Usage: "benchmark timeout duration",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	l, err := zap.NewDevelopment()
	if err != nil {
		return errors.Wrap(err, "building logger")
	}
	logger := l.Sugar()
	//nolint:errcheck
	defer logger.Sync()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	suite, err := benchmark.NewSuite(benchmark.NewSuiteArgs{
		Config:     cfg,
		FramesDir:  c.String("frames"),
		OutputPath: c.String("output"),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	scenarios := benchmark.QuickScenarios()
	if path := c.String("scenarios"); path != "" {
		if scenarios, err = benchmark.LoadScenarios(path); err != nil {
			return err
		}
	}
	if c.Bool("formats") {
		scenarios = append(scenarios, benchmark.FormatScenarios(c.Int("passes"))...)
	}
	for _, s := range scenarios {
		suite.AddScenario(s)
	}
	logger.Infow("starting benchmark", "scenarios", len(scenarios))

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	start := time.Now()
	if err := suite.RunAllScenarios(ctx); err != nil {
		return errors.Wrap(err, "benchmark execution failed")
	}

	var best benchmark.PerformanceMetrics
	for _, r := range suite.GetResults() {
		if r.FramesPerSecond > best.FramesPerSecond {
			best = r
		}
		fmt.Printf("  %s: %.2f FPS, %.2f regions/frame (%.2f MB memory)\n",
			r.Scenario.Name,
			r.FramesPerSecond,
			r.MeanRegions,
			float64(r.MemoryStats.AllocBytes)/(1024*1024))
	}
	fmt.Printf("\nBest performing scenario: %s (%.2f FPS)\n", best.Scenario.Name, best.FramesPerSecond)
	logger.Infow("benchmark completed", "duration", time.Since(start))
	return nil
}
