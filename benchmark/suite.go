package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-objrec/classifier"
	"github.com/nvr-ai/go-objrec/config"
	"github.com/nvr-ai/go-objrec/controller"
	"github.com/nvr-ai/go-objrec/features"
	"github.com/nvr-ai/go-objrec/store"
	"github.com/nvr-ai/go-objrec/util"
)

// Suite manages and executes benchmark scenarios
type Suite struct {
	config    config.Config
	corpus    []util.ImageFile
	outputDir string
	now       func() time.Time
	logger    *zap.SugaredLogger

	mu        sync.RWMutex
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuiteArgs represents the arguments for creating a new benchmark suite.
type NewSuiteArgs struct {
	// Config is the pipeline configuration scenarios start from.
	Config config.Config
	// FramesDir holds frame-N images. Ignored when Corpus is set.
	FramesDir string
	// Corpus is an already loaded frame corpus.
	Corpus []util.ImageFile
	// OutputPath is the directory results are saved to.
	OutputPath string
	// Logger is the logger to use. A no-op logger is used when nil.
	Logger *zap.SugaredLogger
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - args: The arguments for creating a new benchmark suite.
//
// Returns:
//   - *Suite: The benchmark suite.
//   - error: An error if the corpus cannot be loaded or is empty.
func NewSuite(args NewSuiteArgs) (*Suite, error) {
	logger := args.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	corpus := args.Corpus
	if corpus == nil {
		var err error
		if corpus, err = util.LoadDirectoryImageFiles(args.FramesDir); err != nil {
			return nil, err
		}
	}
	if len(corpus) == 0 {
		return nil, errors.New("benchmark: empty frame corpus")
	}

	return &Suite{
		config:    args.Config,
		corpus:    corpus,
		outputDir: args.OutputPath,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// Scenarios returns the configured scenarios.
func (bs *Suite) Scenarios() []Scenario {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]Scenario(nil), bs.scenarios...)
}

func (bs *Suite) scenarioConfig(scenario Scenario) (config.Config, error) {
	cfg := bs.config
	if scenario.Mode != "" {
		cfg.Mode = scenario.Mode
	}
	if scenario.Matcher != "" {
		cfg.Tracker.Matcher = scenario.Matcher
	}
	cfg.ReportEvery = 0
	return cfg, cfg.Validate()
}

// RunScenario replays the corpus through a headless pipeline.
//
// Arguments:
//   - ctx: Cancelling ctx stops the replay.
//   - scenario: The scenario to run.
//
// Returns:
//   - *PerformanceMetrics: The measurements.
//   - error: An error if the scenario is invalid or the pipeline fails.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	cfg, err := bs.scenarioConfig(scenario)
	if err != nil {
		return nil, errors.Wrapf(err, "benchmark: scenario %s", scenario.Name)
	}

	corpus := bs.corpus
	if scenario.ImageFormat != "" {
		if corpus, err = transcode(corpus, scenario.ImageFormat); err != nil {
			return nil, errors.Wrapf(err, "benchmark: scenario %s", scenario.Name)
		}
	}

	s, err := store.Open(cfg.Database, features.Dim, bs.logger.Named("store"))
	if err != nil {
		return nil, err
	}
	handcrafted, err := classifier.NewHandcrafted(s, cfg.Handcrafted, nil)
	if err != nil {
		return nil, err
	}

	source := newCorpusSource(corpus, scenario.Passes, bs.logger.Named(scenario.Name))
	ctrl, err := controller.New(controller.Options{
		Config:      cfg,
		Source:      source,
		Display:     controller.NewHeadlessDisplay(),
		Prompter:    controller.NewLinePrompter(strings.NewReader(""), io.Discard),
		Handcrafted: handcrafted,
		KeyDelay:    1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "benchmark: scenario %s", scenario.Name)
	}
	defer ctrl.Close()

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: bs.now(),
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)
	start := time.Now()

	for {
		waiting := ctrl.State() == controller.StateAwaitingBackground
		_, err := ctrl.Step(ctx)
		if errors.Is(err, controller.ErrEmptyFrame) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "benchmark: scenario %s", scenario.Name)
		}
		metrics.Frames++
		if waiting && ctrl.State() == controller.StateAwaitingBackground {
			metrics.BackgroundFrames++
			continue
		}
		metrics.Regions += len(ctrl.Regions())
	}

	metrics.TotalDuration = time.Since(start)
	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	if secs := metrics.TotalDuration.Seconds(); secs > 0 {
		metrics.FramesPerSecond = float64(metrics.Frames) / secs
	}
	if processed := metrics.Frames - metrics.BackgroundFrames; processed > 0 {
		metrics.MeanRegions = float64(metrics.Regions) / float64(processed)
	}
	if source.attempts() > 0 {
		metrics.ErrorRate = float64(source.failures) / float64(source.attempts())
	}
	metrics.Stages = ctrl.Profiler().Operations()
	metrics.MemoryStats = memoryDelta(startMem, endMem)
	metrics.CPUStats = CPUMetrics{NumCPU: runtime.NumCPU(), GOMAXPROCS: runtime.GOMAXPROCS(0)}
	return metrics, nil
}

// RunAllScenarios executes all configured benchmark scenarios and saves the
// results. A failing scenario is logged and skipped.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	for _, scenario := range bs.Scenarios() {
		if err := ctx.Err(); err != nil {
			return err
		}
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			bs.logger.Errorw("scenario failed", "scenario", scenario.Name, "error", err)
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.Infow("scenario completed",
			"scenario", scenario.Name,
			"fps", metrics.FramesPerSecond,
			"frames", metrics.Frames,
			"mean_regions", metrics.MeanRegions,
		)
	}

	_, err := bs.SaveResults()
	return err
}

// SaveResults persists benchmark results as JSON with a CSV summary next to it.
//
// Returns:
//   - []string: The files written.
//   - error: An error if the output directory or a file cannot be written.
func (bs *Suite) SaveResults() ([]string, error) {
	results := bs.GetResults()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "benchmark: creating output directory")
	}

	timestamp := bs.now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "benchmark: marshalling results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return nil, errors.Wrap(err, "benchmark: writing results")
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return nil, errors.Wrap(err, "benchmark: writing summary")
	}

	bs.logger.Infow("results saved", "results", resultsFile, "summary", summaryFile)
	return []string{resultsFile, summaryFile}, nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{
		"scenario", "mode", "matcher", "format", "fps", "total_duration_ms",
		"frames", "background_frames", "mean_regions", "alloc_mb", "error_rate",
	}); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write([]string{
			r.Scenario.Name,
			r.Scenario.Mode,
			r.Scenario.Matcher,
			string(r.Scenario.ImageFormat),
			fmt.Sprintf("%.2f", r.FramesPerSecond),
			fmt.Sprintf("%.2f", float64(r.TotalDuration.Nanoseconds())/1e6),
			cast.ToString(r.Frames),
			cast.ToString(r.BackgroundFrames),
			fmt.Sprintf("%.3f", r.MeanRegions),
			fmt.Sprintf("%.2f", float64(r.MemoryStats.AllocBytes)/(1024*1024)),
			fmt.Sprintf("%.4f", r.ErrorRate),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]PerformanceMetrics{}, bs.results...)
}
