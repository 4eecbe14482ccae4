// Package profiler times the stages of the recognition pipeline.
package profiler

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// Options configures the profiler.
type Options struct {
	// ReportEvery emits a report after this many frames. Zero disables reporting.
	ReportEvery int
	// MaxSamples is the number of recent samples kept per operation (default: 600).
	MaxSamples int
}

// Profiler records per-stage durations and per-frame metrics. It is driven by
// the frame loop: Frame marks the end of one iteration and emits a report every
// ReportEvery frames.
type Profiler struct {
	mu          sync.Mutex
	reportEvery int
	maxSamples  int
	startTime   time.Time
	frames      int64
	lastGCCount uint32
	operations  map[string]*TimeTracker
	metrics     map[string]*MetricTracker
	logger      *zap.SugaredLogger
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []float64
	count     int64
	min       time.Duration
	max       time.Duration
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	values []float64
	count  int64
}

// Summary is a snapshot of one tracked series. Durations are in milliseconds.
type Summary struct {
	Name  string  `json:"name"`
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	P95   float64 `json:"p95"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// New creates a profiler.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//   - logger: The logger reports are written to. A no-op logger is used when nil.
//
// Returns:
//   - *Profiler: A configured profiler.
func New(opts Options, logger *zap.SugaredLogger) *Profiler {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Profiler{
		reportEvery: opts.ReportEvery,
		maxSamples:  opts.MaxSamples,
		startTime:   time.Now(),
		operations:  make(map[string]*TimeTracker),
		metrics:     make(map[string]*MetricTracker),
		logger:      logger,
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration records the completion time of an operation.
func (p *Profiler) RecordDuration(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, ok := p.operations[name]
	if !ok {
		tracker = &TimeTracker{min: d, max: d}
		p.operations[name] = tracker
	}
	tracker.durations = append(tracker.durations, float64(d)/float64(time.Millisecond))
	if len(tracker.durations) > p.maxSamples {
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++
	if d < tracker.min {
		tracker.min = d
	}
	if d > tracker.max {
		tracker.max = d
	}
}

// RecordMetric records a custom metric value.
func (p *Profiler) RecordMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, ok := p.metrics[name]
	if !ok {
		tracker = &MetricTracker{}
		p.metrics[name] = tracker
	}
	tracker.values = append(tracker.values, value)
	if len(tracker.values) > p.maxSamples {
		tracker.values = tracker.values[1:]
	}
	tracker.count++
}

// Frame marks the end of a pipeline iteration and reports when due.
//
// Returns:
//   - bool: Whether a report was emitted.
func (p *Profiler) Frame() bool {
	p.mu.Lock()
	p.frames++
	due := p.reportEvery > 0 && p.frames%int64(p.reportEvery) == 0
	p.mu.Unlock()

	if due {
		p.Report()
	}
	return due
}

// Frames returns the number of completed frames.
func (p *Profiler) Frames() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Operations returns a summary per timed operation, sorted by name.
func (p *Profiler) Operations() []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Summary, 0, len(p.operations))
	for name, tracker := range p.operations {
		s := summarize(name, tracker.count, tracker.durations)
		s.Min = float64(tracker.min) / float64(time.Millisecond)
		s.Max = float64(tracker.max) / float64(time.Millisecond)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Metrics returns a summary per custom metric over the retained samples, sorted by name.
func (p *Profiler) Metrics() []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Summary, 0, len(p.metrics))
	for name, tracker := range p.metrics {
		s := summarize(name, tracker.count, tracker.values)
		s.Min, _ = stats.Min(tracker.values)
		s.Max, _ = stats.Max(tracker.values)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func summarize(name string, count int64, values []float64) Summary {
	s := Summary{Name: name, Count: count}
	if len(values) == 0 {
		return s
	}
	s.Mean, _ = stats.Mean(values)
	s.P95, _ = stats.Percentile(values, 95)
	return s
}

// Report logs the current statistics.
func (p *Profiler) Report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.Lock()
	uptime := time.Since(p.startTime)
	frames := p.frames
	newGC := mem.NumGC - p.lastGCCount
	p.lastGCCount = mem.NumGC
	p.mu.Unlock()

	fps := 0.0
	if uptime > 0 {
		fps = float64(frames) / uptime.Seconds()
	}
	p.logger.Infow("pipeline status",
		"uptime", uptime.Truncate(time.Millisecond),
		"frames", frames,
		"fps", fmt.Sprintf("%.1f", fps),
		"heap_alloc", formatBytes(mem.HeapAlloc),
		"gc_cycles", mem.NumGC,
		"gc_new", newGC,
	)

	for _, s := range p.Operations() {
		p.logger.Infow("stage timing",
			"stage", s.Name,
			"avg_ms", fmt.Sprintf("%.2f", s.Mean),
			"p95_ms", fmt.Sprintf("%.2f", s.P95),
			"max_ms", fmt.Sprintf("%.2f", s.Max),
			"count", s.Count,
		)
	}
	for _, s := range p.Metrics() {
		p.logger.Infow("metric",
			"name", s.Name,
			"avg", fmt.Sprintf("%.2f", s.Mean),
			"min", s.Min,
			"max", s.Max,
		)
	}
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
