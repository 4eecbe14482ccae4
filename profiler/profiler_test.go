package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecordDuration(t *testing.T) {
	p := New(Options{}, nil)
	for _, ms := range []int{4, 2, 6} {
		p.RecordDuration("segment", time.Duration(ms)*time.Millisecond)
	}
	p.RecordDuration("extract", time.Millisecond)

	ops := p.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, "extract", ops[0].Name)

	seg := ops[1]
	assert.Equal(t, "segment", seg.Name)
	assert.Equal(t, int64(3), seg.Count)
	assert.InDelta(t, 4, seg.Mean, 1e-9)
	assert.InDelta(t, 2, seg.Min, 1e-9)
	assert.InDelta(t, 6, seg.Max, 1e-9)
}

func TestMaxSamples(t *testing.T) {
	p := New(Options{MaxSamples: 2}, nil)
	for _, v := range []float64{100, 1, 3} {
		p.RecordMetric("regions", v)
	}

	m := p.Metrics()
	require.Len(t, m, 1)
	assert.Equal(t, int64(3), m[0].Count)
	assert.InDelta(t, 2, m[0].Mean, 1e-9)
	assert.InDelta(t, 1, m[0].Min, 1e-9)
	assert.InDelta(t, 3, m[0].Max, 1e-9)
}

func TestStartOperation(t *testing.T) {
	p := New(Options{}, nil)
	done := p.StartOperation("classify")
	done()

	ops := p.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, int64(1), ops[0].Count)
	assert.GreaterOrEqual(t, ops[0].Mean, 0.0)
}

func TestFrameReports(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := New(Options{ReportEvery: 3}, zap.New(core).Sugar())
	p.RecordDuration("segment", time.Millisecond)

	var reported []bool
	for i := 0; i < 6; i++ {
		reported = append(reported, p.Frame())
	}

	assert.Equal(t, []bool{false, false, true, false, false, true}, reported)
	assert.Equal(t, int64(6), p.Frames())
	assert.Equal(t, 2, logs.FilterMessage("pipeline status").Len())
	assert.Equal(t, 2, logs.FilterMessage("stage timing").Len())
}

func TestFrameReportingDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := New(Options{}, zap.New(core).Sugar())
	for i := 0; i < 10; i++ {
		assert.False(t, p.Frame())
	}
	assert.Equal(t, 0, logs.Len())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
