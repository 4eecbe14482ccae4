package controller

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-objrec/classifier"
	"github.com/nvr-ai/go-objrec/config"
	"github.com/nvr-ai/go-objrec/features"
	"github.com/nvr-ai/go-objrec/region"
	"github.com/nvr-ai/go-objrec/store"
)

// sliceSource replays a fixed list of frames.
type sliceSource struct {
	frames []gocv.Mat
	next   int
	closed bool
}

func (s *sliceSource) Read(dst *gocv.Mat) bool {
	if s.next >= len(s.frames) {
		return false
	}
	s.frames[s.next].CopyTo(dst)
	s.next++
	return true
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// meanEmbedder embeds an image as its mean BGR color.
type meanEmbedder struct {
	calls  int
	closed bool
}

func (m *meanEmbedder) Embed(img gocv.Mat) ([]float32, error) {
	m.calls++
	mean := img.Mean()
	return []float32{float32(mean.Val1), float32(mean.Val2), float32(mean.Val3)}, nil
}

func (m *meanEmbedder) Dim() int { return 3 }

func (m *meanEmbedder) Close() error {
	m.closed = true
	return nil
}

func whiteFrame(t *testing.T) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return frame
}

// objectFrame is a white frame with a dark 200x100 rectangle.
func objectFrame(t *testing.T) gocv.Mat {
	t.Helper()
	frame := whiteFrame(t)
	gocv.Rectangle(&frame, image.Rect(200, 150, 400, 250), color.RGBA{R: 20, G: 20, B: 20}, -1)
	return frame
}

func repeat(m gocv.Mat, n int) []gocv.Mat {
	out := make([]gocv.Mat, n)
	for i := range out {
		out[i] = m
	}
	return out
}

type harness struct {
	ctrl     *Controller
	source   *sliceSource
	display  *HeadlessDisplay
	out      *bytes.Buffer
	embedder *meanEmbedder
	config   config.Config
}

type harnessOptions struct {
	frames    []gocv.Mat
	keys      []int
	answers   string
	mode      string
	embedding bool
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Database = filepath.Join(dir, "db.csv")
	cfg.EmbeddingDatabase = filepath.Join(dir, "embeddings.csv")
	cfg.Snapshots.Dir = dir
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}

	s, err := store.Open(cfg.Database, features.Dim, nil)
	require.NoError(t, err)
	hc, err := classifier.NewHandcrafted(s, cfg.Handcrafted, nil)
	require.NoError(t, err)

	h := &harness{
		source:  &sliceSource{frames: opts.frames},
		display: NewHeadlessDisplay(opts.keys...),
		out:     &bytes.Buffer{},
		config:  cfg,
	}

	var emb *classifier.Embedding
	if opts.embedding {
		h.embedder = &meanEmbedder{}
		es, err := store.Open(cfg.EmbeddingDatabase, 0, nil)
		require.NoError(t, err)
		emb, err = classifier.NewEmbedding(h.embedder, es, cfg.Embedding, nil)
		require.NoError(t, err)
	}

	n := 0
	colors := func() color.RGBA {
		n++
		return color.RGBA{R: uint8(n), G: 100, B: 200, A: 255}
	}

	h.ctrl, err = New(Options{
		Config:      cfg,
		Source:      h.source,
		Display:     h.display,
		Prompter:    NewLinePrompter(strings.NewReader(opts.answers), h.out),
		Handcrafted: hc,
		Embedding:   emb,
		Colors:      colors,
		Now:         func() time.Time { return time.Unix(1700000000, 0) },
		KeyDelay:    1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

func (h *harness) step(t *testing.T) bool {
	t.Helper()
	ok, err := h.ctrl.Step(context.Background())
	require.NoError(t, err)
	return ok
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Config: config.Default()})
	assert.Error(t, err)
}

func TestStepDetectsObject(t *testing.T) {
	h := newHarness(t, harnessOptions{frames: []gocv.Mat{objectFrame(t)}})

	assert.True(t, h.step(t))
	regions := h.ctrl.Regions()
	require.Len(t, regions, 1)

	r := regions[0]
	assert.Equal(t, region.Unknown, r.Label)
	assert.InDelta(t, 20000, r.Area, 400)
	assert.InDelta(t, 299.5, r.Centroid.X, 1)
	assert.InDelta(t, 199.5, r.Centroid.Y, 1)
	assert.InDelta(t, 0, r.Angle, 0.01)
	assert.Len(t, r.Features, features.Dim)
	assert.Equal(t, 1, h.display.Shown(WindowMain))
	assert.Equal(t, StateSegmenting, h.ctrl.State())
}

func TestStepEmptySource(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	ok, err := h.ctrl.Step(context.Background())
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrEmptyFrame))
}

func TestStepCancelled(t *testing.T) {
	h := newHarness(t, harnessOptions{frames: []gocv.Mat{objectFrame(t)}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ctrl.Step(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, h.source.next, "no frame is read after cancellation")
	assert.NoError(t, h.ctrl.Run(ctx))
}

func TestTrackerKeepsColorAcrossFrames(t *testing.T) {
	frame := objectFrame(t)
	h := newHarness(t, harnessOptions{frames: repeat(frame, 3)})

	var colors []color.RGBA
	for i := 0; i < 3; i++ {
		h.step(t)
		require.Len(t, h.ctrl.Regions(), 1)
		colors = append(colors, h.ctrl.Regions()[0].Color)
	}
	assert.Equal(t, colors[0], colors[1])
	assert.Equal(t, colors[1], colors[2])
}

// An object trained on one frame is recognized on the next, and the new example
// is persisted.
func TestTrainThenRecognize(t *testing.T) {
	frame := objectFrame(t)
	h := newHarness(t, harnessOptions{
		frames:  repeat(frame, 3),
		keys:    []int{'n', 'a', -1, 'q'},
		answers: "mug\ny\n",
	})

	assert.True(t, h.step(t))
	assert.Equal(t, 1, h.display.Shown(WindowTraining))

	assert.True(t, h.step(t))
	regions := h.ctrl.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, "mug", regions[0].Label)
	assert.InDelta(t, 1, regions[0].Confidence, 1e-6)

	assert.False(t, h.step(t), "q quits")

	data, err := os.ReadFile(h.config.Database)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "mug,"))
	assert.Len(t, strings.Split(lines[0], ","), features.Dim+1)

	assert.Contains(t, h.out.String(), "Terminating program...")
}

func TestRunFlushesAndQuits(t *testing.T) {
	frame := objectFrame(t)
	h := newHarness(t, harnessOptions{
		frames:  repeat(frame, 5),
		keys:    []int{'n', 'a', 'q'},
		answers: "key\ny\n",
	})

	require.NoError(t, h.ctrl.Run(context.Background()))
	assert.Equal(t, 2, h.source.next)

	data, err := os.ReadFile(h.config.Database)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"), "the example is written exactly once")
}

func TestRunStopsOnEmptySource(t *testing.T) {
	h := newHarness(t, harnessOptions{frames: []gocv.Mat{objectFrame(t)}})

	err := h.ctrl.Run(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyFrame))
	assert.Equal(t, int64(1), h.ctrl.Profiler().Frames())
}

func TestToggleDiagnosticWindows(t *testing.T) {
	frame := objectFrame(t)
	h := newHarness(t, harnessOptions{
		frames: repeat(frame, 4),
		keys:   []int{'t', 'm', 't', -1},
	})

	h.step(t)
	assert.False(t, h.display.IsOpen(WindowThreshold))

	h.step(t)
	assert.Equal(t, 1, h.display.Shown(WindowThreshold))
	assert.False(t, h.display.IsOpen(WindowMorph))

	h.step(t)
	assert.False(t, h.display.IsOpen(WindowThreshold))
	assert.Equal(t, 2, h.display.Shown(WindowThreshold))
	assert.Equal(t, 1, h.display.Shown(WindowMorph))

	h.step(t)
	assert.Equal(t, 2, h.display.Shown(WindowThreshold), "hidden windows are not redrawn")
	assert.Equal(t, 2, h.display.Shown(WindowMorph))
	assert.True(t, h.display.IsOpen(WindowMorph))
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, harnessOptions{
		frames: []gocv.Mat{objectFrame(t)},
		keys:   []int{'s'},
	})

	h.step(t)
	for _, prefix := range []string{SnapshotOriginal, SnapshotOverlay, SnapshotThreshold, SnapshotMorphed} {
		path := filepath.Join(h.config.Snapshots.Dir, prefix+"1700000000.png")
		info, err := os.Stat(path)
		require.NoError(t, err, prefix)
		assert.Greater(t, info.Size(), int64(0))
		assert.Contains(t, h.out.String(), path)
	}
}

func TestBackgroundMode(t *testing.T) {
	object := objectFrame(t)
	empty := whiteFrame(t)
	h := newHarness(t, harnessOptions{
		mode:   "background",
		frames: []gocv.Mat{object, empty, object, object, empty, object},
		keys:   []int{-1, -1, -1, 'w', -1, -1},
	})
	assert.Equal(t, StateAwaitingBackground, h.ctrl.State())

	// An occupied surface is rejected.
	assert.True(t, h.step(t))
	assert.Equal(t, StateAwaitingBackground, h.ctrl.State())
	assert.Nil(t, h.ctrl.Regions())
	assert.Contains(t, h.out.String(), "White screen not picked up.")

	// The empty surface is accepted and processed in the same step.
	assert.True(t, h.step(t))
	assert.Equal(t, StateSegmenting, h.ctrl.State())
	assert.Empty(t, h.ctrl.Regions())

	assert.True(t, h.step(t))
	require.Len(t, h.ctrl.Regions(), 1)
	assert.InDelta(t, 20000, h.ctrl.Regions()[0].Area, 400)

	// w drops the reference.
	assert.True(t, h.step(t))
	assert.Equal(t, StateAwaitingBackground, h.ctrl.State())

	assert.True(t, h.step(t))
	assert.Equal(t, StateSegmenting, h.ctrl.State())
	assert.True(t, h.step(t))
	assert.Len(t, h.ctrl.Regions(), 1)
}

func TestResetBackgroundIgnoredInClusteringMode(t *testing.T) {
	frame := objectFrame(t)
	h := newHarness(t, harnessOptions{frames: repeat(frame, 2), keys: []int{'w'}})

	h.step(t)
	assert.Equal(t, StateSegmenting, h.ctrl.State())
	h.step(t)
	assert.Len(t, h.ctrl.Regions(), 1)
}

func TestEmbeddingTrainAndRecognize(t *testing.T) {
	frame := objectFrame(t)
	h := newHarness(t, harnessOptions{
		frames:    repeat(frame, 4),
		keys:      []int{'N', 'a', -1, 'r', -1},
		answers:   "mug\ny\n",
		embedding: true,
	})

	h.step(t)
	assert.Equal(t, 1, h.display.Shown(WindowEmbedding))
	calls := h.embedder.calls
	assert.Equal(t, 1, calls)

	h.step(t)
	require.Len(t, h.ctrl.Regions(), 1)
	assert.Equal(t, "mug", h.ctrl.Regions()[0].EmbeddingLabel)
	assert.InDelta(t, 0, h.ctrl.Regions()[0].EmbeddingDistance, 1e-6)
	assert.Equal(t, region.Unknown, h.ctrl.Regions()[0].Label, "hand-crafted store is untouched")

	// r turns embedding classification off.
	h.step(t)
	calls = h.embedder.calls
	h.step(t)
	assert.Equal(t, calls, h.embedder.calls)
	assert.Equal(t, region.Unknown, h.ctrl.Regions()[0].EmbeddingLabel)

	data, err := os.ReadFile(h.config.EmbeddingDatabase)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "mug,"))

	require.NoError(t, h.ctrl.Close())
	assert.True(t, h.embedder.closed)
	assert.True(t, h.source.closed)
}

func TestEmbeddingCommandsWithoutModel(t *testing.T) {
	frame := objectFrame(t)
	h := newHarness(t, harnessOptions{frames: repeat(frame, 2), keys: []int{'N', 'r'}})

	assert.True(t, h.step(t))
	assert.True(t, h.step(t))
	assert.Equal(t, 2, strings.Count(h.out.String(), "No embedding model loaded."))
	assert.Equal(t, 0, h.display.Shown(WindowEmbedding))
}

func TestTrainingWithClosedPromptContinues(t *testing.T) {
	frame := objectFrame(t)
	h := newHarness(t, harnessOptions{frames: repeat(frame, 2), keys: []int{'n', 'a'}})

	assert.True(t, h.step(t))
	assert.True(t, h.step(t))
	assert.Equal(t, region.Unknown, h.ctrl.Regions()[0].Label)
}
