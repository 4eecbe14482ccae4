package controller

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// memorySink is an in-memory ExampleSink.
type memorySink struct {
	vocabulary map[string]bool
	labels     []string
	vectors    [][]float64
	flushes    int
	pending    int
	flushErr   error
}

func newMemorySink(labels ...string) *memorySink {
	s := &memorySink{vocabulary: make(map[string]bool)}
	for _, l := range labels {
		s.vocabulary[l] = true
	}
	return s
}

func (s *memorySink) Known(label string) bool { return s.vocabulary[label] }
func (s *memorySink) Register(label string)   { s.vocabulary[label] = true }

func (s *memorySink) Labels() []string {
	var out []string
	for l := range s.vocabulary {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (s *memorySink) Flush() (int, error) {
	s.flushes++
	if s.flushErr != nil {
		return 0, s.flushErr
	}
	n := s.pending
	s.pending = 0
	return n, nil
}

func (s *memorySink) AddExample(label string, vec []float64) error {
	if label == "" {
		return errors.New("empty label")
	}
	s.vocabulary[label] = true
	s.labels = append(s.labels, label)
	s.vectors = append(s.vectors, vec)
	s.pending++
	return nil
}

func samples(t *testing.T, n int) []Sample {
	t.Helper()
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{
			Crop:   gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3),
			Vector: []float64{float64(i), float64(i)},
		}
	}
	t.Cleanup(func() { closeSamples(out) })
	return out
}

func newTestTrainer(keys []int, answers string) (*Trainer, *HeadlessDisplay, *bytes.Buffer) {
	display := NewHeadlessDisplay(keys...)
	out := &bytes.Buffer{}
	return NewTrainer(display, NewLinePrompter(strings.NewReader(answers), out), nil), display, out
}

func TestTrainerSession(t *testing.T) {
	tests := []struct {
		name      string
		known     []string
		keys      []int
		answers   string
		wantAdded []string
		wantRes   SessionResult
	}{
		{
			name:      "known label",
			known:     []string{"mug"},
			keys:      []int{'a'},
			answers:   "Mug\n",
			wantAdded: []string{"mug"},
			wantRes:   SessionResult{Offered: 1, Added: 1, Flushed: 1},
		},
		{
			name:    "skip",
			keys:    []int{'p'},
			wantRes: SessionResult{Offered: 1, Skipped: 1},
		},
		{
			name:    "unbound key skips",
			keys:    []int{'x'},
			wantRes: SessionResult{Offered: 1, Skipped: 1},
		},
		{
			name:      "register new label",
			keys:      []int{'a'},
			answers:   "key\ny\n",
			wantAdded: []string{"key"},
			wantRes:   SessionResult{Offered: 1, Added: 1, Flushed: 1},
		},
		{
			name:      "retry then known",
			known:     []string{"pen"},
			keys:      []int{'a'},
			answers:   "pne\nn\npen\n",
			wantAdded: []string{"pen"},
			wantRes:   SessionResult{Offered: 1, Added: 1, Flushed: 1},
		},
		{
			name:    "discard after retries",
			keys:    []int{'a'},
			answers: "a\nn\nb\nn\nc\nn\n",
			wantRes: SessionResult{Offered: 1, Discarded: 1},
		},
		{
			name:    "blank labels count as retries",
			keys:    []int{'a'},
			answers: "\n\n\n",
			wantRes: SessionResult{Offered: 1, Discarded: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newMemorySink(tt.known...)
			trainer, display, _ := newTestTrainer(tt.keys, tt.answers)

			res, err := trainer.Session(sink, WindowTraining, samples(t, 1))
			require.NoError(t, err)
			assert.Equal(t, tt.wantRes, res)
			assert.Equal(t, tt.wantAdded, sink.labels)
			assert.Equal(t, 1, sink.flushes)
			assert.Equal(t, 1, display.Shown(WindowTraining))
			assert.False(t, display.IsOpen(WindowTraining))
		})
	}
}

func TestTrainerSessionMultipleRegions(t *testing.T) {
	sink := newMemorySink("mug")
	trainer, display, out := newTestTrainer([]int{'a', 'p', 'a'}, "mug\nkey\ny\n")

	res, err := trainer.Session(sink, WindowTraining, samples(t, 3))
	require.NoError(t, err)

	assert.Equal(t, SessionResult{Offered: 3, Added: 2, Skipped: 1, Flushed: 2}, res)
	assert.Equal(t, []string{"mug", "key"}, sink.labels)
	assert.Equal(t, [][]float64{{0, 0}, {2, 2}}, sink.vectors)
	assert.Equal(t, 3, display.Shown(WindowTraining))
	assert.Contains(t, out.String(), "Detected 3 regions.")
	assert.Contains(t, out.String(), "Is this a new label? <y/n>")
	assert.Contains(t, out.String(), "Successfully noted down region as: key")
}

func TestTrainerSessionNoRegions(t *testing.T) {
	sink := newMemorySink()
	trainer, display, out := newTestTrainer(nil, "")

	res, err := trainer.Session(sink, WindowTraining, nil)
	require.NoError(t, err)
	assert.Equal(t, SessionResult{}, res)
	assert.Equal(t, 0, display.Waits())
	assert.Contains(t, out.String(), "Detected 0 regions.")
}

func TestTrainerSessionPromptClosed(t *testing.T) {
	sink := newMemorySink("mug")
	trainer, _, _ := newTestTrainer([]int{'a', 'a'}, "mug\n")

	res, err := trainer.Session(sink, WindowTraining, samples(t, 2))
	assert.True(t, errors.Is(err, ErrPromptClosed))
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Flushed, "examples before the failure are flushed")
}

func TestTrainerSessionFlushError(t *testing.T) {
	sink := newMemorySink("mug")
	sink.flushErr = errors.New("disk full")
	trainer, _, _ := newTestTrainer([]int{'a'}, "mug\n")

	_, err := trainer.Session(sink, WindowTraining, samples(t, 1))
	assert.EqualError(t, err, "disk full")
}

func TestLinePrompter(t *testing.T) {
	out := &bytes.Buffer{}
	p := NewLinePrompter(strings.NewReader("  Mug \n"), out)

	p.Say("Detected %d regions.", 2)
	answer, err := p.Ask("Label:")
	require.NoError(t, err)
	assert.Equal(t, "mug", answer)
	assert.Equal(t, "Detected 2 regions.\nLabel:\n", out.String())

	_, err = p.Ask("Label:")
	assert.True(t, errors.Is(err, ErrPromptClosed))
}

func TestCommandFromKey(t *testing.T) {
	tests := []struct {
		key  int
		want Command
	}{
		{key: -1, want: CommandNone},
		{key: 'n', want: CommandTrain},
		{key: 'N', want: CommandTrainEmbedding},
		{key: 'r', want: CommandToggleEmbedding},
		{key: 't', want: CommandToggleThreshold},
		{key: 'm', want: CommandToggleMorph},
		{key: 'w', want: CommandResetBackground},
		{key: 's', want: CommandSnapshot},
		{key: 'q', want: CommandQuit},
		{key: 0x100000 | 'q', want: CommandQuit},
		{key: 'z', want: CommandNone},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CommandFromKey(tt.key))
		})
	}
}
