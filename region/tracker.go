// Package region - Frame to frame identity tracking of regions.
package region

import (
	"image/color"
	"math"
	"sort"

	"github.com/arthurkushman/go-hungarian"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
)

// Tolerances bound how much a region may change between consecutive frames and
// still be considered the same object. All comparisons are strict.
type Tolerances struct {
	// X and Y bound the centroid displacement in pixels.
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	// Width and Height bound the oriented box size change in pixels.
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	// Angle bounds the principal-axis rotation in degrees.
	Angle float64 `yaml:"angle"`
}

// DefaultTolerances returns the default matching tolerances.
func DefaultTolerances() Tolerances {
	return Tolerances{X: 5, Y: 5, Width: 5, Height: 5, Angle: 5}
}

// Accept reports whether next is within tolerance of prev on all five measures.
func (t Tolerances) Accept(prev, next Stats) bool {
	return math.Abs(prev.Centroid.X-next.Centroid.X) < t.X &&
		math.Abs(prev.Centroid.Y-next.Centroid.Y) < t.Y &&
		math.Abs(prev.Box.Width-next.Box.Width) < t.Width &&
		math.Abs(prev.Box.Height-next.Box.Height) < t.Height &&
		AngleDelta(prev.Angle, next.Angle)*180/math.Pi < t.Angle
}

// cost is the tolerance-normalized change between two regions.
func (t Tolerances) cost(prev, next Stats) float64 {
	dx := (prev.Centroid.X - next.Centroid.X) / t.X
	dy := (prev.Centroid.Y - next.Centroid.Y) / t.Y
	dw := (prev.Box.Width - next.Box.Width) / t.Width
	dh := (prev.Box.Height - next.Box.Height) / t.Height
	da := AngleDelta(prev.Angle, next.Angle) * 180 / math.Pi / t.Angle
	return dx*dx + dy*dy + dw*dw + dh*dh + da*da
}

// Matcher pairs this frame's regions with the previous frame's.
type Matcher interface {
	// Match returns, for every region of next, the index of its match in prev or -1.
	Match(prev, next []Stats) []int
}

// FirstMatch pairs each new region with the first previous region, in list order,
// that is within tolerance. Several new regions may match the same previous region.
type FirstMatch struct {
	Tolerances Tolerances
}

// Match implements Matcher.
func (m FirstMatch) Match(prev, next []Stats) []int {
	out := make([]int, len(next))
	for i, n := range next {
		out[i] = -1
		for j, p := range prev {
			if m.Tolerances.Accept(p, n) {
				out[i] = j
				break
			}
		}
	}
	return out
}

// HungarianMatch pairs regions one to one among in-tolerance pairs, scoring a
// pair higher the less it changed. The assignment keeps as many tracks as any
// one-to-one pairing can and favors the higher total score.
type HungarianMatch struct {
	Tolerances Tolerances
}

// Match implements Matcher.
func (m HungarianMatch) Match(prev, next []Stats) []int {
	if len(prev) == 0 || len(next) == 0 {
		return unmatched(len(next))
	}

	// Gated-out pairs score 0.
	score := make([][]float64, len(next))
	for i, n := range next {
		score[i] = make([]float64, len(prev))
		for j, p := range prev {
			if m.Tolerances.Accept(p, n) {
				score[i][j] = 1 / (1 + m.Tolerances.cost(p, n))
			}
		}
	}
	return assign(score, len(prev))
}

func unmatched(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	return out
}

// assign matches rows to columns of score, where a positive entry marks an
// allowed pair. The result holds the column of every row, or -1.
//
// The solver's answer is checked against a greedy one, both extended along
// augmenting paths. The one matching more rows wins, then the higher total.
func assign(score [][]float64, cols int) []int {
	// The solver wants a square matrix and works on its own copy.
	size := max(len(score), cols)
	padded := make([][]float64, size)
	for i := range padded {
		padded[i] = make([]float64, size)
		if i < len(score) {
			copy(padded[i], score[i])
		}
	}
	var solved [][2]int
	for i, row := range hungarian.SolveMax(padded) {
		for j := range row {
			solved = append(solved, [2]int{i, j})
		}
	}
	best := complete(score, cols, solved)

	var pairs [][2]int
	for i := range score {
		for j := 0; j < cols; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return score[pairs[a][0]][pairs[a][1]] > score[pairs[b][0]][pairs[b][1]]
	})
	greedy := complete(score, cols, pairs)

	bn, bt := matched(score, best)
	gn, gt := matched(score, greedy)
	if gn > bn || (gn == bn && gt > bt) {
		return greedy
	}
	return best
}

// complete seeds an assignment with the allowed pairs of seed, in order, then
// extends it along augmenting paths.
func complete(score [][]float64, cols int, seed [][2]int) []int {
	out := unmatched(len(score))
	owner := unmatched(cols)
	for _, p := range seed {
		i, j := p[0], p[1]
		if i >= 0 && i < len(score) && j >= 0 && j < cols && score[i][j] > 0 && out[i] < 0 && owner[j] < 0 {
			out[i], owner[j] = j, i
		}
	}
	for i := range score {
		if out[i] < 0 {
			augment(score, i, out, owner, make([]bool, cols))
		}
	}
	return out
}

func matched(score [][]float64, out []int) (int, float64) {
	var n int
	var total float64
	for i, j := range out {
		if j >= 0 {
			n++
			total += score[i][j]
		}
	}
	return n, total
}

// augment looks for a path from row i to a free column, preferring higher
// scores, and flips the assignment along it.
func augment(score [][]float64, i int, out, owner []int, seen []bool) bool {
	cols := make([]int, 0, len(score[i]))
	for j, v := range score[i] {
		if v > 0 && !seen[j] {
			cols = append(cols, j)
		}
	}
	sort.Slice(cols, func(a, b int) bool { return score[i][cols[a]] > score[i][cols[b]] })

	for _, j := range cols {
		if seen[j] {
			continue
		}
		seen[j] = true
		if owner[j] < 0 || augment(score, owner[j], out, owner, seen) {
			out[i], owner[j] = j, i
			return true
		}
	}
	return false
}

// ColorSource produces display colors for newly seen objects.
type ColorSource func() color.RGBA

// RandomColors returns pleasant random colors.
func RandomColors() ColorSource {
	return func() color.RGBA {
		r, g, b := colorful.FastHappyColor().RGB255()
		return color.RGBA{R: r, G: g, B: b, A: 255}
	}
}

// Tracker carries display colors from one frame's regions to the next.
type Tracker struct {
	matcher Matcher
	colors  ColorSource
	prev    []Stats
	logger  *zap.SugaredLogger
}

// NewTracker creates a region tracker.
//
// Arguments:
//   - matcher: The pairing strategy. FirstMatch with default tolerances when nil.
//   - colors: The color source for new objects. RandomColors when nil.
//   - logger: The logger to use. A no-op logger is used when nil.
//
// Returns:
//   - *Tracker: The tracker, holding no previous regions.
func NewTracker(matcher Matcher, colors ColorSource, logger *zap.SugaredLogger) *Tracker {
	if matcher == nil {
		matcher = FirstMatch{Tolerances: DefaultTolerances()}
	}
	if colors == nil {
		colors = RandomColors()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Tracker{matcher: matcher, colors: colors, logger: logger}
}

// Assign colors every region, inheriting the color of its match in the previous
// frame, and replaces the held state with regions.
func (t *Tracker) Assign(regions []Stats) {
	matches := t.matcher.Match(t.prev, regions)
	fresh := 0
	for i := range regions {
		if j := matches[i]; j >= 0 {
			regions[i].Color = t.prev[j].Color
			continue
		}
		regions[i].Color = t.colors()
		fresh++
	}
	if fresh > 0 {
		t.logger.Debugw("new objects", "count", fresh, "regions", len(regions))
	}

	t.prev = t.prev[:0]
	for _, r := range regions {
		t.prev = append(t.prev, r.Clone())
	}
}

// Reset forgets the previous frame.
func (t *Tracker) Reset() {
	t.prev = nil
}
