package benchmark

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-objrec/config"
	"github.com/nvr-ai/go-objrec/images"
)

// Scenario defines one replay configuration.
type Scenario struct {
	Name string `json:"name"`
	// Mode overrides the thresholding mode when set.
	Mode string `json:"mode,omitempty"`
	// Matcher overrides the tracker matcher when set.
	Matcher string `json:"matcher,omitempty"`
	// ImageFormat re-encodes the corpus before the replay when set, so decode cost
	// is measured for that format.
	ImageFormat images.ImageFormat `json:"image_format,omitempty"`
	// Passes is the number of times the corpus is replayed.
	Passes int `json:"passes"`
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:   name,
			Passes: 1,
		},
	}
}

// WithMode sets the thresholding mode
func (sb *ScenarioBuilder) WithMode(mode string) *ScenarioBuilder {
	sb.scenario.Mode = mode
	return sb
}

// WithMatcher sets the tracker matcher
func (sb *ScenarioBuilder) WithMatcher(matcher string) *ScenarioBuilder {
	sb.scenario.Matcher = matcher
	return sb
}

// WithImageFormat sets the image format
func (sb *ScenarioBuilder) WithImageFormat(format images.ImageFormat) *ScenarioBuilder {
	sb.scenario.ImageFormat = format
	return sb
}

// WithPasses sets the number of replays of the corpus
func (sb *ScenarioBuilder) WithPasses(passes int) *ScenarioBuilder {
	sb.scenario.Passes = passes
	return sb
}

// Build returns the configured scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// QuickScenarios compares the thresholding modes and matchers on one pass.
func QuickScenarios() []Scenario {
	return []Scenario{
		NewScenarioBuilder("clustering_first").WithMode("clustering").WithMatcher(config.MatcherFirst).Build(),
		NewScenarioBuilder("clustering_hungarian").WithMode("clustering").WithMatcher(config.MatcherHungarian).Build(),
		NewScenarioBuilder("background_first").WithMode("background").WithMatcher(config.MatcherFirst).Build(),
	}
}

// FormatScenarios replays the corpus once per supported encoding.
func FormatScenarios(passes int) []Scenario {
	var out []Scenario
	for _, f := range []images.ImageFormat{images.FormatJPEG, images.FormatPNG, images.FormatWebP, images.FormatBMP} {
		out = append(out, NewScenarioBuilder("format_"+string(f)).WithImageFormat(f).WithPasses(passes).Build())
	}
	return out
}

// LoadScenarios reads a JSON array of scenarios.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "benchmark: reading %s", path)
	}
	var scenarios []Scenario
	if err := json.Unmarshal(data, &scenarios); err != nil {
		return nil, errors.Wrapf(err, "benchmark: parsing %s", path)
	}
	for i := range scenarios {
		if scenarios[i].Name == "" {
			return nil, errors.Errorf("benchmark: scenario %d has no name", i)
		}
		if scenarios[i].Passes <= 0 {
			scenarios[i].Passes = 1
		}
	}
	return scenarios, nil
}
