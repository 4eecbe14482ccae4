// Package images - Capture resolutions a camera can be asked for.
package images

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AspectRatio represents an aspect ratio by name (e.g., "16:9").
type AspectRatio string

// Common camera aspect ratios.
const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
	AspectRatio54  AspectRatio = "5:4"
)

// ResolutionType is the short name of a capture resolution.
type ResolutionType string

// Named capture resolutions.
const (
	ResolutionTypeQVGA     ResolutionType = "qvga"
	ResolutionTypeVGA      ResolutionType = "vga"
	ResolutionTypeNHD      ResolutionType = "nhd"
	ResolutionTypeSVGA     ResolutionType = "svga"
	ResolutionTypeHD720p   ResolutionType = "720p"
	ResolutionType1MP54    ResolutionType = "1mp"
	ResolutionTypeFHD1080p ResolutionType = "1080p"
	ResolutionTypeQHD1440p ResolutionType = "1440p"
	ResolutionType4KUHD    ResolutionType = "4k"
)

// Resolution is a frame size.
type Resolution struct {
	Name        ResolutionType `json:"name"`
	AspectRatio AspectRatio    `json:"aspectRatio"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
}

// IsZero reports whether no size is set.
func (r Resolution) IsZero() bool {
	return r.Width <= 0 || r.Height <= 0
}

// GetMegaPixels returns the pixel count in millions, rounded to two decimals.
func (r Resolution) GetMegaPixels() float64 {
	if r.IsZero() {
		return 0.0
	}
	mp := float64(r.Width*r.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	if r.Name == "" {
		return fmt.Sprintf("%dx%d", r.Width, r.Height)
	}
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Width, r.Height, r.GetMegaPixels())
}

var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeQVGA:     {Name: ResolutionTypeQVGA, AspectRatio: AspectRatio43, Width: 320, Height: 240},
	ResolutionTypeVGA:      {Name: ResolutionTypeVGA, AspectRatio: AspectRatio43, Width: 640, Height: 480},
	ResolutionTypeNHD:      {Name: ResolutionTypeNHD, AspectRatio: AspectRatio169, Width: 640, Height: 360},
	ResolutionTypeSVGA:     {Name: ResolutionTypeSVGA, AspectRatio: AspectRatio43, Width: 800, Height: 600},
	ResolutionTypeHD720p:   {Name: ResolutionTypeHD720p, AspectRatio: AspectRatio169, Width: 1280, Height: 720},
	ResolutionType1MP54:    {Name: ResolutionType1MP54, AspectRatio: AspectRatio54, Width: 1280, Height: 1024},
	ResolutionTypeFHD1080p: {Name: ResolutionTypeFHD1080p, AspectRatio: AspectRatio169, Width: 1920, Height: 1080},
	ResolutionTypeQHD1440p: {Name: ResolutionTypeQHD1440p, AspectRatio: AspectRatio169, Width: 2560, Height: 1440},
	ResolutionType4KUHD:    {Name: ResolutionType4KUHD, AspectRatio: AspectRatio169, Width: 3840, Height: 2160},
}

// GetAllResolutions returns every named resolution, smallest first.
func GetAllResolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, res := range resolutions {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		pi, pj := all[i].Width*all[i].Height, all[j].Width*all[j].Height
		if pi != pj {
			return pi < pj
		}
		return all[i].Name < all[j].Name
	})
	return all
}

// GetResolutionByType retrieves a named resolution.
func GetResolutionByType(t ResolutionType) (Resolution, bool) {
	res, ok := resolutions[ResolutionType(strings.ToLower(string(t)))]
	return res, ok
}

// ParseResolution accepts a resolution name such as "720p" or an explicit
// "WIDTHxHEIGHT".
//
// Arguments:
//   - s: The resolution. An empty string is the zero Resolution.
//
// Returns:
//   - Resolution: The parsed resolution.
//   - error: An error if s is neither a known name nor a valid size.
func ParseResolution(s string) (Resolution, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Resolution{}, nil
	}
	if res, ok := GetResolutionByType(ResolutionType(s)); ok {
		return res, nil
	}

	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return Resolution{}, errors.Errorf("images: unknown resolution %q", s)
	}
	width, werr := strconv.Atoi(w)
	height, herr := strconv.Atoi(h)
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		return Resolution{}, errors.Errorf("images: invalid resolution %q", s)
	}
	return Resolution{Width: width, Height: height}, nil
}

// GetHighestResolutionUnderDimensions returns the largest named resolution that
// fits within width by height.
func GetHighestResolutionUnderDimensions(width, height int) (Resolution, bool) {
	var highest Resolution
	var found bool
	for _, res := range GetAllResolutions() {
		if res.Width <= width && res.Height <= height {
			highest, found = res, true
		}
	}
	return highest, found
}
