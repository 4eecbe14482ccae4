package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolution_GetMegaPixels(t *testing.T) {
	testCases := []struct {
		name     string
		res      Resolution
		expected float64
	}{
		{"Full HD 1080p", resolutions[ResolutionTypeFHD1080p], 2.07},
		{"4K UHD", resolutions[ResolutionType4KUHD], 8.29},
		{"1MP (5:4)", resolutions[ResolutionType1MP54], 1.31},
		{"Zero Width", Resolution{Width: 0, Height: 1080}, 0},
		{"Zero Height", Resolution{Width: 1920, Height: 0}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.res.GetMegaPixels())
		})
	}
}

func TestResolution_String(t *testing.T) {
	assert.Equal(t, "720p (1280x720, 0.92MP)", resolutions[ResolutionTypeHD720p].String())
	assert.Equal(t, "100x50", Resolution{Width: 100, Height: 50}.String())
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		want    Resolution
		wantErr bool
	}{
		{in: "", want: Resolution{}},
		{in: "720p", want: resolutions[ResolutionTypeHD720p]},
		{in: "VGA", want: resolutions[ResolutionTypeVGA]},
		{in: " 1080p ", want: resolutions[ResolutionTypeFHD1080p]},
		{in: "1024x768", want: Resolution{Width: 1024, Height: 768}},
		{in: "1024X768", want: Resolution{Width: 1024, Height: 768}},
		{in: "0x768", wantErr: true},
		{in: "axb", wantErr: true},
		{in: "8k", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResolution(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, Resolution{}.IsZero())
}

func TestGetAllResolutionsSorted(t *testing.T) {
	all := GetAllResolutions()
	require.Len(t, all, len(resolutions))
	assert.Equal(t, ResolutionTypeQVGA, all[0].Name)
	assert.Equal(t, ResolutionType4KUHD, all[len(all)-1].Name)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Width*all[i-1].Height, all[i].Width*all[i].Height)
	}
}

func TestGetHighestResolutionUnderDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          ResolutionType
		found         bool
	}{
		{"exact 1080p", 1920, 1080, ResolutionTypeFHD1080p, true},
		{"between 720p and 1080p", 1500, 900, ResolutionTypeHD720p, true},
		{"square sensor", 1280, 1280, ResolutionType1MP54, true},
		{"too small", 100, 100, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetHighestResolutionUnderDimensions(tt.width, tt.height)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}
