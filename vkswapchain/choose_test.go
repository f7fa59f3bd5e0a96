package vkswapchain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

func TestChooseSurfaceFormatPrefersSRGB(t *testing.T) {
	preferred := khr_surface.SurfaceFormat{
		Format:     core1_0.FormatB8G8R8A8SRGB,
		ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
	}
	other := khr_surface.SurfaceFormat{
		Format:     core1_0.FormatR8G8B8A8UnsignedNormalized,
		ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
	}

	require.Equal(t, preferred, chooseSurfaceFormat([]khr_surface.SurfaceFormat{other, preferred}))
	require.Equal(t, other, chooseSurfaceFormat([]khr_surface.SurfaceFormat{other}))
}

func TestChoosePresentModePrefersMailbox(t *testing.T) {
	require.Equal(t, khr_surface.PresentModeMailbox, choosePresentMode([]khr_surface.PresentMode{
		khr_surface.PresentModeFIFO,
		khr_surface.PresentModeMailbox,
	}))

	require.Equal(t, khr_surface.PresentModeFIFO, choosePresentMode([]khr_surface.PresentMode{
		khr_surface.PresentModeImmediate,
		khr_surface.PresentModeFIFO,
	}))

	// FIFO is guaranteed, so it is the fallback even when unlisted.
	require.Equal(t, khr_surface.PresentModeFIFO, choosePresentMode(nil))
}

func TestChooseExtent(t *testing.T) {
	tests := []struct {
		name         string
		capabilities khr_surface.SurfaceCapabilities
		drawableW    int
		drawableH    int
		expected     core1_0.Extent2D
	}{
		{
			name: "surface dictates extent",
			capabilities: khr_surface.SurfaceCapabilities{
				CurrentExtent: core1_0.Extent2D{Width: 640, Height: 480},
			},
			drawableW: 1920,
			drawableH: 1080,
			expected:  core1_0.Extent2D{Width: 640, Height: 480},
		},
		{
			name: "sentinel defers to drawable size",
			capabilities: khr_surface.SurfaceCapabilities{
				CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
				MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
			},
			drawableW: 1024,
			drawableH: 768,
			expected:  core1_0.Extent2D{Width: 1024, Height: 768},
		},
		{
			name: "drawable size clamps to bounds",
			capabilities: khr_surface.SurfaceCapabilities{
				CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
				MinImageExtent: core1_0.Extent2D{Width: 200, Height: 200},
				MaxImageExtent: core1_0.Extent2D{Width: 800, Height: 800},
			},
			drawableW: 8192,
			drawableH: 100,
			expected:  core1_0.Extent2D{Width: 800, Height: 200},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			extent := chooseExtent(&test.capabilities, test.drawableW, test.drawableH)
			require.Equal(t, test.expected, extent)

			// Re-querying with the same inputs must not change the answer.
			require.Equal(t, extent, chooseExtent(&test.capabilities, test.drawableW, test.drawableH))
		})
	}
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		name     string
		min      int
		max      int
		expected int
	}{
		{name: "one beyond minimum", min: 2, max: 8, expected: 3},
		{name: "unbounded maximum", min: 1, max: 0, expected: 2},
		{name: "capped at maximum", min: 2, max: 2, expected: 2},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			count := chooseImageCount(&khr_surface.SurfaceCapabilities{
				MinImageCount: test.min,
				MaxImageCount: test.max,
			})
			require.Equal(t, test.expected, count)
		})
	}
}

func TestChooseSharing(t *testing.T) {
	mode, families := chooseSharing(0, 0)
	require.Equal(t, core1_0.SharingModeExclusive, mode)
	require.Empty(t, families)

	mode, families = chooseSharing(0, 2)
	require.Equal(t, core1_0.SharingModeConcurrent, mode)
	require.Equal(t, []int{0, 2}, families)
}
