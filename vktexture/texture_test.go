package vktexture

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMipLevels(t *testing.T) {
	tests := []struct {
		width    int
		height   int
		expected int
	}{
		{width: 1, height: 1, expected: 1},
		{width: 2, height: 2, expected: 2},
		{width: 512, height: 512, expected: 10},
		{width: 500, height: 500, expected: 9},
		{width: 1024, height: 500, expected: 11},
		{width: 500, height: 1024, expected: 11},
	}

	for _, test := range tests {
		require.Equal(t, test.expected, MipLevels(test.width, test.height),
			"mip levels for %dx%d", test.width, test.height)
	}
}

func TestRGBA8(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(1, 0, color.NRGBA{R: 0, G: 128, B: 0, A: 255})

	pixels, width, height := RGBA8(img)
	require.Equal(t, 2, width)
	require.Equal(t, 1, height)
	require.Equal(t, []byte{255, 0, 0, 255, 0, 128, 0, 255}, pixels)
}

func TestRGBA8NonZeroOrigin(t *testing.T) {
	img := image.NewNRGBA(image.Rect(10, 10, 12, 12))
	for y := 10; y < 12; y++ {
		for x := 10; x < 12; x++ {
			img.Set(x, y, color.NRGBA{R: 7, G: 7, B: 7, A: 255})
		}
	}

	pixels, width, height := RGBA8(img)
	require.Equal(t, 2, width)
	require.Equal(t, 2, height)
	require.Len(t, pixels, 2*2*4)
}
