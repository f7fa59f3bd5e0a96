package vkswapchain

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// chooseSurfaceFormat prefers 8-bit BGRA with the standard nonlinear sRGB
// color space and otherwise takes whatever the surface reports first.
func chooseSurfaceFormat(available []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return available[0]
}

// choosePresentMode prefers mailbox (low-latency triple buffering) and falls
// back to FIFO, the only mode the spec guarantees.
func choosePresentMode(available []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range available {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// chooseExtent uses the surface's current extent unless it reports the
// "window manager decides" sentinel, in which case the drawable size is
// clamped into the surface's extent bounds.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, drawableWidth, drawableHeight int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width := drawableWidth
	height := drawableHeight

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}

// chooseImageCount asks for one image beyond the minimum so the driver
// never blocks waiting for us, capped by the maximum (0 means unbounded).
func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// chooseSharing declares concurrent access by the distinct graphics and
// present families when they differ, and exclusive access otherwise.
func chooseSharing(graphicsFamily, presentFamily int) (core1_0.SharingMode, []int) {
	if graphicsFamily != presentFamily {
		return core1_0.SharingModeConcurrent, []int{graphicsFamily, presentFamily}
	}
	return core1_0.SharingModeExclusive, nil
}
