// Package vkswapchain owns the presentable image chain and everything whose
// lifetime is tied to it: image views, the multisampled color target, the
// depth attachment, and the per-image framebuffers. A resized or stale
// surface invalidates the whole set at once; Recreate rebuilds it while the
// render pass, pipeline, and buffers stay untouched.
package vkswapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/meshview/vkdevice"
	"github.com/vkngwrapper/meshview/vkmem"
)

// Config carries the longer-lived objects the swapchain is built against.
type Config struct {
	Device    *vkdevice.Device
	Allocator *vkmem.Allocator

	// DrawableSize reports the window's current framebuffer size in
	// pixels. Queried on build and on every recreation.
	DrawableSize func() (int, int)

	// Samples is the MSAA sample count for the color and depth targets.
	Samples core1_0.SampleCountFlags
}

// Swapchain is the image chain plus its derived attachments. Format and
// extent are fixed for the life of one chain generation.
type Swapchain struct {
	cfg Config
	ext khr_swapchain.ExtensionDriver

	chain  khr_swapchain.Swapchain
	images []core1_0.Image
	views  []core1_0.ImageView

	// Format and extent are immutable between recreations.
	format core1_0.Format
	extent core1_0.Extent2D

	color     vkmem.Image
	colorView core1_0.ImageView
	depth     vkmem.Image
	depthView core1_0.ImageView

	framebuffers []core1_0.Framebuffer
	renderPass   core1_0.RenderPass
}

// New negotiates and creates the swapchain and its image views. Attachments
// and framebuffers are built later by CreateFramebuffers, once the render
// pass exists.
func New(cfg Config) (*Swapchain, error) {
	s := &Swapchain{
		cfg: cfg,
		ext: khr_swapchain.CreateExtensionDriverFromCoreDriver(cfg.Device.Driver),
	}

	err := s.build()
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Swapchain) build() error {
	dev := s.cfg.Device

	capabilities, _, err := dev.SurfaceExtension.GetPhysicalDeviceSurfaceCapabilities(dev.Surface, dev.Physical)
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}

	formats, _, err := dev.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(dev.Surface, dev.Physical)
	if err != nil {
		return errors.Wrap(err, "query surface formats")
	}

	presentModes, _, err := dev.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(dev.Surface, dev.Physical)
	if err != nil {
		return errors.Wrap(err, "query present modes")
	}

	surfaceFormat := chooseSurfaceFormat(formats)
	presentMode := choosePresentMode(presentModes)

	drawableWidth, drawableHeight := s.cfg.DrawableSize()
	extent := chooseExtent(capabilities, drawableWidth, drawableHeight)
	imageCount := chooseImageCount(capabilities)
	sharingMode, queueFamilyIndices := chooseSharing(dev.GraphicsFamily, dev.PresentFamily)

	chain, _, err := s.ext.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: dev.Surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}

	s.chain = chain
	s.format = surfaceFormat.Format
	s.extent = extent

	images, _, err := s.ext.GetSwapchainImages(s.chain)
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	s.images = images

	for _, image := range images {
		view, err := s.cfg.Allocator.CreateImageView(image, s.format, core1_0.ImageAspectColor, 1)
		if err != nil {
			return err
		}
		s.views = append(s.views, view)
	}

	return nil
}

// CreateFramebuffers builds the MSAA color target, the depth attachment, and
// one framebuffer per swapchain image against the given render pass. The
// render pass is remembered for recreation.
func (s *Swapchain) CreateFramebuffers(renderPass core1_0.RenderPass) error {
	s.renderPass = renderPass

	err := s.createColorResources()
	if err != nil {
		return err
	}

	err = s.createDepthResources()
	if err != nil {
		return err
	}

	for _, imageView := range s.views {
		var attachments []core1_0.ImageView
		if s.cfg.Samples != core1_0.Samples1 {
			// Render into the MSAA target, resolve into the swapchain image.
			attachments = []core1_0.ImageView{s.colorView, s.depthView, imageView}
		} else {
			attachments = []core1_0.ImageView{imageView, s.depthView}
		}

		framebuffer, _, err := s.cfg.Device.Driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  renderPass,
			Layers:      1,
			Attachments: attachments,
			Width:       s.extent.Width,
			Height:      s.extent.Height,
		})
		if err != nil {
			return errors.Wrap(err, "create framebuffer")
		}

		s.framebuffers = append(s.framebuffers, framebuffer)
	}

	return nil
}

func (s *Swapchain) createColorResources() error {
	if s.cfg.Samples == core1_0.Samples1 {
		return nil
	}

	var err error
	s.color, err = s.cfg.Allocator.CreateImage(
		s.extent.Width,
		s.extent.Height,
		1,
		s.cfg.Samples,
		s.format,
		core1_0.ImageTilingOptimal,
		core1_0.ImageUsageTransientAttachment|core1_0.ImageUsageColorAttachment,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return err
	}

	s.colorView, err = s.cfg.Allocator.CreateImageView(s.color.Handle, s.format, core1_0.ImageAspectColor, 1)
	return err
}

func (s *Swapchain) createDepthResources() error {
	depthFormat, err := s.cfg.Device.DepthFormat()
	if err != nil {
		return err
	}

	s.depth, err = s.cfg.Allocator.CreateImage(
		s.extent.Width,
		s.extent.Height,
		1,
		s.cfg.Samples,
		depthFormat,
		core1_0.ImageTilingOptimal,
		core1_0.ImageUsageDepthStencilAttachment,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return err
	}

	s.depthView, err = s.cfg.Allocator.CreateImageView(s.depth.Handle, depthFormat, core1_0.ImageAspectDepth, 1)
	return err
}

// Recreate rebuilds the swapchain and everything derived from it after the
// surface went stale or the window was resized. It is a no-op while the
// drawable is zero-sized (minimized); the event loop retries once the window
// is restored. The device is drained first so no in-flight command buffer
// still references the old images.
func (s *Swapchain) Recreate() error {
	w, h := s.cfg.DrawableSize()
	if w == 0 || h == 0 {
		return nil
	}

	err := s.cfg.Device.WaitIdle()
	if err != nil {
		return err
	}

	renderPass := s.renderPass
	s.destroyDerived()

	err = s.build()
	if err != nil {
		return err
	}

	if renderPass.Initialized() {
		return s.CreateFramebuffers(renderPass)
	}
	return nil
}

// Acquire requests the next presentable image, signaling the given
// semaphore when it is ready. stale is true when the surface is out of date
// and the chain must be recreated before use; a suboptimal chain is still
// usable and reported as healthy.
func (s *Swapchain) Acquire(signal core1_0.Semaphore) (imageIndex int, stale bool, err error) {
	imageIndex, res, err := s.ext.AcquireNextImage(s.chain, common.NoTimeout, &signal, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return imageIndex, false, nil
}

// Present queues the image for presentation after waitFor signals. stale is
// true when the surface is out of date or suboptimal and should be
// recreated.
func (s *Swapchain) Present(queue core1_0.Queue, waitFor core1_0.Semaphore, imageIndex int) (stale bool, err error) {
	res, err := s.ext.QueuePresent(queue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{waitFor},
		Swapchains:     []khr_swapchain.Swapchain{s.chain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Extent returns the current chain extent.
func (s *Swapchain) Extent() core1_0.Extent2D {
	return s.extent
}

// Format returns the chain's color format.
func (s *Swapchain) Format() core1_0.Format {
	return s.format
}

// ImageCount returns the number of presentable images.
func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

// Framebuffer returns the framebuffer bound to the given swapchain image.
func (s *Swapchain) Framebuffer(imageIndex int) core1_0.Framebuffer {
	return s.framebuffers[imageIndex]
}

func (s *Swapchain) destroyDerived() {
	driver := s.cfg.Device.Driver

	for _, framebuffer := range s.framebuffers {
		driver.DestroyFramebuffer(framebuffer, nil)
	}
	s.framebuffers = nil

	if s.colorView.Initialized() {
		driver.DestroyImageView(s.colorView, nil)
		s.colorView = core1_0.ImageView{}
	}
	s.cfg.Allocator.DestroyImage(s.color)
	s.color = vkmem.Image{}

	if s.depthView.Initialized() {
		driver.DestroyImageView(s.depthView, nil)
		s.depthView = core1_0.ImageView{}
	}
	s.cfg.Allocator.DestroyImage(s.depth)
	s.depth = vkmem.Image{}

	for _, view := range s.views {
		driver.DestroyImageView(view, nil)
	}
	s.views = nil

	if s.chain.Initialized() {
		s.ext.DestroySwapchain(s.chain, nil)
		s.chain = khr_swapchain.Swapchain{}
	}
}

// Destroy tears down the chain and everything derived from it.
func (s *Swapchain) Destroy() {
	s.destroyDerived()
}
