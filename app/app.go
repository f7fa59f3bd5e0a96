// Package app wires the renderer together in dependency order and owns the
// event loop and the reverse-order teardown.
package app

import (
	"image/png"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/meshview/mesh"
	"github.com/vkngwrapper/meshview/vkdevice"
	"github.com/vkngwrapper/meshview/vkframe"
	"github.com/vkngwrapper/meshview/vkmem"
	"github.com/vkngwrapper/meshview/vkpipeline"
	"github.com/vkngwrapper/meshview/vkswapchain"
	"github.com/vkngwrapper/meshview/vktexture"
)

// Config is everything the viewer needs to start, filled from flags.
type Config struct {
	Title  string
	Width  int
	Height int

	Validation bool
	MSAA       bool

	VertexShaderPath   string
	FragmentShaderPath string
	ModelPath          string
	MaterialPath       string
	TexturePath        string
	PipelineCachePath  string
}

// App owns every renderer resource, in creation order.
type App struct {
	cfg    Config
	window *sdl.Window

	device    *vkdevice.Device
	allocator *vkmem.Allocator

	commandPool core1_0.CommandPool
	swapchain   *vkswapchain.Swapchain
	renderPass  core1_0.RenderPass

	pipelineCache core1_0.PipelineCache
	pipeline      *vkpipeline.Pipeline

	vertexBuffer vkmem.Buffer
	indexBuffer  vkmem.Buffer
	indexCount   int

	texture *vktexture.Texture

	descriptorPool core1_0.DescriptorPool
	descriptorSets []core1_0.DescriptorSet

	slots []*vkframe.Slot
	loop  *vkframe.Loop
}

// Run initializes the renderer, pumps the event loop until quit, and tears
// everything down. Any error it returns is fatal.
func Run(cfg Config) error {
	app := &App{cfg: cfg}

	err := app.initWindow()
	if err != nil {
		return err
	}

	err = app.initVulkan()
	if err != nil {
		return err
	}
	defer app.cleanup()

	return app.mainLoop()
}

func (app *App) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(app.cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(app.cfg.Width), int32(app.cfg.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	app.window = window

	return nil
}

func (app *App) drawableSize() (int, int) {
	w, h := app.window.VulkanGetDrawableSize()
	return int(w), int(h)
}

func (app *App) initVulkan() error {
	globalDriver, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan driver")
	}

	app.device, err = vkdevice.New(app.window, globalDriver, vkdevice.Options{
		AppName:    app.cfg.Title,
		Validation: app.cfg.Validation,
	})
	if err != nil {
		return err
	}

	samples := core1_0.Samples1
	if app.cfg.MSAA {
		samples = app.device.MaxSamples
	}

	pool, _, err := app.device.Driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: app.device.GraphicsFamily,
	})
	if err != nil {
		return errors.Wrap(err, "create command pool")
	}
	app.commandPool = pool

	app.allocator = &vkmem.Allocator{
		Driver:   app.device.Driver,
		Instance: app.device.Instance,
		Physical: app.device.Physical,
		Pool:     app.commandPool,
		Queue:    app.device.GraphicsQueue,
	}

	app.swapchain, err = vkswapchain.New(vkswapchain.Config{
		Device:       app.device,
		Allocator:    app.allocator,
		DrawableSize: app.drawableSize,
		Samples:      samples,
	})
	if err != nil {
		return err
	}

	depthFormat, err := app.device.DepthFormat()
	if err != nil {
		return err
	}

	app.renderPass, err = vkpipeline.NewRenderPass(app.device.Driver, app.swapchain.Format(), depthFormat, samples)
	if err != nil {
		return err
	}

	app.pipelineCache, err = vkpipeline.LoadCache(app.device.Driver, app.device.Properties, app.cfg.PipelineCachePath)
	if err != nil {
		return err
	}

	app.pipeline, err = vkpipeline.New(vkpipeline.Config{
		Driver:             app.device.Driver,
		RenderPass:         app.renderPass,
		Extent:             app.swapchain.Extent(),
		Samples:            samples,
		VertexShaderPath:   app.cfg.VertexShaderPath,
		FragmentShaderPath: app.cfg.FragmentShaderPath,
		Cache:              &app.pipelineCache,
	})
	if err != nil {
		return err
	}
	vkpipeline.SaveCache(app.device.Driver, app.pipelineCache, app.cfg.PipelineCachePath)

	err = app.swapchain.CreateFramebuffers(app.renderPass)
	if err != nil {
		return err
	}

	err = app.loadAssets()
	if err != nil {
		return err
	}

	app.slots, err = vkframe.NewSlots(app.device.Driver, app.commandPool, app.allocator, vkframe.MaxFramesInFlight)
	if err != nil {
		return err
	}

	err = app.createDescriptorSets()
	if err != nil {
		return err
	}

	app.loop = vkframe.NewLoop(vkframe.Config{
		Device:        app.device.Driver,
		Target:        app.swapchain,
		Recorder:      app,
		GraphicsQueue: app.device.GraphicsQueue,
		PresentQueue:  app.device.PresentQueue,
		Slots:         app.slots,
	})

	return nil
}

// loadAssets decodes the texture and the model concurrently, then uploads
// both through the staging path.
func (app *App) loadAssets() error {
	var loadedMesh *mesh.Mesh
	var pixels []byte
	var texWidth, texHeight int

	var group errgroup.Group

	group.Go(func() error {
		textureFile, err := os.Open(app.cfg.TexturePath)
		if err != nil {
			return errors.Wrapf(err, "open texture %s", app.cfg.TexturePath)
		}
		defer textureFile.Close()

		decoded, err := png.Decode(textureFile)
		if err != nil {
			return errors.Wrapf(err, "decode texture %s", app.cfg.TexturePath)
		}

		pixels, texWidth, texHeight = vktexture.RGBA8(decoded)
		return nil
	})

	group.Go(func() error {
		var err error
		loadedMesh, err = mesh.Load(app.cfg.ModelPath, app.cfg.MaterialPath)
		return err
	})

	err := group.Wait()
	if err != nil {
		return err
	}

	app.texture, err = vktexture.Upload(app.allocator, app.device, pixels, texWidth, texHeight)
	if err != nil {
		return err
	}

	app.vertexBuffer, err = app.allocator.Upload(loadedMesh.Vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return err
	}

	app.indexBuffer, err = app.allocator.Upload(loadedMesh.Indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return err
	}
	app.indexCount = len(loadedMesh.Indices)

	return nil
}

func (app *App) createDescriptorSets() error {
	var err error
	app.descriptorPool, _, err = app.device.Driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: vkframe.MaxFramesInFlight,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: vkframe.MaxFramesInFlight,
			},
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: vkframe.MaxFramesInFlight,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}

	var allocLayouts []core1_0.DescriptorSetLayout
	for i := 0; i < vkframe.MaxFramesInFlight; i++ {
		allocLayouts = append(allocLayouts, app.pipeline.DescriptorLayout)
	}

	app.descriptorSets, _, err = app.device.Driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: app.descriptorPool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}

	for i := 0; i < vkframe.MaxFramesInFlight; i++ {
		err = app.device.Driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			{
				DstSet:          app.descriptorSets[i],
				DstBinding:      0,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeUniformBuffer,

				BufferInfo: []core1_0.DescriptorBufferInfo{
					{
						Buffer: app.slots[i].Uniform.Handle,
						Offset: 0,
						Range:  vkframe.UniformSize(),
					},
				},
			},
			{
				DstSet:          app.descriptorSets[i],
				DstBinding:      1,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

				ImageInfo: []core1_0.DescriptorImageInfo{
					{
						ImageView:   app.texture.View,
						Sampler:     app.texture.Sampler,
						ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
					},
				},
			},
		}, nil)
		if err != nil {
			return errors.Wrap(err, "write descriptor sets")
		}
	}

	return nil
}

// Record fills one frame's command buffer: render pass with clear values,
// dynamic viewport and scissor tracking the current extent, and a single
// indexed draw of the whole mesh. Implements vkframe.Recorder.
func (app *App) Record(cmd core1_0.CommandBuffer, slot, imageIndex int, extent core1_0.Extent2D) error {
	driver := app.device.Driver

	_, err := driver.BeginCommandBuffer(cmd, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return err
	}

	err = driver.CmdBeginRenderPass(cmd, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  app.renderPass,
			Framebuffer: app.swapchain.Framebuffer(imageIndex),
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{0, 0, 0, 1},
				core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
			},
		})
	if err != nil {
		return err
	}

	driver.CmdSetViewport(cmd, core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	driver.CmdSetScissor(cmd, core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: extent,
	})

	driver.CmdBindPipeline(cmd, core1_0.PipelineBindPointGraphics, app.pipeline.Handle)
	driver.CmdBindVertexBuffers(cmd, 0, []core1_0.Buffer{app.vertexBuffer.Handle}, []int{0})
	driver.CmdBindIndexBuffer(cmd, app.indexBuffer.Handle, 0, core1_0.IndexTypeUInt32)
	driver.CmdBindDescriptorSets(cmd, core1_0.PipelineBindPointGraphics, app.pipeline.Layout, 0, []core1_0.DescriptorSet{
		app.descriptorSets[slot],
	}, nil)
	driver.CmdDrawIndexed(cmd, app.indexCount, 1, 0, 0, 0)
	driver.CmdEndRenderPass(cmd)

	_, err = driver.EndCommandBuffer(cmd)
	return err
}

func (app *App) mainLoop() error {
	rendering := true

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					w, h := app.window.GetSize()
					if w > 0 && h > 0 {
						rendering = true
						app.loop.NotifyResize()
					} else {
						rendering = false
					}
				}
			}
		}

		if rendering {
			err := app.loop.DrawFrame()
			if err != nil {
				return err
			}
		}
	}

	return app.device.WaitIdle()
}

// cleanup destroys everything in strict reverse-dependency order. The
// device is drained first so nothing is still in flight.
func (app *App) cleanup() {
	if app.device != nil && app.device.Driver != nil {
		_ = app.device.WaitIdle()

		driver := app.device.Driver

		vkframe.DestroySlots(driver, app.allocator, app.slots)
		app.slots = nil

		if app.descriptorPool.Initialized() {
			driver.DestroyDescriptorPool(app.descriptorPool, nil)
			app.descriptorPool = core1_0.DescriptorPool{}
		}

		app.allocator.DestroyBuffer(app.indexBuffer)
		app.allocator.DestroyBuffer(app.vertexBuffer)

		if app.texture != nil {
			app.texture.Destroy(app.allocator)
			app.texture = nil
		}

		if app.pipeline != nil {
			app.pipeline.Destroy()
			app.pipeline = nil
		}

		if app.pipelineCache.Initialized() {
			driver.DestroyPipelineCache(app.pipelineCache, nil)
			app.pipelineCache = core1_0.PipelineCache{}
		}

		if app.renderPass.Initialized() {
			driver.DestroyRenderPass(app.renderPass, nil)
			app.renderPass = core1_0.RenderPass{}
		}

		if app.swapchain != nil {
			app.swapchain.Destroy()
			app.swapchain = nil
		}

		if app.commandPool.Initialized() {
			driver.DestroyCommandPool(app.commandPool, nil)
			app.commandPool = core1_0.CommandPool{}
		}
	}

	if app.device != nil {
		app.device.Destroy()
		app.device = nil
	}

	if app.window != nil {
		app.window.Destroy()
		app.window = nil
	}
	sdl.Quit()
}
