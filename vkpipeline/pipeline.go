// Package vkpipeline builds the render pass and the one graphics pipeline
// the viewer uses, plus the descriptor-set layout they share. Viewport and
// scissor are dynamic state, so neither object needs rebuilding when the
// swapchain extent changes.
package vkpipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/meshview/mesh"
)

// Config describes the fixed pipeline the viewer renders with.
type Config struct {
	Driver     core1_0.CoreDeviceDriver
	RenderPass core1_0.RenderPass

	// Extent seeds the placeholder viewport; the real viewport and scissor
	// are set during command recording.
	Extent  core1_0.Extent2D
	Samples core1_0.SampleCountFlags

	VertexShaderPath   string
	FragmentShaderPath string

	// Cache, when non-nil, feeds pipeline creation. See cache.go.
	Cache *core1_0.PipelineCache
}

// Pipeline owns the graphics pipeline, its layout, and the descriptor-set
// layout describing the per-frame uniform buffer and the texture sampler.
type Pipeline struct {
	driver core1_0.CoreDeviceDriver

	DescriptorLayout core1_0.DescriptorSetLayout
	Layout           core1_0.PipelineLayout
	Handle           core1_0.Pipeline
}

// New compiles the pipeline. Shader module load failures and pipeline build
// failures are fatal; there is no partial path.
func New(cfg Config) (*Pipeline, error) {
	p := &Pipeline{driver: cfg.Driver}

	err := p.createDescriptorSetLayout()
	if err != nil {
		return nil, err
	}

	err = p.createGraphicsPipeline(cfg)
	if err != nil {
		p.Destroy()
		return nil, err
	}

	return p, nil
}

func (p *Pipeline) createDescriptorSetLayout() error {
	var err error
	p.DescriptorLayout, _, err = p.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
			{
				Binding:         1,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor set layout")
	}

	return nil
}

func (p *Pipeline) createGraphicsPipeline(cfg Config) error {
	vertShader, err := LoadShaderModule(cfg.Driver, cfg.VertexShaderPath)
	if err != nil {
		return err
	}
	defer cfg.Driver.DestroyShaderModule(vertShader, nil)

	fragShader, err := LoadShaderModule(cfg.Driver, cfg.FragmentShaderPath)
	if err != nil {
		return err
	}
	defer cfg.Driver.DestroyShaderModule(fragShader, nil)

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   mesh.BindingDescriptions(),
		VertexAttributeDescriptions: mesh.AttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	// Viewport and scissor are dynamic; these entries only size the state.
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(cfg.Extent.Width),
				Height:   float32(cfg.Extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: cfg.Extent,
			},
		},
	}

	dynamicState := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{
			core1_0.DynamicStateViewport,
			core1_0.DynamicStateScissor,
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeBack,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: cfg.Samples,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLess,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	p.Layout, _, err = p.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			p.DescriptorLayout,
		},
	})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}

	pipelines, _, err := p.driver.CreateGraphicsPipelines(cfg.Cache, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			DynamicState:       dynamicState,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             p.Layout,
			RenderPass:         cfg.RenderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline")
	}
	p.Handle = pipelines[0]

	return nil
}

// Destroy releases the pipeline, its layout, and the descriptor-set layout.
func (p *Pipeline) Destroy() {
	if p.Handle.Initialized() {
		p.driver.DestroyPipeline(p.Handle, nil)
		p.Handle = core1_0.Pipeline{}
	}

	if p.Layout.Initialized() {
		p.driver.DestroyPipelineLayout(p.Layout, nil)
		p.Layout = core1_0.PipelineLayout{}
	}

	if p.DescriptorLayout.Initialized() {
		p.driver.DestroyDescriptorSetLayout(p.DescriptorLayout, nil)
		p.DescriptorLayout = core1_0.DescriptorSetLayout{}
	}
}
