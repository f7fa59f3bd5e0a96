// Package vktexture uploads a decoded RGBA8 image into a device-local,
// mipmapped, sampleable texture. The mip chain is generated on the GPU by
// repeated half-resolution blits.
package vktexture

import (
	"image"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/meshview/vkdevice"
	"github.com/vkngwrapper/meshview/vkmem"
)

const textureFormat = core1_0.FormatR8G8B8A8SRGB

// Texture is a sampleable device image with a full mip chain.
type Texture struct {
	Image     vkmem.Image
	View      core1_0.ImageView
	Sampler   core1_0.Sampler
	MipLevels int
}

// MipLevels returns the number of mip levels for a full chain over a
// width×height image: floor(log2(max(w,h))) + 1.
func MipLevels(width, height int) int {
	return int(math.Floor(math.Log2(math.Max(float64(width), float64(height))))) + 1
}

// RGBA8 flattens a decoded image into a tightly-packed RGBA byte buffer.
func RGBA8(img image.Image) ([]byte, int, int) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	pixels := make([]byte, 0, width*height*4)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			pixels = append(pixels, byte(r>>8), byte(g>>8), byte(b>>8), byte(a>>8))
		}
	}

	return pixels, width, height
}

// Upload stages the pixel buffer into a device-local image, generates the
// mip chain, and leaves every level in the shader-read-only layout. The
// pixels must be tightly-packed RGBA8.
func Upload(alloc *vkmem.Allocator, dev *vkdevice.Device, pixels []byte, width, height int) (*Texture, error) {
	if len(pixels) != width*height*4 {
		return nil, errors.Newf("pixel buffer is %d bytes, want %d for %dx%d RGBA", len(pixels), width*height*4, width, height)
	}

	t := &Texture{MipLevels: MipLevels(width, height)}

	staging, err := alloc.CreateBuffer(len(pixels), core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}
	defer alloc.DestroyBuffer(staging)

	err = vkmem.WriteData(alloc.Driver, staging.Memory, 0, pixels)
	if err != nil {
		return nil, err
	}

	t.Image, err = alloc.CreateImage(width, height,
		t.MipLevels,
		core1_0.Samples1,
		textureFormat,
		core1_0.ImageTilingOptimal,
		core1_0.ImageUsageTransferSrc|core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = transitionLayout(alloc, t.Image.Handle, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal, t.MipLevels)
	if err != nil {
		alloc.DestroyImage(t.Image)
		return nil, err
	}

	err = alloc.CopyBufferToImage(staging, t.Image, width, height)
	if err != nil {
		alloc.DestroyImage(t.Image)
		return nil, err
	}

	err = generateMipmaps(alloc, dev, t.Image.Handle, width, height, t.MipLevels)
	if err != nil {
		alloc.DestroyImage(t.Image)
		return nil, err
	}

	t.View, err = alloc.CreateImageView(t.Image.Handle, textureFormat, core1_0.ImageAspectColor, t.MipLevels)
	if err != nil {
		t.Destroy(alloc)
		return nil, err
	}

	t.Sampler, err = newSampler(alloc.Driver, dev, t.MipLevels)
	if err != nil {
		t.Destroy(alloc)
		return nil, err
	}

	return t, nil
}

// transitionLayout moves every mip level of the image between the two
// supported layout pairs. Any other pair is a programming error and fatal.
func transitionLayout(alloc *vkmem.Allocator, image core1_0.Image, oldLayout, newLayout core1_0.ImageLayout, mipLevels int) error {
	var sourceStage, destStage core1_0.PipelineStageFlags
	var sourceAccess, destAccess core1_0.AccessFlags

	if oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal {
		sourceAccess = 0
		destAccess = core1_0.AccessTransferWrite
		sourceStage = core1_0.PipelineStageTopOfPipe
		destStage = core1_0.PipelineStageTransfer
	} else if oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal {
		sourceAccess = core1_0.AccessTransferWrite
		destAccess = core1_0.AccessShaderRead
		sourceStage = core1_0.PipelineStageTransfer
		destStage = core1_0.PipelineStageFragmentShader
	} else {
		return errors.Newf("unsupported layout transition: %s -> %s", oldLayout, newLayout)
	}

	buffer, err := alloc.BeginOneShot()
	if err != nil {
		return err
	}

	err = alloc.Driver.CmdPipelineBarrier(buffer, sourceStage, destStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     mipLevels,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: sourceAccess,
			DstAccessMask: destAccess,
		},
	})
	if err != nil {
		return err
	}

	return alloc.EndOneShot(buffer)
}

// generateMipmaps fills levels 1..n-1 by blitting each level from the one
// above it, transitioning each source level to shader-read-only as soon as
// it has been consumed.
func generateMipmaps(alloc *vkmem.Allocator, dev *vkdevice.Device, image core1_0.Image, width, height, mipLevels int) error {
	if !dev.SupportsLinearBlit(textureFormat) {
		return errors.Newf("texture format %s does not support linear blitting", textureFormat)
	}

	commandBuffer, err := alloc.BeginOneShot()
	if err != nil {
		return err
	}

	barrier := core1_0.ImageMemoryBarrier{
		Image:               image,
		SrcQueueFamilyIndex: -1,
		DstQueueFamilyIndex: -1,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseArrayLayer: 0,
			LayerCount:     1,
			LevelCount:     1,
		},
	}

	mipWidth := width
	mipHeight := height
	for i := 1; i < mipLevels; i++ {
		barrier.SubresourceRange.BaseMipLevel = i - 1
		barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
		barrier.NewLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferWrite
		barrier.DstAccessMask = core1_0.AccessTransferRead

		err = alloc.Driver.CmdPipelineBarrier(commandBuffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return err
		}

		nextMipWidth := mipWidth
		nextMipHeight := mipHeight
		if nextMipWidth > 1 {
			nextMipWidth /= 2
		}
		if nextMipHeight > 1 {
			nextMipHeight /= 2
		}

		err = alloc.Driver.CmdBlitImage(commandBuffer, image, core1_0.ImageLayoutTransferSrcOptimal, image, core1_0.ImageLayoutTransferDstOptimal, []core1_0.ImageBlit{
			{
				SrcSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       i - 1,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				SrcOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: mipWidth, Y: mipHeight, Z: 1},
				},

				DstSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       i,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				DstOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: nextMipWidth, Y: nextMipHeight, Z: 1},
				},
			},
		}, core1_0.FilterLinear)
		if err != nil {
			return err
		}

		barrier.OldLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferRead
		barrier.DstAccessMask = core1_0.AccessShaderRead

		err = alloc.Driver.CmdPipelineBarrier(commandBuffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return err
		}

		mipWidth = nextMipWidth
		mipHeight = nextMipHeight
	}

	// The last level was only ever a blit destination.
	barrier.SubresourceRange.BaseMipLevel = mipLevels - 1
	barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
	barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
	barrier.SrcAccessMask = core1_0.AccessTransferWrite
	barrier.DstAccessMask = core1_0.AccessShaderRead

	err = alloc.Driver.CmdPipelineBarrier(commandBuffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
	if err != nil {
		return err
	}

	return alloc.EndOneShot(commandBuffer)
}

func newSampler(driver core1_0.CoreDeviceDriver, dev *vkdevice.Device, mipLevels int) (core1_0.Sampler, error) {
	sampler, _, err := driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: true,
		MaxAnisotropy:    dev.Properties.Limits.MaxSamplerAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     float32(mipLevels),
	})
	if err != nil {
		return core1_0.Sampler{}, errors.Wrap(err, "create sampler")
	}

	return sampler, nil
}

// Destroy releases the sampler, view, image, and memory.
func (t *Texture) Destroy(alloc *vkmem.Allocator) {
	if t.Sampler.Initialized() {
		alloc.Driver.DestroySampler(t.Sampler, nil)
		t.Sampler = core1_0.Sampler{}
	}

	if t.View.Initialized() {
		alloc.Driver.DestroyImageView(t.View, nil)
		t.View = core1_0.ImageView{}
	}

	alloc.DestroyImage(t.Image)
	t.Image = vkmem.Image{}
}
