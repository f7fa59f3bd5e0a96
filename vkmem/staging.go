package vkmem

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// BeginOneShot allocates and begins a single-use command buffer on the
// allocator's pool.
func (a *Allocator) BeginOneShot() (core1_0.CommandBuffer, error) {
	buffers, _, err := a.Driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        a.Pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, err
	}

	buffer := buffers[0]
	_, err = a.Driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return buffer, err
}

// EndOneShot submits the command buffer and blocks until the queue drains.
// The blocking wait is deliberate: one-shot copies run only during startup,
// where correctness matters and throughput does not.
func (a *Allocator) EndOneShot(buffer core1_0.CommandBuffer) error {
	_, err := a.Driver.EndCommandBuffer(buffer)
	if err != nil {
		return err
	}

	_, err = a.Driver.QueueSubmit(a.Queue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return err
	}

	_, err = a.Driver.QueueWaitIdle(a.Queue)
	if err != nil {
		return err
	}

	a.Driver.FreeCommandBuffers(buffer)
	return nil
}

// CopyBuffer records and runs a full-range buffer-to-buffer copy.
func (a *Allocator) CopyBuffer(src, dst Buffer, size int) error {
	buffer, err := a.BeginOneShot()
	if err != nil {
		return err
	}

	err = a.Driver.CmdCopyBuffer(buffer, src.Handle, dst.Handle,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
	if err != nil {
		return err
	}

	return a.EndOneShot(buffer)
}

// CopyBufferToImage copies a tightly-packed buffer into mip level 0 of an
// image already in the transfer-dst layout.
func (a *Allocator) CopyBufferToImage(src Buffer, dst Image, width, height int) error {
	buffer, err := a.BeginOneShot()
	if err != nil {
		return err
	}

	err = a.Driver.CmdCopyBufferToImage(buffer, src.Handle, dst.Handle, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		},
	)
	if err != nil {
		return err
	}

	return a.EndOneShot(buffer)
}

// Upload moves host data into a fresh device-local buffer through a staging
// buffer: stage, map-and-copy, one-shot transfer, wait, free staging.
func (a *Allocator) Upload(data any, usage core1_0.BufferUsageFlags) (Buffer, error) {
	size := binary.Size(data)
	if size <= 0 {
		return Buffer{}, errors.Newf("upload data has no fixed binary size")
	}

	staging, err := a.CreateBuffer(size, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return Buffer{}, err
	}
	defer a.DestroyBuffer(staging)

	err = WriteData(a.Driver, staging.Memory, 0, data)
	if err != nil {
		return Buffer{}, err
	}

	dst, err := a.CreateBuffer(size, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return Buffer{}, err
	}

	err = a.CopyBuffer(staging, dst, size)
	if err != nil {
		a.DestroyBuffer(dst)
		return Buffer{}, err
	}

	return dst, nil
}
