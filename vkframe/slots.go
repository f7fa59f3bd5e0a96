package vkframe

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/meshview/vkmem"
)

// NewSlots creates the in-flight frame ring: one command buffer, two
// semaphores, one signaled fence, and one persistently-mapped uniform
// buffer per slot.
func NewSlots(driver core1_0.CoreDeviceDriver, pool core1_0.CommandPool, alloc *vkmem.Allocator, count int) ([]*Slot, error) {
	buffers, _, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, err
	}

	slots := make([]*Slot, 0, count)
	for i := 0; i < count; i++ {
		slot := &Slot{CommandBuffer: buffers[i]}
		slots = append(slots, slot)

		slot.ImageAcquired, _, err = driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			DestroySlots(driver, alloc, slots)
			return nil, err
		}

		slot.RenderFinished, _, err = driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			DestroySlots(driver, alloc, slots)
			return nil, err
		}

		// Signaled, so the first frame's wait falls through.
		slot.Fence, _, err = driver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			DestroySlots(driver, alloc, slots)
			return nil, err
		}

		slot.Uniform, err = alloc.CreateBuffer(UniformSize(), core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			DestroySlots(driver, alloc, slots)
			return nil, err
		}

		slot.Mapped, err = alloc.MapForever(slot.Uniform)
		if err != nil {
			DestroySlots(driver, alloc, slots)
			return nil, err
		}
	}

	return slots, nil
}

// DestroySlots releases every slot's sync objects and uniform buffer. The
// command buffers go away with the pool.
func DestroySlots(driver core1_0.CoreDeviceDriver, alloc *vkmem.Allocator, slots []*Slot) {
	for _, slot := range slots {
		if slot.Fence.Initialized() {
			driver.DestroyFence(slot.Fence, nil)
		}
		if slot.RenderFinished.Initialized() {
			driver.DestroySemaphore(slot.RenderFinished, nil)
		}
		if slot.ImageAcquired.Initialized() {
			driver.DestroySemaphore(slot.ImageAcquired, nil)
		}
		alloc.DestroyBuffer(slot.Uniform)
	}
}
