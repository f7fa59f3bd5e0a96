// Package vkframe drives the per-frame loop: wait on the slot fence,
// acquire a swapchain image, record, submit, present, advance. Two frames
// may be in flight at once; each owns its command buffer, semaphores,
// fence, and uniform buffer, so the CPU and GPU only ever meet at the
// fence.
package vkframe

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"

	"github.com/vkngwrapper/meshview/vkmem"
)

// MaxFramesInFlight bounds how far the CPU may run ahead of the GPU.
const MaxFramesInFlight = 2

// UniformBufferObject is the per-frame transform block read by the vertex
// shader. Field order matches the shader's uniform layout.
type UniformBufferObject struct {
	Model vkngmath.Mat4x4[float32]
	View  vkngmath.Mat4x4[float32]
	Proj  vkngmath.Mat4x4[float32]
}

// UniformSize is the byte size of the uniform block.
func UniformSize() int {
	return binary.Size(UniformBufferObject{})
}

// Device is the slice of the device driver the loop needs. The real
// core1_0.CoreDeviceDriver satisfies it; tests drive the loop with a mock
// that checks the synchronization protocol.
type Device interface {
	WaitForFences(waitAll bool, timeout time.Duration, fences ...core1_0.Fence) (common.VkResult, error)
	ResetFences(fences ...core1_0.Fence) (common.VkResult, error)
	ResetCommandBuffer(buffer core1_0.CommandBuffer, flags core1_0.CommandBufferResetFlags) (common.VkResult, error)
	QueueSubmit(queue core1_0.Queue, fence *core1_0.Fence, submits ...core1_0.SubmitInfo) (common.VkResult, error)
}

// Target is the presentable surface the loop draws into.
// *vkswapchain.Swapchain implements it.
type Target interface {
	Acquire(signal core1_0.Semaphore) (imageIndex int, stale bool, err error)
	Present(queue core1_0.Queue, waitFor core1_0.Semaphore, imageIndex int) (stale bool, err error)
	Extent() core1_0.Extent2D
	Recreate() error
}

// Recorder fills a command buffer with this frame's draw commands. The
// implementation begins and ends the buffer itself.
type Recorder interface {
	Record(cmd core1_0.CommandBuffer, slot, imageIndex int, extent core1_0.Extent2D) error
}

// Slot is one in-flight frame's private resources. The fence starts
// signaled so the first wait falls through.
type Slot struct {
	CommandBuffer  core1_0.CommandBuffer
	ImageAcquired  core1_0.Semaphore
	RenderFinished core1_0.Semaphore
	Fence          core1_0.Fence

	Uniform vkmem.Buffer
	// Mapped is the uniform buffer's persistent mapping. The fence
	// guarantees the GPU finished reading it before the CPU rewrites it.
	Mapped []byte
}

// Config wires a Loop.
type Config struct {
	Device   Device
	Target   Target
	Recorder Recorder

	GraphicsQueue core1_0.Queue
	PresentQueue  core1_0.Queue

	// Clock returns seconds of animation time. Defaults to wall time
	// since loop creation.
	Clock func() float64

	Slots []*Slot
}

// Loop runs the frame state machine over a fixed ring of slots.
type Loop struct {
	cfg     Config
	current int

	resizePending bool
}

// NewLoop builds a frame loop over the configured slots.
func NewLoop(cfg Config) *Loop {
	if cfg.Clock == nil {
		start := hrtime.Now()
		cfg.Clock = func() float64 {
			return (hrtime.Now() - start).Seconds()
		}
	}

	return &Loop{cfg: cfg}
}

// NotifyResize marks the swapchain for recreation after the next present.
// Called from the event loop when the windowing layer reports a resize.
func (l *Loop) NotifyResize() {
	l.resizePending = true
}

// CurrentSlot returns the index of the slot the next frame will use.
func (l *Loop) CurrentSlot() int {
	return l.current
}

// DrawFrame runs one iteration of the frame state machine. A stale surface
// is not an error: the frame is dropped, the swapchain recreated, and the
// next iteration retries with the same slot and an un-reset fence.
func (l *Loop) DrawFrame() error {
	slot := l.cfg.Slots[l.current]

	_, err := l.cfg.Device.WaitForFences(true, common.NoTimeout, slot.Fence)
	if err != nil {
		return err
	}

	imageIndex, stale, err := l.cfg.Target.Acquire(slot.ImageAcquired)
	if err != nil {
		return err
	}
	if stale {
		return l.cfg.Target.Recreate()
	}

	// Only now is it safe to commit this slot to the frame.
	_, err = l.cfg.Device.ResetFences(slot.Fence)
	if err != nil {
		return err
	}

	_, err = l.cfg.Device.ResetCommandBuffer(slot.CommandBuffer, 0)
	if err != nil {
		return err
	}

	extent := l.cfg.Target.Extent()
	err = l.cfg.Recorder.Record(slot.CommandBuffer, l.current, imageIndex, extent)
	if err != nil {
		return err
	}

	err = l.updateUniform(slot, extent)
	if err != nil {
		return err
	}

	_, err = l.cfg.Device.QueueSubmit(l.cfg.GraphicsQueue, &slot.Fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{slot.ImageAcquired},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{slot.CommandBuffer},
			SignalSemaphores: []core1_0.Semaphore{slot.RenderFinished},
		},
	)
	if err != nil {
		return err
	}

	stale, err = l.cfg.Target.Present(l.cfg.PresentQueue, slot.RenderFinished, imageIndex)
	if err != nil {
		return err
	}

	if stale || l.resizePending {
		l.resizePending = false
		err = l.cfg.Target.Recreate()
		if err != nil {
			return err
		}
	}

	l.current = (l.current + 1) % len(l.cfg.Slots)
	return nil
}

// updateUniform recomputes the rotating model/view/projection block from
// the animation clock and writes it into the slot's mapped uniform memory.
func (l *Loop) updateUniform(slot *Slot, extent core1_0.Extent2D) error {
	seconds := l.cfg.Clock()
	timePeriod := math.Mod(seconds, 4.0)

	ubo := UniformBufferObject{}
	ubo.Model.SetRotationZ(timePeriod * math.Pi / 2.0)
	ubo.View.SetLookAt(
		&vkngmath.Vec3[float32]{X: 2, Y: 2, Z: 2},
		&vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 0},
		&vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 1},
	)

	aspectRatio := float32(extent.Width) / float32(extent.Height)
	near := float32(0.1)
	far := float32(10.0)
	fovy := math.Pi / 4.0

	ubo.Proj.SetPerspective(fovy, aspectRatio, near, far)

	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, &ubo)
	if err != nil {
		return err
	}

	copy(slot.Mapped, buf.Bytes())
	return nil
}
