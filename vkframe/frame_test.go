package vkframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// scriptedDevice records the order of driver calls so the tests can assert
// the synchronization protocol, not just that calls happened.
type scriptedDevice struct {
	calls *[]string
}

func (d scriptedDevice) WaitForFences(waitAll bool, timeout time.Duration, fences ...core1_0.Fence) (common.VkResult, error) {
	*d.calls = append(*d.calls, "wait-fence")
	return core1_0.VKSuccess, nil
}

func (d scriptedDevice) ResetFences(fences ...core1_0.Fence) (common.VkResult, error) {
	*d.calls = append(*d.calls, "reset-fence")
	return core1_0.VKSuccess, nil
}

func (d scriptedDevice) ResetCommandBuffer(buffer core1_0.CommandBuffer, flags core1_0.CommandBufferResetFlags) (common.VkResult, error) {
	*d.calls = append(*d.calls, "reset-buffer")
	return core1_0.VKSuccess, nil
}

func (d scriptedDevice) QueueSubmit(queue core1_0.Queue, fence *core1_0.Fence, submits ...core1_0.SubmitInfo) (common.VkResult, error) {
	*d.calls = append(*d.calls, "submit")
	return core1_0.VKSuccess, nil
}

type scriptedTarget struct {
	calls *[]string

	staleOnAcquire bool
	staleOnPresent bool
	recreates      int
}

func (t *scriptedTarget) Acquire(signal core1_0.Semaphore) (int, bool, error) {
	*t.calls = append(*t.calls, "acquire")
	if t.staleOnAcquire {
		t.staleOnAcquire = false
		return 0, true, nil
	}
	return 0, false, nil
}

func (t *scriptedTarget) Present(queue core1_0.Queue, waitFor core1_0.Semaphore, imageIndex int) (bool, error) {
	*t.calls = append(*t.calls, "present")
	if t.staleOnPresent {
		t.staleOnPresent = false
		return true, nil
	}
	return false, nil
}

func (t *scriptedTarget) Extent() core1_0.Extent2D {
	return core1_0.Extent2D{Width: 800, Height: 600}
}

func (t *scriptedTarget) Recreate() error {
	*t.calls = append(*t.calls, "recreate")
	t.recreates++
	return nil
}

type scriptedRecorder struct {
	calls *[]string
}

func (r scriptedRecorder) Record(cmd core1_0.CommandBuffer, slot, imageIndex int, extent core1_0.Extent2D) error {
	*r.calls = append(*r.calls, "record")
	return nil
}

func testLoop(target *scriptedTarget, calls *[]string) *Loop {
	slots := make([]*Slot, MaxFramesInFlight)
	for i := range slots {
		slots[i] = &Slot{Mapped: make([]byte, UniformSize())}
	}

	target.calls = calls
	return NewLoop(Config{
		Device:   scriptedDevice{calls: calls},
		Target:   target,
		Recorder: scriptedRecorder{calls: calls},
		Clock:    func() float64 { return 0 },
		Slots:    slots,
	})
}

func TestDrawFrameOrdering(t *testing.T) {
	var calls []string
	loop := testLoop(&scriptedTarget{}, &calls)

	require.NoError(t, loop.DrawFrame())

	require.Equal(t, []string{
		"wait-fence",
		"acquire",
		"reset-fence",
		"reset-buffer",
		"record",
		"submit",
		"present",
	}, calls)
	require.Equal(t, 1, loop.CurrentSlot())
}

func TestDrawFrameAdvancesSlotsModulo(t *testing.T) {
	var calls []string
	loop := testLoop(&scriptedTarget{}, &calls)

	for i := 0; i < 5; i++ {
		require.Equal(t, i%MaxFramesInFlight, loop.CurrentSlot())
		require.NoError(t, loop.DrawFrame())
	}
	require.Equal(t, 5%MaxFramesInFlight, loop.CurrentSlot())
}

func TestDrawFrameStaleAcquireDropsFrame(t *testing.T) {
	var calls []string
	target := &scriptedTarget{staleOnAcquire: true}
	loop := testLoop(target, &calls)

	require.NoError(t, loop.DrawFrame())

	// The frame is dropped before the fence is reset, so the retry can
	// wait on the still-signaled fence with the same slot.
	require.Equal(t, []string{"wait-fence", "acquire", "recreate"}, calls)
	require.Equal(t, 0, loop.CurrentSlot())

	calls = calls[:0]
	require.NoError(t, loop.DrawFrame())
	require.Equal(t, []string{
		"wait-fence",
		"acquire",
		"reset-fence",
		"reset-buffer",
		"record",
		"submit",
		"present",
	}, calls)
	require.Equal(t, 1, loop.CurrentSlot())
}

func TestDrawFrameStalePresentRecreates(t *testing.T) {
	var calls []string
	target := &scriptedTarget{staleOnPresent: true}
	loop := testLoop(target, &calls)

	require.NoError(t, loop.DrawFrame())

	// The frame completed, so the swapchain is rebuilt and the slot still
	// advances.
	require.Equal(t, "recreate", calls[len(calls)-1])
	require.Equal(t, 1, loop.CurrentSlot())
}

func TestNotifyResizeConsumedAfterPresent(t *testing.T) {
	var calls []string
	target := &scriptedTarget{}
	loop := testLoop(target, &calls)

	loop.NotifyResize()
	require.NoError(t, loop.DrawFrame())
	require.Equal(t, 1, target.recreates)

	require.NoError(t, loop.DrawFrame())
	require.Equal(t, 1, target.recreates)
}
