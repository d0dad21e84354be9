package soft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

func newDevice(t *testing.T) *Device {
	t.Helper()
	device, err := NewBackend().CreateDevice(0, gpu.TierHigh)
	require.NoError(t, err)
	d := device.(*Device)
	t.Cleanup(d.Destroy)
	return d
}

func TestCreateDeviceRejectsBadRequests(t *testing.T) {
	backend := NewBackendWithAdapters(
		gpu.AdapterInfo{Name: "weak", Kind: gpu.AdapterIntegrated, MaxTier: gpu.TierBase},
	)

	_, err := backend.CreateDevice(5, gpu.TierBase)
	assert.Error(t, err, "out-of-range adapter index")

	_, err = backend.CreateDevice(0, gpu.TierHigh)
	assert.Error(t, err, "adapter does not reach the tier")

	_, err = backend.CreateDevice(-1, gpu.TierHigh)
	assert.ErrorIs(t, err, core.ErrNoAdapter)

	assert.Equal(t, 0, backend.CreatedDevices())
}

func TestDeviceLostWakesBlockedWaiters(t *testing.T) {
	f := newFence()

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.WaitUntil(5)
	}()

	// Give the waiter time to block, then kill the device.
	time.Sleep(10 * time.Millisecond)
	f.markLost()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, core.ErrDeviceLost)
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake on device loss")
	}
}

func TestFenceValuesNeverRegress(t *testing.T) {
	f := newFence()
	f.signalTo(7)
	f.signalTo(3)
	assert.Equal(t, uint64(7), f.CompletedValue())
}

// submitComputeWrite records a dispatch writing into buf and a trailing
// fence signal on the compute queue.
func submitComputeWrite(t *testing.T, d *Device, buf gpu.Resource, f gpu.Fence, value uint64) {
	t.Helper()
	list, err := d.NewCommandList(gpu.QueueCompute)
	require.NoError(t, err)
	require.NoError(t, list.Reset(nil))
	list.BindWriteTable(0, buf)
	list.Dispatch(1, 1, 1)
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue(gpu.QueueCompute).Submit(list))
	require.NoError(t, d.Queue(gpu.QueueCompute).Signal(f, value))
}

// submitGraphicsRead records a draw sampling buf on the graphics queue.
func submitGraphicsRead(t *testing.T, d *Device, buf gpu.Resource) {
	t.Helper()
	list, err := d.NewCommandList(gpu.QueueGraphics)
	require.NoError(t, err)
	require.NoError(t, list.Reset(nil))
	list.BindReadTable(0, buf)
	list.Draw(1, 1)
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue(gpu.QueueGraphics).Submit(list))
}

// Without the CPU-side fence wait, a slow compute queue lets the graphics
// read execute before the compute write. The journal's global sequence
// numbers make the violation observable.
func TestMissingCrossQueueWaitIsObservable(t *testing.T) {
	d := newDevice(t)
	d.SetQueueDelay(gpu.QueueCompute, 30*time.Millisecond)

	buf, err := d.NewBuffer(gpu.BufferDesc{Name: "particles", Size: 64, Usage: gpu.BufferUsageStorage})
	require.NoError(t, err)
	fence, err := d.NewFence()
	require.NoError(t, err)

	submitComputeWrite(t, d, buf, fence, 1)
	// Deliberately no WaitUntil here.
	submitGraphicsRead(t, d, buf)
	require.NoError(t, d.WaitIdle())

	read, ok := d.Journal().First(func(e Event) bool {
		return e.Kind == EventRead && e.Resource == "particles"
	})
	require.True(t, ok)
	write, ok := d.Journal().First(func(e Event) bool {
		return e.Kind == EventWrite && e.Resource == "particles"
	})
	require.True(t, ok)

	assert.Less(t, read.Seq, write.Seq, "the race must be visible in the journal")
}

func TestCrossQueueWaitOrdersTheRead(t *testing.T) {
	d := newDevice(t)
	d.SetQueueDelay(gpu.QueueCompute, 30*time.Millisecond)

	buf, err := d.NewBuffer(gpu.BufferDesc{Name: "particles", Size: 64, Usage: gpu.BufferUsageStorage})
	require.NoError(t, err)
	fence, err := d.NewFence()
	require.NoError(t, err)

	submitComputeWrite(t, d, buf, fence, 1)
	require.NoError(t, fence.WaitUntil(1))
	submitGraphicsRead(t, d, buf)
	require.NoError(t, d.WaitIdle())

	read, ok := d.Journal().First(func(e Event) bool {
		return e.Kind == EventRead && e.Resource == "particles"
	})
	require.True(t, ok)
	write, ok := d.Journal().First(func(e Event) bool {
		return e.Kind == EventWrite && e.Resource == "particles"
	})
	require.True(t, ok)

	assert.Less(t, write.Seq, read.Seq)
}

// The flip is executed by the graphics queue, so even with a slow queue
// the journal never shows a present outrunning the frame's own draw.
func TestPresentIsOrderedAfterQueuedWork(t *testing.T) {
	d := newDevice(t)
	d.SetQueueDelay(gpu.QueueGraphics, 20*time.Millisecond)

	sc, err := d.NewSwapchain(nil, gpu.SwapchainConfig{Width: 4, Height: 4, BufferCount: 2})
	require.NoError(t, err)

	buf, err := d.NewBuffer(gpu.BufferDesc{Name: "frame", Size: 16, Usage: gpu.BufferUsageStorage})
	require.NoError(t, err)

	list, err := d.NewCommandList(gpu.QueueGraphics)
	require.NoError(t, err)
	require.NoError(t, list.Reset(nil))
	list.BindWriteTable(0, buf)
	list.Draw(1, 1)
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue(gpu.QueueGraphics).Submit(list))
	require.NoError(t, sc.Present())

	write, ok := d.Journal().First(func(e Event) bool {
		return e.Kind == EventWrite && e.Resource == "frame"
	})
	require.True(t, ok)
	present, ok := d.Journal().First(func(e Event) bool {
		return e.Kind == EventPresent
	})
	require.True(t, ok)
	assert.Less(t, write.Seq, present.Seq,
		"the flip must execute after work queued ahead of it")
}

func TestSubmitRequiresClosedList(t *testing.T) {
	d := newDevice(t)

	list, err := d.NewCommandList(gpu.QueueGraphics)
	require.NoError(t, err)
	require.NoError(t, list.Reset(nil))

	assert.Error(t, d.Queue(gpu.QueueGraphics).Submit(list))

	require.NoError(t, list.Close())
	assert.ErrorIs(t, list.Close(), core.ErrContextNotRecording)
	assert.NoError(t, d.Queue(gpu.QueueGraphics).Submit(list))
}

func TestWriteBufferUploadsInOrder(t *testing.T) {
	d := newDevice(t)

	buf, err := d.NewBuffer(gpu.BufferDesc{Name: "constants", Size: 4, Usage: gpu.BufferUsageConstant})
	require.NoError(t, err)

	list, err := d.NewCommandList(gpu.QueueGraphics)
	require.NoError(t, err)
	require.NoError(t, list.Reset(nil))
	list.WriteBuffer(buf, []byte{1, 2, 3, 4})
	list.WriteBuffer(buf, []byte{5, 6, 7, 8})
	require.NoError(t, list.Close())
	require.NoError(t, d.Queue(gpu.QueueGraphics).Submit(list))
	require.NoError(t, d.WaitIdle())

	assert.Equal(t, []byte{5, 6, 7, 8}, buf.(*resource).data)
}
