package gpu_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
	"github.com/spaghettifunk/vortex/engine/gpu/soft"
)

func newSoftDevice(t *testing.T) *soft.Device {
	t.Helper()
	backend := soft.NewBackend()
	device, err := backend.CreateDevice(0, gpu.TierHigh)
	require.NoError(t, err)
	sd := device.(*soft.Device)
	t.Cleanup(sd.Destroy)
	return sd
}

func TestResolvePicksFirstQualifyingAdapter(t *testing.T) {
	backend := soft.NewBackendWithAdapters(
		gpu.AdapterInfo{Name: "integrated", Kind: gpu.AdapterIntegrated, MaxTier: gpu.TierBase},
		gpu.AdapterInfo{Name: "discrete", Kind: gpu.AdapterDiscrete, MaxTier: gpu.TierHigh},
		gpu.AdapterInfo{Name: "discrete_2", Kind: gpu.AdapterDiscrete, MaxTier: gpu.TierHigh},
	)

	device, info, err := gpu.Resolve(backend, gpu.ResolveOptions{
		Tier:         gpu.TierHigh,
		FallbackTier: gpu.TierBase,
	})
	require.NoError(t, err)
	defer device.Destroy()

	assert.Equal(t, "discrete", info.Name)
	assert.Equal(t, 1, backend.CreatedDevices())
}

func TestResolveFallsBackWhenTierUnmet(t *testing.T) {
	backend := soft.NewBackendWithAdapters(
		gpu.AdapterInfo{Name: "integrated", Kind: gpu.AdapterIntegrated, MaxTier: gpu.TierBase},
	)

	device, info, err := gpu.Resolve(backend, gpu.ResolveOptions{
		Tier:         gpu.TierHigh,
		FallbackTier: gpu.TierBase,
	})
	require.NoError(t, err)
	defer device.Destroy()

	assert.Equal(t, gpu.TierBase, info.MaxTier)
}

func TestResolveEmptyAdapterListLeaksNothing(t *testing.T) {
	backend := soft.NewBackendWithAdapters()

	device, _, err := gpu.Resolve(backend, gpu.ResolveOptions{
		Tier:         gpu.TierHigh,
		FallbackTier: gpu.TierBase,
	})
	require.ErrorIs(t, err, core.ErrNoAdapter)
	assert.Nil(t, device)
	assert.Equal(t, 0, backend.CreatedDevices(), "a failed resolve must not leave a device allocated")
}

func TestFenceSyncValuesAreStrictlyIncreasing(t *testing.T) {
	device := newSoftDevice(t)

	sync, err := gpu.NewFenceSync(device, device.Queue(gpu.QueueGraphics))
	require.NoError(t, err)
	defer sync.Destroy()

	for want := uint64(1); want <= 3; want++ {
		got, err := sync.Signal()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.NoError(t, sync.WaitUntil(3))
	assert.GreaterOrEqual(t, sync.CompletedValue(), uint64(3))
	assert.Equal(t, uint64(3), sync.LastSignaled())
}

func TestFenceWaitBlocksUntilQueueCatchesUp(t *testing.T) {
	device := newSoftDevice(t)
	device.SetQueueDelay(gpu.QueueCompute, 20*time.Millisecond)

	sync, err := gpu.NewFenceSync(device, device.Queue(gpu.QueueCompute))
	require.NoError(t, err)
	defer sync.Destroy()

	// Queue a slow batch ahead of the signal so the wait has to block.
	list, err := device.NewCommandList(gpu.QueueCompute)
	require.NoError(t, err)
	require.NoError(t, list.Reset(nil))
	require.NoError(t, list.Close())
	require.NoError(t, device.Queue(gpu.QueueCompute).Submit(list))

	value, err := sync.Signal()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), sync.CompletedValue())

	require.NoError(t, sync.WaitUntil(value))
	assert.Equal(t, value, sync.CompletedValue())
}

func TestCommandContextGuardsReuse(t *testing.T) {
	device := newSoftDevice(t)
	device.SetQueueDelay(gpu.QueueGraphics, 20*time.Millisecond)

	sync, err := gpu.NewFenceSync(device, device.Queue(gpu.QueueGraphics))
	require.NoError(t, err)
	defer sync.Destroy()

	ctx, err := gpu.NewCommandContext(device, gpu.QueueGraphics, sync)
	require.NoError(t, err)

	_, err = ctx.Submit()
	assert.ErrorIs(t, err, core.ErrContextNotRecording)

	require.NoError(t, ctx.Begin(nil))
	assert.ErrorIs(t, ctx.Begin(nil), core.ErrContextInFlight)

	token, err := ctx.Submit()
	require.NoError(t, err)
	assert.Equal(t, token, ctx.PendingValue())

	// The submission is still executing behind the queue delay; starting a
	// new recording pass without a wait is a precondition violation.
	assert.ErrorIs(t, ctx.Begin(nil), core.ErrContextInFlight)

	require.NoError(t, ctx.WaitForGPU())
	assert.NoError(t, ctx.Begin(nil))
}

func TestNoopTransitionStillRecordsBarrier(t *testing.T) {
	device := newSoftDevice(t)

	buffer, err := device.NewBuffer(gpu.BufferDesc{Name: "scratch", Size: 64, Usage: gpu.BufferUsageStorage})
	require.NoError(t, err)
	tracked := gpu.NewTracked(buffer, gpu.StateUnorderedAccess)

	sync, err := gpu.NewFenceSync(device, device.Queue(gpu.QueueCompute))
	require.NoError(t, err)
	ctx, err := gpu.NewCommandContext(device, gpu.QueueCompute, sync)
	require.NoError(t, err)

	require.NoError(t, ctx.Begin(nil))
	tracked.TransitionTo(ctx.List(), gpu.StateUnorderedAccess)
	tracked.TransitionTo(ctx.List(), gpu.StateShaderRead)
	_, err = ctx.Submit()
	require.NoError(t, err)
	require.NoError(t, ctx.WaitForGPU())

	var barriers []soft.Event
	for _, e := range device.Journal().Events() {
		if e.Kind == soft.EventBarrier && e.Resource == "scratch" {
			barriers = append(barriers, e)
		}
	}
	require.Len(t, barriers, 2, "the no-op transition must not be dropped")
	assert.Equal(t, gpu.StateUnorderedAccess, barriers[0].From)
	assert.Equal(t, gpu.StateUnorderedAccess, barriers[0].To)
	assert.Equal(t, gpu.StateUnorderedAccess, barriers[1].From)
	assert.Equal(t, gpu.StateShaderRead, barriers[1].To)
	assert.Less(t, barriers[0].Seq, barriers[1].Seq)
	assert.Equal(t, gpu.StateShaderRead, tracked.State())
}

func TestPresentationRingAlternates(t *testing.T) {
	device := newSoftDevice(t)

	ring, err := gpu.NewPresentationRing(device, nil, gpu.SwapchainConfig{
		Width: 64, Height: 64, BufferCount: 2, Format: gpu.FormatBGRA8Unorm,
	})
	require.NoError(t, err)
	defer ring.Destroy()

	sync, err := gpu.NewFenceSync(device, device.Queue(gpu.QueueGraphics))
	require.NoError(t, err)
	ctx, err := gpu.NewCommandContext(device, gpu.QueueGraphics, sync)
	require.NoError(t, err)

	var indices []int
	for frame := 0; frame < 3; frame++ {
		index := ring.CurrentIndex()
		require.GreaterOrEqual(t, index, 0)
		require.Less(t, index, ring.BufferCount())
		indices = append(indices, index)

		require.NoError(t, ctx.WaitForGPU())
		require.NoError(t, ctx.Begin(nil))
		back := ring.CurrentBuffer()
		back.TransitionTo(ctx.List(), gpu.StateRenderTarget)
		ctx.List().ClearRenderTarget(back.Resource(), [4]float32{0, 0, 0, 1})
		_, err := ring.Present(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, ctx.WaitForGPU())

	assert.Equal(t, []int{0, 1, 0}, indices)

	presents := 0
	for _, e := range device.Journal().Events() {
		if e.Kind == soft.EventPresent {
			presents++
		}
	}
	assert.Equal(t, 3, presents)
}

func TestLayoutBuilderSlotsAreAppendOrderAndFrozen(t *testing.T) {
	builder := gpu.NewLayoutBuilder()
	assert.Equal(t, 0, builder.AppendConstantBuffer(0, gpu.VisibilityCompute))
	assert.Equal(t, 1, builder.AppendDescriptorTable(gpu.VisibilityCompute,
		gpu.DescriptorRange{Kind: gpu.RangeShaderResource, Count: 1}))
	assert.Equal(t, 2, builder.AppendDescriptorTable(gpu.VisibilityCompute,
		gpu.DescriptorRange{Kind: gpu.RangeUnorderedAccess, Count: 1}))
	assert.Equal(t, 0, builder.AppendStaticSampler(0, gpu.VisibilityPixel))

	layout := builder.Build(gpu.LayoutFlagNone)
	require.Equal(t, 3, layout.SlotCount())
	assert.Equal(t, gpu.BindingConstantBuffer, layout.Slot(0).Kind)
	assert.Equal(t, gpu.BindingTable, layout.Slot(1).Kind)
	assert.Equal(t, gpu.RangeUnorderedAccess, layout.Slot(2).Ranges[0].Kind)

	// Appending to the builder after Build must not grow the layout.
	builder.AppendConstantBuffer(1, gpu.VisibilityAll)
	assert.Equal(t, 3, layout.SlotCount())
}
