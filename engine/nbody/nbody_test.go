package nbody_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vortex/engine/gpu"
	"github.com/spaghettifunk/vortex/engine/gpu/soft"
	"github.com/spaghettifunk/vortex/engine/nbody"
)

var dummyShader = []byte{0x03, 0x02, 0x23, 0x07}

func newSystem(t *testing.T, count uint32) (*soft.Device, *nbody.System) {
	t.Helper()
	device, err := soft.NewBackend().CreateDevice(0, gpu.TierHigh)
	require.NoError(t, err)
	sd := device.(*soft.Device)
	t.Cleanup(sd.Destroy)

	system, err := nbody.NewSystem(sd, dummyShader, nbody.Config{ParticleCount: count})
	require.NoError(t, err)
	t.Cleanup(system.Destroy)
	return sd, system
}

func TestSystemDoubleBuffersAcrossSteps(t *testing.T) {
	device, system := newSystem(t, 512)

	sync, err := gpu.NewFenceSync(device, device.Queue(gpu.QueueCompute))
	require.NoError(t, err)
	ctx, err := gpu.NewCommandContext(device, gpu.QueueCompute, sync)
	require.NoError(t, err)

	first := system.RenderBuffer()
	assert.Equal(t, gpu.StateUnorderedAccess, first.State())

	require.NoError(t, ctx.Begin(system.Pipeline()))
	system.RecordSimulate(ctx, 0.016)
	_, err = ctx.Submit()
	require.NoError(t, err)
	require.NoError(t, ctx.WaitForGPU())

	second := system.RenderBuffer()
	assert.NotEqual(t, first.Resource().Name(), second.Resource().Name(),
		"the buffer written this step must become the render buffer")
	assert.Equal(t, gpu.StateUnorderedAccess, second.State())
	assert.Equal(t, gpu.StateShaderRead, first.State())

	// The step reads last step's output and the constants, writes the other
	// buffer.
	journal := device.Journal()
	read, ok := journal.First(func(e soft.Event) bool {
		return e.Kind == soft.EventRead && e.Resource == first.Resource().Name()
	})
	require.True(t, ok)
	write, ok := journal.First(func(e soft.Event) bool {
		return e.Kind == soft.EventWrite && e.Resource == second.Resource().Name()
	})
	require.True(t, ok)
	assert.NotZero(t, read.Seq)
	assert.NotZero(t, write.Seq)

	_, ok = journal.First(func(e soft.Event) bool {
		return e.Kind == soft.EventWrite && e.Resource == "nbody_constants"
	})
	assert.True(t, ok, "simulation constants are uploaded each step")

	// A second step flips back.
	require.NoError(t, ctx.Begin(system.Pipeline()))
	system.RecordSimulate(ctx, 0.016)
	_, err = ctx.Submit()
	require.NoError(t, err)
	require.NoError(t, ctx.WaitForGPU())
	assert.Equal(t, first.Resource().Name(), system.RenderBuffer().Resource().Name())
}

func TestSystemRequiresShaderBlob(t *testing.T) {
	device, err := soft.NewBackend().CreateDevice(0, gpu.TierHigh)
	require.NoError(t, err)
	defer device.Destroy()

	_, err = nbody.NewSystem(device, nil, nbody.Config{ParticleCount: 16})
	assert.Error(t, err)
}

func TestSystemDefaultsParticleCount(t *testing.T) {
	_, system := newSystem(t, 0)
	assert.Equal(t, uint32(1024), system.Count())
}
