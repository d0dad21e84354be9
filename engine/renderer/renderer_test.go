package renderer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
	"github.com/spaghettifunk/vortex/engine/gpu/soft"
	"github.com/spaghettifunk/vortex/engine/renderer"
)

var dummyShaders = renderer.ShaderSet{
	Vertex:  []byte{0x03, 0x02, 0x23, 0x07},
	Pixel:   []byte{0x03, 0x02, 0x23, 0x07},
	Compute: []byte{0x03, 0x02, 0x23, 0x07},
}

func newRenderer(t *testing.T) (*renderer.Renderer, *soft.Device) {
	t.Helper()
	r, err := renderer.New(soft.NewBackend(), nil, dummyShaders, renderer.Config{
		Width:         64,
		Height:        64,
		BufferCount:   2,
		ParticleCount: 256,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown() })
	return r, r.Device().(*soft.Device)
}

func TestFrameProtocolOverThreeFrames(t *testing.T) {
	r, device := newRenderer(t)
	// Slow the compute queue so a missing cross-queue wait would let the
	// graphics read overtake the compute write.
	device.SetQueueDelay(gpu.QueueCompute, 10*time.Millisecond)

	for frame := 0; frame < 3; frame++ {
		require.NoError(t, r.Frame(0.016))
	}
	require.NoError(t, device.WaitIdle())

	events := device.Journal().Events()

	// The back buffers alternate 0,1,0 across the three presents.
	var presented []string
	for _, e := range events {
		if e.Kind == soft.EventPresent {
			presented = append(presented, e.Resource)
		}
	}
	assert.Equal(t, []string{"backbuffer_0", "backbuffer_1", "backbuffer_0"}, presented)

	// Every graphics read of a particle buffer happens after the compute
	// write that produced it.
	lastWrite := map[string]uint64{}
	for _, e := range events {
		switch {
		case e.Kind == soft.EventWrite && e.Queue == gpu.QueueCompute:
			lastWrite[e.Resource] = e.Seq
		case e.Kind == soft.EventRead && e.Queue == gpu.QueueGraphics:
			if wseq, ok := lastWrite[e.Resource]; ok {
				assert.Less(t, wseq, e.Seq,
					"graphics consumed %s before compute finished writing it", e.Resource)
			}
		}
	}

	// Each frame ends in one graphics signal; values are strictly increasing.
	var signals []uint64
	for _, e := range events {
		if e.Kind == soft.EventSignal && e.Queue == gpu.QueueGraphics {
			signals = append(signals, e.Value)
		}
	}
	assert.Equal(t, []uint64{1, 2, 3}, signals)
}

// Particles are expanded one point per vertex index; anything but
// point-list assembly would rasterize triangles across unrelated
// particles and drop the shader's point size.
func TestParticlePipelineDrawsPoints(t *testing.T) {
	r, _ := newRenderer(t)

	p, ok := r.Pipeline().(interface{ Topology() gpu.PrimitiveTopology })
	require.True(t, ok)
	assert.Equal(t, gpu.TopologyPointList, p.Topology())
}

func TestShutdownReleasesNothingEarly(t *testing.T) {
	r, device := newRenderer(t)

	require.NoError(t, r.Frame(0.016))
	require.NoError(t, r.Shutdown())

	events := device.Journal().Events()

	var lastSignal, firstRelease uint64
	for _, e := range events {
		if e.Kind == soft.EventSignal && e.Seq > lastSignal {
			lastSignal = e.Seq
		}
		if e.Kind == soft.EventRelease && (firstRelease == 0 || e.Seq < firstRelease) {
			firstRelease = e.Seq
		}
	}
	require.NotZero(t, lastSignal)
	require.NotZero(t, firstRelease)
	assert.Less(t, lastSignal, firstRelease,
		"no resource may be released before the final fence signals complete")
}

func TestShutdownIsIdempotent(t *testing.T) {
	r, _ := newRenderer(t)

	require.NoError(t, r.Shutdown())
	require.NoError(t, r.Shutdown())

	assert.ErrorIs(t, r.Frame(0.016), core.ErrShutdown)
}

func TestRendererFallsBackToBaseTier(t *testing.T) {
	backend := soft.NewBackendWithAdapters(
		gpu.AdapterInfo{Name: "weak", Kind: gpu.AdapterIntegrated, MaxTier: gpu.TierBase},
	)
	r, err := renderer.New(backend, nil, dummyShaders, renderer.Config{ParticleCount: 64})
	require.NoError(t, err)
	defer func() { _ = r.Shutdown() }()

	assert.Equal(t, gpu.TierBase, r.Adapter().MaxTier)
	require.NoError(t, r.Frame(0.016))
}

func TestRendererFailsCleanlyWithNoAdapters(t *testing.T) {
	backend := soft.NewBackendWithAdapters()
	_, err := renderer.New(backend, nil, dummyShaders, renderer.Config{})
	require.ErrorIs(t, err, core.ErrNoAdapter)
	assert.Equal(t, 0, backend.CreatedDevices())
}
