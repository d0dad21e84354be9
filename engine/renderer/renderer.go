// Package renderer drives the per-frame protocol: simulate on the compute
// queue, fence, draw and present on the graphics queue. One frame is in
// flight at a time; each context's Begin waits on its own previous
// submission before reusing the list.
package renderer

import (
	"encoding/binary"
	stdmath "math"

	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
	"github.com/spaghettifunk/vortex/engine/math"
	"github.com/spaghettifunk/vortex/engine/nbody"
	"github.com/spaghettifunk/vortex/engine/renderer/components"
)

// ShaderSet carries the compiled SPIR-V blobs the renderer needs. They are
// produced by the asset manager; the renderer never touches the filesystem.
type ShaderSet struct {
	Vertex  []byte
	Pixel   []byte
	Compute []byte
}

type Config struct {
	Width         uint32
	Height        uint32
	BufferCount   uint32
	ParticleCount uint32
}

type Renderer struct {
	device  gpu.Device
	adapter gpu.AdapterInfo

	graphicsSync *gpu.FenceSync
	computeSync  *gpu.FenceSync
	graphicsCtx  *gpu.CommandContext
	computeCtx   *gpu.CommandContext

	ring      *gpu.PresentationRing
	particles *nbody.System

	layout        *gpu.BindingLayout
	slotCamera    int
	slotParticles int
	pipeline      gpu.Pipeline
	cameraBuffer  gpu.Resource

	Camera *components.Camera

	width      uint32
	height     uint32
	clearColor [4]float32

	isShutdown bool
}

func New(backend gpu.Backend, surface gpu.Surface, shaders ShaderSet, config Config) (*Renderer, error) {
	if config.Width == 0 || config.Height == 0 {
		config.Width, config.Height = 1280, 720
	}
	if config.BufferCount == 0 {
		config.BufferCount = 2
	}

	device, adapter, err := gpu.Resolve(backend, gpu.ResolveOptions{
		Tier:         gpu.TierHigh,
		FallbackTier: gpu.TierBase,
	})
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		device:     device,
		adapter:    adapter,
		width:      config.Width,
		height:     config.Height,
		clearColor: [4]float32{0.02, 0.02, 0.05, 1.0},
		Camera:     components.NewCamera(),
	}

	if r.graphicsSync, err = gpu.NewFenceSync(device, device.Queue(gpu.QueueGraphics)); err != nil {
		r.teardown()
		return nil, err
	}
	if r.computeSync, err = gpu.NewFenceSync(device, device.Queue(gpu.QueueCompute)); err != nil {
		r.teardown()
		return nil, err
	}
	if r.graphicsCtx, err = gpu.NewCommandContext(device, gpu.QueueGraphics, r.graphicsSync); err != nil {
		r.teardown()
		return nil, err
	}
	if r.computeCtx, err = gpu.NewCommandContext(device, gpu.QueueCompute, r.computeSync); err != nil {
		r.teardown()
		return nil, err
	}

	if r.ring, err = gpu.NewPresentationRing(device, surface, gpu.SwapchainConfig{
		Width:       config.Width,
		Height:      config.Height,
		BufferCount: config.BufferCount,
		Format:      gpu.FormatBGRA8Unorm,
	}); err != nil {
		r.teardown()
		return nil, err
	}

	if r.particles, err = nbody.NewSystem(device, shaders.Compute, nbody.Config{
		ParticleCount: config.ParticleCount,
	}); err != nil {
		r.teardown()
		return nil, err
	}

	// Graphics bindings: camera constants for the vertex stage plus the
	// particle buffer read as a structured resource. Particles are expanded
	// in the vertex shader from the buffer, so there is no vertex input.
	builder := gpu.NewLayoutBuilder()
	r.slotCamera = builder.AppendConstantBuffer(0, gpu.VisibilityVertex)
	r.slotParticles = builder.AppendDescriptorTable(gpu.VisibilityVertex,
		gpu.DescriptorRange{Kind: gpu.RangeShaderResource, Count: 1, BaseRegister: 0})
	r.layout = builder.Build(gpu.LayoutFlagNone)

	// Point-list topology: the vertex shader emits one point per particle
	// and sets gl_PointSize, which only point assembly honors.
	if r.pipeline, err = device.NewGraphicsPipeline(gpu.GraphicsPipelineDesc{
		Layout:       r.layout,
		VertexShader: shaders.Vertex,
		PixelShader:  shaders.Pixel,
		Topology:     gpu.TopologyPointList,
		ColorFormat:  gpu.FormatBGRA8Unorm,
	}); err != nil {
		r.teardown()
		return nil, err
	}

	if r.cameraBuffer, err = device.NewBuffer(gpu.BufferDesc{
		Name:  "camera_constants",
		Size:  cameraConstantsSize,
		Usage: gpu.BufferUsageConstant,
	}); err != nil {
		r.teardown()
		return nil, err
	}

	core.LogInfo("renderer initialized on '%s' (%dx%d, %d particles)",
		adapter.Name, config.Width, config.Height, r.particles.Count())
	return r, nil
}

func (r *Renderer) Adapter() gpu.AdapterInfo {
	return r.adapter
}

func (r *Renderer) Device() gpu.Device {
	return r.device
}

func (r *Renderer) Pipeline() gpu.Pipeline {
	return r.pipeline
}

// Frame runs one full simulate-draw-present cycle.
//
// The compute queue runs a simulation step and signals its fence. The CPU
// waits for that signal before recording the graphics pass, so the compute
// write is complete before the graphics queue can read the buffer. With one
// frame in flight the wait costs little: the graphics context's own
// throttling wait covers most of it.
func (r *Renderer) Frame(dt float32) error {
	if r.isShutdown {
		return core.ErrShutdown
	}

	if err := r.computeCtx.WaitForGPU(); err != nil {
		return err
	}
	if err := r.computeCtx.Begin(r.particles.Pipeline()); err != nil {
		return err
	}
	r.particles.RecordSimulate(r.computeCtx, dt)
	computeToken, err := r.computeCtx.Submit()
	if err != nil {
		return err
	}

	if err := r.graphicsCtx.WaitForGPU(); err != nil {
		return err
	}
	// Cross-queue ordering point. Graphics may not consume the particle
	// buffer until the compute signal has completed.
	if err := r.computeSync.WaitUntil(computeToken); err != nil {
		return err
	}

	if err := r.graphicsCtx.Begin(r.pipeline); err != nil {
		return err
	}
	list := r.graphicsCtx.List()

	back := r.ring.CurrentBuffer()
	back.TransitionTo(list, gpu.StateRenderTarget)
	list.SetViewport(r.width, r.height)
	list.SetRenderTarget(back.Resource())
	list.ClearRenderTarget(back.Resource(), r.clearColor)

	list.WriteBuffer(r.cameraBuffer, r.packCameraConstants())

	render := r.particles.RenderBuffer()
	if render.State() != gpu.StateShaderRead {
		render.TransitionTo(list, gpu.StateShaderRead)
	}

	list.SetBindingLayout(r.layout)
	list.BindConstantBuffer(r.slotCamera, r.cameraBuffer)
	list.BindReadTable(r.slotParticles, render.Resource())
	list.Draw(r.particles.Count(), 1)

	if _, err := r.ring.Present(r.graphicsCtx); err != nil {
		return err
	}
	return nil
}

// Shutdown drains both queues and releases everything. Safe to call more
// than once; only the first call does work. Nothing is released until both
// queues' final fence signals have completed.
func (r *Renderer) Shutdown() error {
	if r.isShutdown {
		return nil
	}
	r.isShutdown = true

	if err := r.graphicsCtx.WaitForGPU(); err != nil && err != core.ErrDeviceLost {
		return err
	}
	if err := r.computeCtx.WaitForGPU(); err != nil && err != core.ErrDeviceLost {
		return err
	}
	if err := r.graphicsSync.SignalAndWait(); err != nil && err != core.ErrDeviceLost {
		return err
	}
	if err := r.computeSync.SignalAndWait(); err != nil && err != core.ErrDeviceLost {
		return err
	}
	if err := r.device.WaitIdle(); err != nil && err != core.ErrDeviceLost {
		return err
	}

	r.teardown()
	core.LogInfo("renderer shut down")
	return nil
}

// teardown releases in reverse creation order. Used by Shutdown and by the
// constructor's error paths, so every field check is nil-guarded.
func (r *Renderer) teardown() {
	if r.cameraBuffer != nil {
		r.cameraBuffer.Destroy()
		r.cameraBuffer = nil
	}
	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}
	if r.particles != nil {
		r.particles.Destroy()
		r.particles = nil
	}
	if r.ring != nil {
		r.ring.Destroy()
		r.ring = nil
	}
	if r.computeSync != nil {
		r.computeSync.Destroy()
		r.computeSync = nil
	}
	if r.graphicsSync != nil {
		r.graphicsSync.Destroy()
		r.graphicsSync = nil
	}
	if r.device != nil {
		r.device.Destroy()
		r.device = nil
	}
}

// cameraConstantsSize is view plus projection, two column-major mat4s.
const cameraConstantsSize = 128

func (r *Renderer) packCameraConstants() []byte {
	view := r.Camera.GetView()
	aspect := float32(r.width) / float32(r.height)
	projection := math.NewMat4Perspective(math.DegToRad(45.0), aspect, 0.1, 1000.0)

	out := make([]byte, cameraConstantsSize)
	packMat4(out, view)
	packMat4(out[64:], projection)
	return out
}

func packMat4(b []byte, m math.Mat4) {
	for i, v := range m.Data {
		binary.LittleEndian.PutUint32(b[i*4:], stdmath.Float32bits(v))
	}
}
