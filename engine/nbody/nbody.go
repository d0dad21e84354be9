// Package nbody is the GPU-driven particle simulation. Particles live in
// two storage buffers: each step reads the buffer written last step and
// writes the other, so graphics can consume one while compute fills the
// next without aliasing.
package nbody

import (
	"encoding/binary"
	stdmath "math"

	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
	"github.com/spaghettifunk/vortex/engine/math"
)

// ThreadGroupSize matches the local size of the simulation shader.
const ThreadGroupSize = 256

// particleStride is position (vec4) plus velocity (vec4) in bytes.
const particleStride = 32

type Config struct {
	ParticleCount uint32
	// Spread is the radius of the initial particle cloud.
	Spread float32
}

// System owns the particle buffers, the compute binding layout and the
// simulation pipeline. RecordSimulate is recorded into the compute
// context; the caller owns submission and fencing.
type System struct {
	count uint32

	layout        *gpu.BindingLayout
	slotConstants int
	slotInput     int
	slotOutput    int

	pipeline  gpu.Pipeline
	constants gpu.Resource
	buffers   [2]*gpu.Tracked

	// cursor indexes the buffer holding the newest results.
	cursor int
}

func NewSystem(device gpu.Device, shader []byte, config Config) (*System, error) {
	if config.ParticleCount == 0 {
		config.ParticleCount = 1024
	}
	if config.Spread <= 0 {
		config.Spread = 50.0
	}

	s := &System{count: config.ParticleCount}

	builder := gpu.NewLayoutBuilder()
	s.slotConstants = builder.AppendConstantBuffer(0, gpu.VisibilityCompute)
	s.slotInput = builder.AppendDescriptorTable(gpu.VisibilityCompute,
		gpu.DescriptorRange{Kind: gpu.RangeShaderResource, Count: 1, BaseRegister: 0})
	s.slotOutput = builder.AppendDescriptorTable(gpu.VisibilityCompute,
		gpu.DescriptorRange{Kind: gpu.RangeUnorderedAccess, Count: 1, BaseRegister: 0})
	s.layout = builder.Build(gpu.LayoutFlagNone)

	seed := packParticles(seedParticles(config.ParticleCount, config.Spread))
	for i := range s.buffers {
		name := "particles_a"
		if i == 1 {
			name = "particles_b"
		}
		buffer, err := device.NewBuffer(gpu.BufferDesc{
			Name:  name,
			Size:  uint64(config.ParticleCount) * particleStride,
			Usage: gpu.BufferUsageStorage,
			Data:  seed,
		})
		if err != nil {
			core.LogError("failed to create particle buffer '%s': %s", name, err)
			s.Destroy()
			return nil, err
		}
		s.buffers[i] = gpu.NewTracked(buffer, gpu.StateUnorderedAccess)
	}

	constants, err := device.NewBuffer(gpu.BufferDesc{
		Name:  "nbody_constants",
		Size:  16,
		Usage: gpu.BufferUsageConstant,
	})
	if err != nil {
		core.LogError("failed to create simulation constant buffer: %s", err)
		s.Destroy()
		return nil, err
	}
	s.constants = constants

	pipeline, err := device.NewComputePipeline(gpu.ComputePipelineDesc{
		Layout: s.layout,
		Shader: shader,
	})
	if err != nil {
		core.LogError("failed to create simulation pipeline: %s", err)
		s.Destroy()
		return nil, err
	}
	s.pipeline = pipeline

	return s, nil
}

func (s *System) Count() uint32 {
	return s.count
}

func (s *System) Pipeline() gpu.Pipeline {
	return s.pipeline
}

// RenderBuffer is the tracked buffer holding the newest simulation step,
// the one the graphics queue should read this frame.
func (s *System) RenderBuffer() *gpu.Tracked {
	return s.buffers[s.cursor]
}

// RecordSimulate records one simulation step into the compute context's
// list: last step's output becomes the input, the other buffer the output.
// The cursor flips so RenderBuffer points at the step just recorded.
func (s *System) RecordSimulate(ctx *gpu.CommandContext, dt float32) {
	in := s.buffers[s.cursor]
	out := s.buffers[1-s.cursor]
	list := ctx.List()

	list.WriteBuffer(s.constants, packConstants(dt, s.count))

	if in.State() != gpu.StateShaderRead {
		in.TransitionTo(list, gpu.StateShaderRead)
	}
	if out.State() != gpu.StateUnorderedAccess {
		out.TransitionTo(list, gpu.StateUnorderedAccess)
	}

	list.SetBindingLayout(s.layout)
	list.BindConstantBuffer(s.slotConstants, s.constants)
	list.BindReadTable(s.slotInput, in.Resource())
	list.BindWriteTable(s.slotOutput, out.Resource())

	groups := (s.count + ThreadGroupSize - 1) / ThreadGroupSize
	list.Dispatch(groups, 1, 1)

	s.cursor = 1 - s.cursor
}

func (s *System) Destroy() {
	if s.pipeline != nil {
		s.pipeline.Destroy()
		s.pipeline = nil
	}
	if s.constants != nil {
		s.constants.Destroy()
		s.constants = nil
	}
	for i, b := range s.buffers {
		if b != nil {
			b.Destroy()
			s.buffers[i] = nil
		}
	}
}

type particle struct {
	position math.Vec4
	velocity math.Vec4
}

// seedParticles scatters the cloud uniformly inside a sphere with zero
// initial velocity.
func seedParticles(count uint32, spread float32) []particle {
	particles := make([]particle, count)
	for i := range particles {
		particles[i].position = math.Vec4{
			X: math.RandomFloatRange(-spread, spread),
			Y: math.RandomFloatRange(-spread, spread),
			Z: math.RandomFloatRange(-spread, spread),
			W: 1.0,
		}
	}
	return particles
}

func packParticles(particles []particle) []byte {
	out := make([]byte, len(particles)*particleStride)
	for i, p := range particles {
		offset := i * particleStride
		putFloat32(out[offset:], p.position.X)
		putFloat32(out[offset+4:], p.position.Y)
		putFloat32(out[offset+8:], p.position.Z)
		putFloat32(out[offset+12:], p.position.W)
		putFloat32(out[offset+16:], p.velocity.X)
		putFloat32(out[offset+20:], p.velocity.Y)
		putFloat32(out[offset+24:], p.velocity.Z)
		putFloat32(out[offset+28:], p.velocity.W)
	}
	return out
}

func packConstants(dt float32, count uint32) []byte {
	out := make([]byte, 16)
	putFloat32(out, dt)
	binary.LittleEndian.PutUint32(out[4:], count)
	return out
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, stdmath.Float32bits(v))
}
