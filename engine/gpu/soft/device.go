// Package soft is a software implementation of the gpu interfaces. Each
// queue runs on its own goroutine and drains a FIFO of submissions, fences
// are condition variables, and every executed command lands in a journal
// with a global sequence number. It backs headless runs and is the test
// double the synchronization protocol is verified against.
package soft

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

// Backend enumerates a configurable adapter list. The default is a single
// software adapter at the highest tier.
type Backend struct {
	adapters []gpu.AdapterInfo

	mu      sync.Mutex
	created int
}

func NewBackend() *Backend {
	return &Backend{
		adapters: []gpu.AdapterInfo{
			{Name: "vortex software device", Kind: gpu.AdapterSoftware, MaxTier: gpu.TierHigh},
		},
	}
}

// NewBackendWithAdapters builds a backend exposing exactly the given
// adapters. An empty list models a machine with no usable GPU.
func NewBackendWithAdapters(adapters ...gpu.AdapterInfo) *Backend {
	return &Backend{adapters: adapters}
}

func (b *Backend) EnumerateAdapters() []gpu.AdapterInfo {
	out := make([]gpu.AdapterInfo, len(b.adapters))
	copy(out, b.adapters)
	return out
}

func (b *Backend) CreateDevice(adapterIndex int, tier gpu.CapabilityTier) (gpu.Device, error) {
	if adapterIndex >= len(b.adapters) {
		return nil, fmt.Errorf("adapter index %d out of range", adapterIndex)
	}
	if adapterIndex < 0 {
		// No preference: take the first adapter reaching the tier.
		adapterIndex = -1
		for i, info := range b.adapters {
			if info.MaxTier >= tier {
				adapterIndex = i
				break
			}
		}
		if adapterIndex < 0 {
			return nil, core.ErrNoAdapter
		}
	}
	if b.adapters[adapterIndex].MaxTier < tier {
		return nil, fmt.Errorf("adapter '%s' does not reach the requested tier", b.adapters[adapterIndex].Name)
	}

	d := &Device{journal: &Journal{}}
	d.graphics = newQueue(gpu.QueueGraphics, d)
	d.compute = newQueue(gpu.QueueCompute, d)

	b.mu.Lock()
	b.created++
	b.mu.Unlock()
	return d, nil
}

// CreatedDevices reports how many devices this backend has handed out.
// Tests use it to prove a failed resolve leaks nothing.
func (b *Backend) CreatedDevices() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

type Device struct {
	journal   *Journal
	graphics  *queue
	compute   *queue
	destroyed bool
}

func (d *Device) Queue(kind gpu.QueueKind) gpu.Queue {
	if kind == gpu.QueueCompute {
		return d.compute
	}
	return d.graphics
}

func (d *Device) NewFence() (gpu.Fence, error) {
	return newFence(), nil
}

func (d *Device) NewCommandList(kind gpu.QueueKind) (gpu.CommandList, error) {
	return newCommandList(kind), nil
}

func (d *Device) NewSwapchain(surface gpu.Surface, config gpu.SwapchainConfig) (gpu.Swapchain, error) {
	if config.BufferCount < 1 {
		return nil, errors.New("swapchain needs at least one buffer")
	}
	return newSwapchain(d, config), nil
}

func (d *Device) NewBuffer(desc gpu.BufferDesc) (gpu.Resource, error) {
	if desc.Size == 0 {
		return nil, errors.New("buffer size must be non-zero")
	}
	r := &resource{
		name:   desc.Name,
		id:     core.NewIdentifier(),
		kind:   resourceBuffer,
		usage:  desc.Usage,
		size:   desc.Size,
		data:   make([]byte, desc.Size),
		device: d,
	}
	if desc.Data != nil {
		copy(r.data, desc.Data)
	}
	return r, nil
}

func (d *Device) NewGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	if len(desc.VertexShader) == 0 || len(desc.PixelShader) == 0 {
		return nil, errors.New("graphics pipeline requires vertex and pixel shader blobs")
	}
	return &pipeline{kind: gpu.PipelineGraphics, layout: desc.Layout, topology: desc.Topology}, nil
}

func (d *Device) NewComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	if len(desc.Shader) == 0 {
		return nil, errors.New("compute pipeline requires a shader blob")
	}
	return &pipeline{kind: gpu.PipelineCompute, layout: desc.Layout}, nil
}

func (d *Device) WaitIdle() error {
	d.graphics.waitIdle()
	d.compute.waitIdle()
	return nil
}

func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	d.graphics.shutdown()
	d.compute.shutdown()
}

// Journal exposes the execution log. Test hook.
func (d *Device) Journal() *Journal {
	return d.journal
}

// SetQueueDelay stretches each submission's execution on the given queue.
// Test hook for surfacing missing-wait races deterministically.
func (d *Device) SetQueueDelay(kind gpu.QueueKind, delay time.Duration) {
	q := d.graphics
	if kind == gpu.QueueCompute {
		q = d.compute
	}
	q.mu.Lock()
	q.execDelay = delay
	q.mu.Unlock()
}
