package gpu

// Package gpu defines the explicit-GPU-control surface the frame
// orchestrator is written against, plus the synchronization primitives
// built on top of it. Two backends implement the interfaces: gpu/vulkan
// for real hardware and gpu/soft for headless runs and tests.

// QueueKind selects one of the device's asynchronous execution channels.
type QueueKind int

const (
	QueueGraphics QueueKind = iota
	QueueCompute
)

func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	}
	return "unknown"
}

// CapabilityTier is the feature level an adapter must support. TierHigh
// requires rasterization plus an independent compute channel; TierBase is
// the rasterization-only fallback used when no adapter reaches TierHigh.
type CapabilityTier int

const (
	TierBase CapabilityTier = iota
	TierHigh
)

type AdapterKind int

const (
	AdapterOther AdapterKind = iota
	AdapterDiscrete
	AdapterIntegrated
	AdapterSoftware
)

// AdapterInfo describes one enumerated physical device.
type AdapterInfo struct {
	Name    string
	Kind    AdapterKind
	MaxTier CapabilityTier
}

// ResourceState is the CPU-side usage tag a resource carries. A transition
// barrier must be recorded before any operation requiring a different state.
type ResourceState int

const (
	StateCommon ResourceState = iota
	StateRenderTarget
	StatePresent
	StateShaderRead
	StateUnorderedAccess
	StateVertexAndConstant
	StateIndexBuffer
	StateCopyDest
)

func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "common"
	case StateRenderTarget:
		return "render_target"
	case StatePresent:
		return "present"
	case StateShaderRead:
		return "shader_read"
	case StateUnorderedAccess:
		return "unordered_access"
	case StateVertexAndConstant:
		return "vertex_and_constant"
	case StateIndexBuffer:
		return "index_buffer"
	case StateCopyDest:
		return "copy_dest"
	}
	return "unknown"
}

type Format int

const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatD32Float
)

// Surface is the opaque drawable handle supplied by the windowing system.
// The Vulkan backend expects a *glfw.Window; the soft backend ignores it.
type Surface interface{}

// Backend creates devices. It is the only entry point a frontend needs.
type Backend interface {
	// EnumerateAdapters lists adapters in enumeration order. The order is
	// meaningful: the resolver picks the first adapter meeting the tier.
	EnumerateAdapters() []AdapterInfo
	// CreateDevice creates a logical device on the given adapter index at
	// the given tier. adapterIndex < 0 means "no preference": the backend
	// may pick any adapter, including a software one.
	CreateDevice(adapterIndex int, tier CapabilityTier) (Device, error)
}

// Device is the process-wide logical GPU context. The orchestrator owns it
// exclusively; every other component borrows it.
type Device interface {
	Queue(kind QueueKind) Queue
	NewFence() (Fence, error)
	NewCommandList(kind QueueKind) (CommandList, error)
	NewSwapchain(surface Surface, config SwapchainConfig) (Swapchain, error)
	NewBuffer(desc BufferDesc) (Resource, error)
	NewGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	NewComputePipeline(desc ComputePipelineDesc) (Pipeline, error)
	// WaitIdle blocks until both queues have drained. Shutdown only.
	WaitIdle() error
	Destroy()
}

// Queue is an ordered asynchronous execution channel. Commands submitted to
// the same queue execute FIFO; ordering across queues exists only through
// fence waits.
type Queue interface {
	Kind() QueueKind
	// Submit hands a closed command list to the queue. Submission order is
	// program order of Submit calls.
	Submit(list CommandList) error
	// Signal enqueues a GPU-side signal that sets the fence to value after
	// all previously submitted work on this queue completes.
	Signal(fence Fence, value uint64) error
}

// Fence exposes a monotonically non-decreasing completed counter.
type Fence interface {
	CompletedValue() uint64
	// WaitUntil blocks the calling goroutine until completed >= value.
	// There is no timeout: a wait that never finishes means the device is
	// lost, which surfaces as core.ErrDeviceLost.
	WaitUntil(value uint64) error
	Destroy()
}

// CommandList is the recordable unit handed to a queue. Reset may only be
// called when the list's previous submission has finished executing;
// CommandContext enforces that.
type CommandList interface {
	Reset(pipeline Pipeline) error
	Close() error

	SetPipeline(pipeline Pipeline)
	SetBindingLayout(layout *BindingLayout)
	SetViewport(width, height uint32)
	SetRenderTarget(target Resource)
	ClearRenderTarget(target Resource, rgba [4]float32)
	Barrier(resource Resource, from, to ResourceState)

	BindConstantBuffer(slot int, buffer Resource)
	BindReadTable(slot int, resources ...Resource)
	BindWriteTable(slot int, resources ...Resource)
	BindVertexBuffer(buffer Resource, stride uint32)
	BindIndexBuffer(buffer Resource)

	// WriteBuffer schedules a CPU->GPU upload ordered with the commands
	// around it.
	WriteBuffer(buffer Resource, data []byte)

	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)
	Dispatch(groupsX, groupsY, groupsZ uint32)
}

// Resource is any GPU-visible buffer or texture. State tagging lives in
// Tracked, not here; backends only know allocation and identity.
type Resource interface {
	Name() string
	Size() uint64
	Destroy()
}

type BufferUsage int

const (
	BufferUsageConstant BufferUsage = iota
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageStorage
)

type BufferDesc struct {
	Name  string
	Size  uint64
	Usage BufferUsage
	// Initial contents uploaded at creation; may be nil.
	Data []byte
}

type SwapchainConfig struct {
	Width       uint32
	Height      uint32
	BufferCount uint32
	Format      Format
}

// Swapchain owns the rotating back-buffer images. The current index is
// assigned by the presentation engine after each present, never predicted
// by the CPU.
type Swapchain interface {
	BufferCount() int
	CurrentIndex() int
	Buffer(index int) Resource
	// Present shows the current image immediately (no sync interval) and
	// reassigns the current index.
	Present() error
	Destroy()
}

type PipelineKind int

const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
)

// Pipeline is an opaque compiled pipeline state object.
type Pipeline interface {
	Kind() PipelineKind
	Destroy()
}

// PrimitiveTopology selects how the input assembler groups the vertex
// stream. The zero value is a triangle list.
type PrimitiveTopology int

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyPointList
	TopologyLineList
)

type VertexAttribute struct {
	Location uint32
	Offset   uint32
	Format   Format
}

// GraphicsPipelineDesc carries the vertex and pixel stages as distinct
// blobs rather than a bitmask-tagged blob list.
type GraphicsPipelineDesc struct {
	Layout       *BindingLayout
	VertexShader []byte
	PixelShader  []byte
	VertexStride uint32
	Attributes   []VertexAttribute
	Topology     PrimitiveTopology
	ColorFormat  Format
	DepthFormat  Format
}

type ComputePipelineDesc struct {
	Layout *BindingLayout
	Shader []byte
}
