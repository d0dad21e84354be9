package soft

import (
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

type opKind int

const (
	opBarrier opKind = iota
	opClear
	opWrite
	opDraw
	opDrawIndexed
	opDispatch
)

// op is one executable command. reads/writes carry the resources the
// command touches so the queue executor can journal them.
type op struct {
	kind   opKind
	reads  []*resource
	writes []*resource

	barrierRes *resource
	from, to   gpu.ResourceState

	uploadDst  *resource
	uploadData []byte
}

// commandList records ops plus the binding state that determines which
// resources a draw or dispatch touches.
type commandList struct {
	kind   gpu.QueueKind
	ops    []op
	closed bool

	pipeline     gpu.Pipeline
	layout       *gpu.BindingLayout
	renderTarget *resource
	vertexBuffer *resource
	indexBuffer  *resource
	constants    map[int]*resource
	readTables   map[int][]*resource
	writeTables  map[int][]*resource
}

func newCommandList(kind gpu.QueueKind) *commandList {
	return &commandList{
		kind:        kind,
		constants:   make(map[int]*resource),
		readTables:  make(map[int][]*resource),
		writeTables: make(map[int][]*resource),
	}
}

func (cl *commandList) Reset(p gpu.Pipeline) error {
	cl.ops = cl.ops[:0]
	cl.closed = false
	cl.pipeline = p
	cl.layout = nil
	cl.renderTarget = nil
	cl.vertexBuffer = nil
	cl.indexBuffer = nil
	clear(cl.constants)
	clear(cl.readTables)
	clear(cl.writeTables)
	return nil
}

func (cl *commandList) Close() error {
	if cl.closed {
		return core.ErrContextNotRecording
	}
	cl.closed = true
	return nil
}

func (cl *commandList) SetPipeline(p gpu.Pipeline) {
	cl.pipeline = p
}

func (cl *commandList) SetBindingLayout(layout *gpu.BindingLayout) {
	cl.layout = layout
}

func (cl *commandList) SetViewport(width, height uint32) {}

func (cl *commandList) SetRenderTarget(target gpu.Resource) {
	cl.renderTarget = target.(*resource)
}

func (cl *commandList) ClearRenderTarget(target gpu.Resource, rgba [4]float32) {
	cl.ops = append(cl.ops, op{
		kind:   opClear,
		writes: []*resource{target.(*resource)},
	})
}

func (cl *commandList) Barrier(res gpu.Resource, from, to gpu.ResourceState) {
	cl.ops = append(cl.ops, op{
		kind:       opBarrier,
		barrierRes: res.(*resource),
		from:       from,
		to:         to,
	})
}

func (cl *commandList) BindConstantBuffer(slot int, buffer gpu.Resource) {
	cl.constants[slot] = buffer.(*resource)
}

func (cl *commandList) BindReadTable(slot int, resources ...gpu.Resource) {
	table := make([]*resource, len(resources))
	for i, r := range resources {
		table[i] = r.(*resource)
	}
	cl.readTables[slot] = table
}

func (cl *commandList) BindWriteTable(slot int, resources ...gpu.Resource) {
	table := make([]*resource, len(resources))
	for i, r := range resources {
		table[i] = r.(*resource)
	}
	cl.writeTables[slot] = table
}

func (cl *commandList) BindVertexBuffer(buffer gpu.Resource, stride uint32) {
	cl.vertexBuffer = buffer.(*resource)
}

func (cl *commandList) BindIndexBuffer(buffer gpu.Resource) {
	cl.indexBuffer = buffer.(*resource)
}

func (cl *commandList) WriteBuffer(buffer gpu.Resource, data []byte) {
	upload := make([]byte, len(data))
	copy(upload, data)
	cl.ops = append(cl.ops, op{
		kind:       opWrite,
		uploadDst:  buffer.(*resource),
		uploadData: upload,
	})
}

// boundReads collects everything a draw/dispatch samples from.
func (cl *commandList) boundReads() []*resource {
	var reads []*resource
	if cl.vertexBuffer != nil {
		reads = append(reads, cl.vertexBuffer)
	}
	if cl.indexBuffer != nil {
		reads = append(reads, cl.indexBuffer)
	}
	for _, r := range cl.constants {
		reads = append(reads, r)
	}
	for _, table := range cl.readTables {
		reads = append(reads, table...)
	}
	return reads
}

func (cl *commandList) Draw(vertexCount, instanceCount uint32) {
	o := op{
		kind:  opDraw,
		reads: cl.boundReads(),
	}
	if cl.renderTarget != nil {
		o.writes = append(o.writes, cl.renderTarget)
	}
	cl.ops = append(cl.ops, o)
}

func (cl *commandList) DrawIndexed(indexCount, instanceCount uint32) {
	o := op{
		kind:  opDrawIndexed,
		reads: cl.boundReads(),
	}
	if cl.renderTarget != nil {
		o.writes = append(o.writes, cl.renderTarget)
	}
	cl.ops = append(cl.ops, o)
}

func (cl *commandList) Dispatch(groupsX, groupsY, groupsZ uint32) {
	o := op{
		kind:  opDispatch,
		reads: cl.boundReads(),
	}
	for _, table := range cl.writeTables {
		o.writes = append(o.writes, table...)
	}
	cl.ops = append(cl.ops, o)
}

// snapshot copies the recorded ops for submission, so a later Reset on
// the list cannot disturb work already queued.
func (cl *commandList) snapshot() []op {
	out := make([]op, len(cl.ops))
	copy(out, cl.ops)
	return out
}
