package soft

import (
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

type resourceKind int

const (
	resourceBuffer resourceKind = iota
	resourceBackBuffer
)

type resource struct {
	name   string
	id     core.Identifier
	kind   resourceKind
	usage  gpu.BufferUsage
	size   uint64
	data   []byte
	device *Device
}

func (r *resource) Name() string {
	return r.name
}

func (r *resource) Size() uint64 {
	return r.size
}

// Destroy journals the release so shutdown tests can prove no resource is
// freed before the GPU is done with it.
func (r *resource) Destroy() {
	r.device.journal.record(Event{
		Kind:     EventRelease,
		Resource: r.name,
	})
	r.data = nil
}

type pipeline struct {
	kind     gpu.PipelineKind
	layout   *gpu.BindingLayout
	topology gpu.PrimitiveTopology
}

func (p *pipeline) Kind() gpu.PipelineKind {
	return p.kind
}

// Topology reports the input-assembly topology the pipeline was built
// with. Test hook.
func (p *pipeline) Topology() gpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) Destroy() {}
