package gpu

// Binding layouts are built once at startup and are immutable afterwards.
// Slot indices are assigned in append order and there is no name-based
// lookup: callers remember the returned index and bind against it.

type ShaderVisibility int

const (
	VisibilityAll ShaderVisibility = iota
	VisibilityVertex
	VisibilityPixel
	VisibilityCompute
)

type RangeKind int

const (
	RangeShaderResource RangeKind = iota
	RangeUnorderedAccess
	RangeConstantBuffer
)

// DescriptorRange describes a contiguous run of registers inside a table
// slot.
type DescriptorRange struct {
	Kind         RangeKind
	Count        uint32
	BaseRegister uint32
}

type BindingKind int

const (
	BindingConstantBuffer BindingKind = iota
	BindingTable
)

type BindingSlot struct {
	Kind       BindingKind
	Register   uint32
	Visibility ShaderVisibility
	Ranges     []DescriptorRange
}

type SamplerDesc struct {
	Register   uint32
	Visibility ShaderVisibility
}

type LayoutFlags uint32

const (
	LayoutFlagNone LayoutFlags = 0
	// LayoutFlagAllowInputLayout permits vertex-buffer input on pipelines
	// using this layout.
	LayoutFlagAllowInputLayout LayoutFlags = 1 << iota
)

// LayoutBuilder accumulates parameter slots. Append methods return the
// slot index the caller must use when binding.
type LayoutBuilder struct {
	slots    []BindingSlot
	samplers []SamplerDesc
}

func NewLayoutBuilder() *LayoutBuilder {
	return &LayoutBuilder{}
}

func (lb *LayoutBuilder) AppendConstantBuffer(register uint32, visibility ShaderVisibility) int {
	lb.slots = append(lb.slots, BindingSlot{
		Kind:       BindingConstantBuffer,
		Register:   register,
		Visibility: visibility,
	})
	return len(lb.slots) - 1
}

func (lb *LayoutBuilder) AppendDescriptorTable(visibility ShaderVisibility, ranges ...DescriptorRange) int {
	slot := BindingSlot{
		Kind:       BindingTable,
		Visibility: visibility,
		Ranges:     make([]DescriptorRange, len(ranges)),
	}
	copy(slot.Ranges, ranges)
	lb.slots = append(lb.slots, slot)
	return len(lb.slots) - 1
}

func (lb *LayoutBuilder) AppendStaticSampler(register uint32, visibility ShaderVisibility) int {
	lb.samplers = append(lb.samplers, SamplerDesc{
		Register:   register,
		Visibility: visibility,
	})
	return len(lb.samplers) - 1
}

// Build freezes the layout. The builder can be discarded afterwards.
func (lb *LayoutBuilder) Build(flags LayoutFlags) *BindingLayout {
	layout := &BindingLayout{
		slots:    make([]BindingSlot, len(lb.slots)),
		samplers: make([]SamplerDesc, len(lb.samplers)),
		flags:    flags,
	}
	copy(layout.slots, lb.slots)
	copy(layout.samplers, lb.samplers)
	return layout
}

// BindingLayout is the fixed slot-to-resource-kind mapping both queues'
// pipelines reference.
type BindingLayout struct {
	slots    []BindingSlot
	samplers []SamplerDesc
	flags    LayoutFlags
}

func (bl *BindingLayout) SlotCount() int {
	return len(bl.slots)
}

func (bl *BindingLayout) Slot(index int) BindingSlot {
	return bl.slots[index]
}

func (bl *BindingLayout) Samplers() []SamplerDesc {
	out := make([]SamplerDesc, len(bl.samplers))
	copy(out, bl.samplers)
	return out
}

func (bl *BindingLayout) Flags() LayoutFlags {
	return bl.flags
}
