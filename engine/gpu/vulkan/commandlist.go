package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

// CommandList wraps one vk.CommandBuffer. Graphics work renders inside the
// swapchain render pass, which is begun lazily at the first draw so the
// clear color is known, and ended either by a barrier to the present state
// or by Close.
type CommandList struct {
	device *Device
	kind   gpu.QueueKind
	pool   vk.CommandPool
	handle vk.CommandBuffer

	closed       bool
	inRenderPass bool

	pipeline *Pipeline
	layout   *gpu.BindingLayout

	viewportWidth  uint32
	viewportHeight uint32
	clearColor     [4]float32
	renderTarget   *backBuffer

	// presentTarget is set when this list rendered to a swapchain image,
	// so the queue can wire the acquire/present semaphores on submit.
	presentTarget *backBuffer

	vertexBuffer *buffer
	vertexStride uint32
	indexBuffer  *buffer
	constants    map[int]*buffer
	readTables   map[int][]*buffer
	writeTables  map[int][]*buffer

	descriptorSet   vk.DescriptorSet
	descriptorDirty bool
	allocatedSets   []vk.DescriptorSet
}

func newCommandList(device *Device, kind gpu.QueueKind, pool vk.CommandPool) (*CommandList, error) {
	cl := &CommandList{
		device:      device,
		kind:        kind,
		pool:        pool,
		constants:   make(map[int]*buffer),
		readTables:  make(map[int][]*buffer),
		writeTables: make(map[int][]*buffer),
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(device.logicalDevice, &allocateInfo, handles); res != vk.Success {
		err := fmt.Errorf("failed to allocate command buffer with `%s`", ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	cl.handle = handles[0]
	return cl, nil
}

func (cl *CommandList) Reset(p gpu.Pipeline) error {
	if res := vk.ResetCommandBuffer(cl.handle, 0); res != vk.Success {
		err := fmt.Errorf("failed to reset command buffer with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}

	if len(cl.allocatedSets) > 0 {
		vk.FreeDescriptorSets(cl.device.logicalDevice, cl.device.descriptorPool, uint32(len(cl.allocatedSets)), cl.allocatedSets)
		cl.allocatedSets = cl.allocatedSets[:0]
	}

	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cl.handle, beginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}

	cl.closed = false
	cl.inRenderPass = false
	cl.renderTarget = nil
	cl.presentTarget = nil
	cl.layout = nil
	cl.vertexBuffer = nil
	cl.indexBuffer = nil
	cl.descriptorSet = vk.NullDescriptorSet
	cl.descriptorDirty = false
	clear(cl.constants)
	clear(cl.readTables)
	clear(cl.writeTables)

	cl.setPipeline(p)
	return nil
}

func (cl *CommandList) Close() error {
	if cl.closed {
		return core.ErrContextNotRecording
	}
	if cl.inRenderPass {
		vk.CmdEndRenderPass(cl.handle)
		cl.inRenderPass = false
	}
	if res := vk.EndCommandBuffer(cl.handle); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}
	cl.closed = true
	return nil
}

func (cl *CommandList) setPipeline(p gpu.Pipeline) {
	if p == nil {
		cl.pipeline = nil
		return
	}
	cl.pipeline = p.(*Pipeline)
}

func (cl *CommandList) SetPipeline(p gpu.Pipeline) {
	cl.setPipeline(p)
}

func (cl *CommandList) SetBindingLayout(layout *gpu.BindingLayout) {
	cl.layout = layout
}

func (cl *CommandList) SetViewport(width, height uint32) {
	cl.viewportWidth = width
	cl.viewportHeight = height
}

func (cl *CommandList) SetRenderTarget(target gpu.Resource) {
	cl.renderTarget = target.(*backBuffer)
	cl.presentTarget = cl.renderTarget
}

func (cl *CommandList) ClearRenderTarget(target gpu.Resource, rgba [4]float32) {
	cl.clearColor = rgba
}

func (cl *CommandList) Barrier(res gpu.Resource, from, to gpu.ResourceState) {
	switch r := res.(type) {
	case *backBuffer:
		// Swapchain image layouts are handled by the render pass; a barrier
		// back to the present state just closes the pass.
		if to == gpu.StatePresent && cl.inRenderPass {
			vk.CmdEndRenderPass(cl.handle)
			cl.inRenderPass = false
		}
	case *buffer:
		barrier := vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       stateAccessFlags(from),
			DstAccessMask:       stateAccessFlags(to),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              r.handle,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		}
		vk.CmdPipelineBarrier(cl.handle,
			stateStageFlags(from), stateStageFlags(to),
			vk.DependencyFlags(0),
			0, nil,
			1, []vk.BufferMemoryBarrier{barrier},
			0, nil)
	}
}

func (cl *CommandList) BindConstantBuffer(slot int, res gpu.Resource) {
	cl.constants[slot] = res.(*buffer)
	cl.descriptorDirty = true
}

func (cl *CommandList) BindReadTable(slot int, resources ...gpu.Resource) {
	table := make([]*buffer, len(resources))
	for i, r := range resources {
		table[i] = r.(*buffer)
	}
	cl.readTables[slot] = table
	cl.descriptorDirty = true
}

func (cl *CommandList) BindWriteTable(slot int, resources ...gpu.Resource) {
	table := make([]*buffer, len(resources))
	for i, r := range resources {
		table[i] = r.(*buffer)
	}
	cl.writeTables[slot] = table
	cl.descriptorDirty = true
}

func (cl *CommandList) BindVertexBuffer(res gpu.Resource, stride uint32) {
	cl.vertexBuffer = res.(*buffer)
	cl.vertexStride = stride
}

func (cl *CommandList) BindIndexBuffer(res gpu.Resource) {
	cl.indexBuffer = res.(*buffer)
}

func (cl *CommandList) WriteBuffer(res gpu.Resource, data []byte) {
	b := res.(*buffer)
	if cl.inRenderPass {
		vk.CmdEndRenderPass(cl.handle)
		cl.inRenderPass = false
	}
	vk.CmdUpdateBuffer(cl.handle, b.handle, 0, vk.DeviceSize(len(data)), unsafe.Pointer(&data[0]))
}

func (cl *CommandList) beginRenderPass() {
	if cl.inRenderPass || cl.renderTarget == nil {
		return
	}
	sc := cl.renderTarget.swapchain

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  sc.renderPass,
		Framebuffer: sc.framebuffers[cl.renderTarget.index],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: sc.width, Height: sc.height},
		},
	}
	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(cl.clearColor[:])
	beginInfo.ClearValueCount = 1
	beginInfo.PClearValues = clearValues

	vk.CmdBeginRenderPass(cl.handle, &beginInfo, vk.SubpassContentsInline)
	cl.inRenderPass = true

	width := cl.viewportWidth
	height := cl.viewportHeight
	if width == 0 || height == 0 {
		width, height = sc.width, sc.height
	}
	viewport := vk.Viewport{
		X: 0, Y: 0,
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	vk.CmdSetViewport(cl.handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cl.handle, 0, 1, []vk.Rect2D{scissor})
}

// updateDescriptorSet allocates and fills a set matching the bound layout.
// Binding numbers are the append-order slot indices of the layout.
func (cl *CommandList) updateDescriptorSet() {
	if !cl.descriptorDirty || cl.pipeline == nil || cl.pipeline.setLayout == vk.NullDescriptorSetLayout {
		return
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     cl.device.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{cl.pipeline.setLayout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(cl.device.logicalDevice, &allocateInfo, &sets[0]); res != vk.Success {
		core.LogError("failed to allocate descriptor set with `%s`", ResultString(res))
		return
	}
	cl.descriptorSet = sets[0]
	cl.allocatedSets = append(cl.allocatedSets, sets[0])

	var writes []vk.WriteDescriptorSet
	for slot, b := range cl.constants {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          cl.descriptorSet,
			DstBinding:      uint32(slot),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{
				{Buffer: b.handle, Offset: 0, Range: vk.DeviceSize(b.size)},
			},
		})
	}
	for slot, table := range cl.readTables {
		writes = append(writes, tableWrite(cl.descriptorSet, slot, table))
	}
	for slot, table := range cl.writeTables {
		writes = append(writes, tableWrite(cl.descriptorSet, slot, table))
	}

	if len(writes) > 0 {
		vk.UpdateDescriptorSets(cl.device.logicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	cl.descriptorDirty = false
}

func tableWrite(set vk.DescriptorSet, slot int, table []*buffer) vk.WriteDescriptorSet {
	infos := make([]vk.DescriptorBufferInfo, len(table))
	for i, b := range table {
		infos[i] = vk.DescriptorBufferInfo{
			Buffer: b.handle,
			Offset: 0,
			Range:  vk.DeviceSize(b.size),
		}
	}
	return vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      uint32(slot),
		DescriptorCount: uint32(len(table)),
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		PBufferInfo:     infos,
	}
}

func (cl *CommandList) bindGraphicsState() {
	cl.beginRenderPass()
	if cl.pipeline != nil {
		vk.CmdBindPipeline(cl.handle, vk.PipelineBindPointGraphics, cl.pipeline.handle)
	}
	cl.updateDescriptorSet()
	if cl.descriptorSet != vk.NullDescriptorSet && cl.pipeline != nil {
		vk.CmdBindDescriptorSets(cl.handle, vk.PipelineBindPointGraphics, cl.pipeline.layout,
			0, 1, []vk.DescriptorSet{cl.descriptorSet}, 0, nil)
	}
	if cl.vertexBuffer != nil {
		vk.CmdBindVertexBuffers(cl.handle, 0, 1, []vk.Buffer{cl.vertexBuffer.handle}, []vk.DeviceSize{0})
	}
	if cl.indexBuffer != nil {
		vk.CmdBindIndexBuffer(cl.handle, cl.indexBuffer.handle, 0, vk.IndexTypeUint32)
	}
}

func (cl *CommandList) Draw(vertexCount, instanceCount uint32) {
	cl.bindGraphicsState()
	vk.CmdDraw(cl.handle, vertexCount, instanceCount, 0, 0)
}

func (cl *CommandList) DrawIndexed(indexCount, instanceCount uint32) {
	cl.bindGraphicsState()
	vk.CmdDrawIndexed(cl.handle, indexCount, instanceCount, 0, 0, 0)
}

func (cl *CommandList) Dispatch(groupsX, groupsY, groupsZ uint32) {
	if cl.pipeline != nil {
		vk.CmdBindPipeline(cl.handle, vk.PipelineBindPointCompute, cl.pipeline.handle)
	}
	cl.updateDescriptorSet()
	if cl.descriptorSet != vk.NullDescriptorSet && cl.pipeline != nil {
		vk.CmdBindDescriptorSets(cl.handle, vk.PipelineBindPointCompute, cl.pipeline.layout,
			0, 1, []vk.DescriptorSet{cl.descriptorSet}, 0, nil)
	}
	vk.CmdDispatch(cl.handle, groupsX, groupsY, groupsZ)
}

func stateAccessFlags(state gpu.ResourceState) vk.AccessFlags {
	switch state {
	case gpu.StateRenderTarget:
		return vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	case gpu.StateShaderRead:
		return vk.AccessFlags(vk.AccessShaderReadBit)
	case gpu.StateUnorderedAccess:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit)
	case gpu.StateVertexAndConstant:
		return vk.AccessFlags(vk.AccessVertexAttributeReadBit | vk.AccessUniformReadBit)
	case gpu.StateIndexBuffer:
		return vk.AccessFlags(vk.AccessIndexReadBit)
	case gpu.StateCopyDest:
		return vk.AccessFlags(vk.AccessTransferWriteBit)
	default:
		return vk.AccessFlags(0)
	}
}

func stateStageFlags(state gpu.ResourceState) vk.PipelineStageFlags {
	switch state {
	case gpu.StateRenderTarget:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case gpu.StateShaderRead, gpu.StateUnorderedAccess:
		return vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit | vk.PipelineStageVertexShaderBit)
	case gpu.StateVertexAndConstant, gpu.StateIndexBuffer:
		return vk.PipelineStageFlags(vk.PipelineStageVertexInputBit)
	case gpu.StateCopyDest:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	default:
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
}
