package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

// buffer is a vk.Buffer with its backing allocation. Memory is host
// visible so WriteBuffer and creation uploads can map it directly.
type buffer struct {
	device *Device
	name   string
	size   uint64
	usage  gpu.BufferUsage
	handle vk.Buffer
	memory vk.DeviceMemory
}

func bufferUsageFlags(usage gpu.BufferUsage) vk.BufferUsageFlags {
	switch usage {
	case gpu.BufferUsageVertex:
		return vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit)
	case gpu.BufferUsageIndex:
		return vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit)
	case gpu.BufferUsageStorage:
		return vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit)
	default:
		return vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferDstBit)
	}
}

func newBuffer(device *Device, desc gpu.BufferDesc) (gpu.Resource, error) {
	if desc.Size == 0 {
		err := fmt.Errorf("buffer '%s' size must be non-zero", desc.Name)
		core.LogError(err.Error())
		return nil, err
	}

	b := &buffer{
		device: device,
		name:   desc.Name,
		size:   desc.Size,
		usage:  desc.Usage,
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(device.logicalDevice, &bufferCreateInfo, device.allocator, &b.handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer '%s' with `%s`", desc.Name, ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device.logicalDevice, b.handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryIndex := device.findMemoryIndex(
		memoryRequirements.MemoryTypeBits,
		uint32(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if memoryIndex < 0 {
		vk.DestroyBuffer(device.logicalDevice, b.handle, device.allocator)
		err := fmt.Errorf("no suitable memory type for buffer '%s'", desc.Name)
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	if res := vk.AllocateMemory(device.logicalDevice, &allocateInfo, device.allocator, &b.memory); res != vk.Success {
		vk.DestroyBuffer(device.logicalDevice, b.handle, device.allocator)
		err := fmt.Errorf("failed to allocate memory for buffer '%s' with `%s`", desc.Name, ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.BindBufferMemory(device.logicalDevice, b.handle, b.memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind memory for buffer '%s' with `%s`", desc.Name, ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	if desc.Data != nil {
		if err := b.upload(desc.Data); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *buffer) upload(data []byte) error {
	var pData unsafe.Pointer
	if res := vk.MapMemory(b.device.logicalDevice, b.memory, 0, vk.DeviceSize(len(data)), 0, &pData); res != vk.Success {
		err := fmt.Errorf("failed to map memory for buffer '%s' with `%s`", b.name, ResultString(res))
		core.LogError(err.Error())
		return err
	}
	vk.Memcopy(pData, data)
	vk.UnmapMemory(b.device.logicalDevice, b.memory)
	return nil
}

func (b *buffer) Name() string {
	return b.name
}

func (b *buffer) Size() uint64 {
	return b.size
}

func (b *buffer) Destroy() {
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(b.device.logicalDevice, b.handle, b.device.allocator)
		b.handle = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.device.logicalDevice, b.memory, b.device.allocator)
		b.memory = vk.NullDeviceMemory
	}
}

// backBuffer wraps one swapchain image. The image is owned by the
// swapchain; Destroy only drops the reference.
type backBuffer struct {
	swapchain *Swapchain
	name      string
	index     int
	image     vk.Image
}

func (bb *backBuffer) Name() string {
	return bb.name
}

func (bb *backBuffer) Size() uint64 {
	return uint64(bb.swapchain.width) * uint64(bb.swapchain.height) * 4
}

func (bb *backBuffer) Destroy() {}
