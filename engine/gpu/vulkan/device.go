package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

type swapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

type queueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
}

type Device struct {
	backend        *Backend
	physicalDevice vk.PhysicalDevice
	logicalDevice  vk.Device
	allocator      *vk.AllocationCallbacks

	families         queueFamilyInfo
	swapchainSupport swapchainSupportInfo

	graphicsQueue *Queue
	computeQueue  *Queue
	presentQueue  vk.Queue

	graphicsCommandPool vk.CommandPool
	computeCommandPool  vk.CommandPool
	descriptorPool      vk.DescriptorPool

	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties
	depth      vk.Format

	// activeSwapchain supplies the render pass graphics pipelines compile
	// against. Set by NewSwapchain.
	activeSwapchain *Swapchain

	destroyed bool
}

func newDevice(backend *Backend, physicalDevice vk.PhysicalDevice) (*Device, error) {
	d := &Device{
		backend:        backend,
		physicalDevice: physicalDevice,
		allocator:      backend.allocator,
	}

	vk.GetPhysicalDeviceProperties(physicalDevice, &d.properties)
	d.properties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &d.memory)
	d.memory.Deref()

	if err := d.selectQueueFamilies(); err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")
	presentSharesGraphicsQueue := d.families.GraphicsFamilyIndex == d.families.PresentFamilyIndex
	computeSharesGraphicsQueue := d.families.GraphicsFamilyIndex == d.families.ComputeFamilyIndex

	indices := []uint32{uint32(d.families.GraphicsFamilyIndex)}
	if !presentSharesGraphicsQueue {
		indices = append(indices, uint32(d.families.PresentFamilyIndex))
	}
	if !computeSharesGraphicsQueue {
		indices = append(indices, uint32(d.families.ComputeFamilyIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i].SType = vk.StructureTypeDeviceQueueCreateInfo
		queueCreateInfos[i].QueueFamilyIndex = indices[i]
		queueCreateInfos[i].QueueCount = 1
		queueCreateInfos[i].PQueuePriorities = []float32{1.0}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if d.portabilitySubsetRequired() {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: SafeStrings(extensionNames),
	}

	if res := vk.CreateDevice(physicalDevice, &deviceCreateInfo, d.allocator, &d.logicalDevice); res != vk.Success {
		err := fmt.Errorf("failed to create logical device with `%s`", ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Logical device created.")

	var graphicsQueue, computeQueue vk.Queue
	vk.GetDeviceQueue(d.logicalDevice, uint32(d.families.GraphicsFamilyIndex), 0, &graphicsQueue)
	vk.GetDeviceQueue(d.logicalDevice, uint32(d.families.ComputeFamilyIndex), 0, &computeQueue)
	vk.GetDeviceQueue(d.logicalDevice, uint32(d.families.PresentFamilyIndex), 0, &d.presentQueue)
	core.LogInfo("Queues obtained.")

	d.graphicsQueue = newQueueWrapper(d, gpu.QueueGraphics, graphicsQueue)
	d.computeQueue = newQueueWrapper(d, gpu.QueueCompute, computeQueue)

	pool, err := d.createCommandPool(uint32(d.families.GraphicsFamilyIndex))
	if err != nil {
		return nil, err
	}
	d.graphicsCommandPool = pool
	if computeSharesGraphicsQueue {
		d.computeCommandPool = pool
	} else {
		pool, err = d.createCommandPool(uint32(d.families.ComputeFamilyIndex))
		if err != nil {
			return nil, err
		}
		d.computeCommandPool = pool
	}
	core.LogInfo("Command pools created.")

	if err := d.createDescriptorPool(); err != nil {
		return nil, err
	}

	if !d.detectDepthFormat() {
		d.depth = vk.FormatUndefined
	}

	return d, nil
}

func (d *Device) selectQueueFamilies() error {
	d.families = queueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1, ComputeFamilyIndex: -1}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physicalDevice, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physicalDevice, &queueFamilyCount, queueFamilies)

	for i := 0; i < int(queueFamilyCount); i++ {
		queueFamilies[i].Deref()

		if vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit > 0 && d.families.GraphicsFamilyIndex < 0 {
			d.families.GraphicsFamilyIndex = int32(i)
		}

		if vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueComputeBit > 0 {
			// Prefer a family without graphics so compute work does not
			// contend with rendering.
			if d.families.ComputeFamilyIndex < 0 ||
				vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit == 0 {
				d.families.ComputeFamilyIndex = int32(i)
			}
		}

		if d.backend.surface != vk.NullSurface {
			var supportsPresent vk.Bool32 = vk.False
			if res := vk.GetPhysicalDeviceSurfaceSupport(d.physicalDevice, uint32(i), d.backend.surface, &supportsPresent); res != vk.Success {
				err := fmt.Errorf("failed to query surface support with `%s`", ResultString(res))
				core.LogError(err.Error())
				return err
			}
			if supportsPresent == vk.True && d.families.PresentFamilyIndex < 0 {
				d.families.PresentFamilyIndex = int32(i)
			}
		}
	}

	if d.families.PresentFamilyIndex < 0 {
		d.families.PresentFamilyIndex = d.families.GraphicsFamilyIndex
	}
	if d.families.GraphicsFamilyIndex < 0 || d.families.ComputeFamilyIndex < 0 {
		err := fmt.Errorf("device '%s' lacks a graphics or compute queue family", d.Name())
		core.LogError(err.Error())
		return err
	}

	core.LogDebug("Graphics Family Index: %d", d.families.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", d.families.PresentFamilyIndex)
	core.LogDebug("Compute Family Index:  %d", d.families.ComputeFamilyIndex)
	return nil
}

func (d *Device) portabilitySubsetRequired() bool {
	var availableExtensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(d.physicalDevice, "", &availableExtensionCount, nil); res != vk.Success {
		return false
	}
	if availableExtensionCount == 0 {
		return false
	}
	availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(d.physicalDevice, "", &availableExtensionCount, availableExtensions); res != vk.Success {
		return false
	}
	for i := 0; i < int(availableExtensionCount); i++ {
		availableExtensions[i].Deref()
		end := FindFirstZeroInByteArray(availableExtensions[i].ExtensionName[:])
		if vk.ToString(availableExtensions[i].ExtensionName[:end+1]) == "VK_KHR_portability_subset" {
			return true
		}
	}
	return false
}

func (d *Device) createCommandPool(familyIndex uint32) (vk.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: familyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.logicalDevice, &poolCreateInfo, d.allocator, &pool); res != vk.Success {
		err := fmt.Errorf("failed to create command pool with `%s`", ResultString(res))
		core.LogError(err.Error())
		return vk.NullCommandPool, err
	}
	return pool, nil
}

func (d *Device) createDescriptorPool() error {
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 128},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 256},
	}
	poolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       128,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if res := vk.CreateDescriptorPool(d.logicalDevice, &poolCreateInfo, d.allocator, &d.descriptorPool); res != vk.Success {
		err := fmt.Errorf("failed to create descriptor pool with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (d *Device) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		properties := vk.FormatProperties{}
		vk.GetPhysicalDeviceFormatProperties(d.physicalDevice, candidate, &properties)
		properties.Deref()
		if (vk.FormatFeatureFlagBits(properties.LinearTilingFeatures)&flags) == flags ||
			(vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags) == flags {
			d.depth = candidate
			return true
		}
	}
	return false
}

func (d *Device) querySwapchainSupport() error {
	surface := d.backend.surface
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.physicalDevice, surface, &d.swapchainSupport.Capabilities); res != vk.Success {
		err := fmt.Errorf("failed to get surface capabilities with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}
	d.swapchainSupport.Capabilities.Deref()

	if res := vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, surface, &d.swapchainSupport.FormatCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to get surface formats with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}
	if d.swapchainSupport.FormatCount != 0 {
		d.swapchainSupport.Formats = make([]vk.SurfaceFormat, d.swapchainSupport.FormatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, surface, &d.swapchainSupport.FormatCount, d.swapchainSupport.Formats); res != vk.Success {
			err := fmt.Errorf("failed to get surface formats with `%s`", ResultString(res))
			core.LogError(err.Error())
			return err
		}
	}

	if res := vk.GetPhysicalDeviceSurfacePresentModes(d.physicalDevice, surface, &d.swapchainSupport.PresentModeCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to get surface present modes with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}
	if d.swapchainSupport.PresentModeCount != 0 {
		d.swapchainSupport.PresentModes = make([]vk.PresentMode, d.swapchainSupport.PresentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(d.physicalDevice, surface, &d.swapchainSupport.PresentModeCount, d.swapchainSupport.PresentModes); res != vk.Success {
			err := fmt.Errorf("failed to get surface present modes with `%s`", ResultString(res))
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (d *Device) findMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(d.memory.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (d *Device) Name() string {
	end := FindFirstZeroInByteArray(d.properties.DeviceName[:])
	return vk.ToString(d.properties.DeviceName[:end+1])
}

func (d *Device) Queue(kind gpu.QueueKind) gpu.Queue {
	if kind == gpu.QueueCompute {
		return d.computeQueue
	}
	return d.graphicsQueue
}

func (d *Device) NewFence() (gpu.Fence, error) {
	return newFence(d)
}

func (d *Device) NewCommandList(kind gpu.QueueKind) (gpu.CommandList, error) {
	pool := d.graphicsCommandPool
	if kind == gpu.QueueCompute {
		pool = d.computeCommandPool
	}
	return newCommandList(d, kind, pool)
}

func (d *Device) NewSwapchain(surface gpu.Surface, config gpu.SwapchainConfig) (gpu.Swapchain, error) {
	sc, err := newSwapchain(d, config)
	if err != nil {
		return nil, err
	}
	d.activeSwapchain = sc
	return sc, nil
}

func (d *Device) renderPassForPipelines() vk.RenderPass {
	if d.activeSwapchain == nil {
		return vk.NullRenderPass
	}
	return d.activeSwapchain.renderPass
}

func (d *Device) NewBuffer(desc gpu.BufferDesc) (gpu.Resource, error) {
	return newBuffer(d, desc)
}

func (d *Device) NewGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	return newGraphicsPipeline(d, desc)
}

func (d *Device) NewComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	return newComputePipeline(d, desc)
}

func (d *Device) WaitIdle() error {
	if res := vk.DeviceWaitIdle(d.logicalDevice); res != vk.Success {
		err := fmt.Errorf("device failed to wait in idle mode with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true

	vk.DeviceWaitIdle(d.logicalDevice)

	if d.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(d.logicalDevice, d.descriptorPool, d.allocator)
	}

	core.LogInfo("Destroying command pools...")
	vk.DestroyCommandPool(d.logicalDevice, d.graphicsCommandPool, d.allocator)
	if d.computeCommandPool != d.graphicsCommandPool {
		vk.DestroyCommandPool(d.logicalDevice, d.computeCommandPool, d.allocator)
	}

	core.LogInfo("Destroying logical device...")
	if d.logicalDevice != nil {
		vk.DestroyDevice(d.logicalDevice, d.allocator)
		d.logicalDevice = nil
	}
	d.physicalDevice = nil
}
