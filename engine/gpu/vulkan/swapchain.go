package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
	vmath "github.com/spaghettifunk/vortex/engine/math"
)

// Swapchain owns the presentable images, their views and framebuffers,
// plus the render pass that transitions an image to the present layout at
// the end of a frame. The display index is owned by the presentation
// engine and is only refreshed by acquiring the next image.
type Swapchain struct {
	device *Device

	handle      vk.Swapchain
	imageFormat vk.SurfaceFormat
	width       uint32
	height      uint32

	imageCount   uint32
	images       []vk.Image
	views        []vk.ImageView
	framebuffers []vk.Framebuffer
	backBuffers  []*backBuffer

	renderPass vk.RenderPass

	imageAvailableSemaphore vk.Semaphore
	renderCompleteSemaphore vk.Semaphore
	renderPending           bool

	current uint32
}

func newSwapchain(device *Device, config gpu.SwapchainConfig) (*Swapchain, error) {
	if device.backend.surface == vk.NullSurface {
		err := fmt.Errorf("cannot create a swapchain without a window surface")
		core.LogError(err.Error())
		return nil, err
	}
	if err := device.querySwapchainSupport(); err != nil {
		return nil, err
	}

	sc := &Swapchain{
		device: device,
		width:  config.Width,
		height: config.Height,
	}

	// Choose a swap surface format.
	found := false
	for i := 0; i < int(device.swapchainSupport.FormatCount); i++ {
		format := device.swapchainSupport.Formats[i]
		format.Deref()
		if format.Format == vk.FormatB8g8r8a8Unorm &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.imageFormat = format
			found = true
		}
	}
	if !found {
		sc.imageFormat = device.swapchainSupport.Formats[0]
		sc.imageFormat.Deref()
	}

	// Present without waiting for vblank when the driver allows it.
	presentMode := vk.PresentModeFifo
	for i := 0; i < int(device.swapchainSupport.PresentModeCount); i++ {
		mode := device.swapchainSupport.PresentModes[i]
		if mode == vk.PresentModeImmediate {
			presentMode = mode
			break
		}
		if mode == vk.PresentModeMailbox {
			presentMode = mode
		}
	}

	swapchainExtent := vk.Extent2D{Width: config.Width, Height: config.Height}
	if device.swapchainSupport.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = device.swapchainSupport.Capabilities.CurrentExtent
	}
	min := device.swapchainSupport.Capabilities.MinImageExtent
	max := device.swapchainSupport.Capabilities.MaxImageExtent
	swapchainExtent.Width = vmath.Clamp(swapchainExtent.Width, min.Width, max.Width)
	swapchainExtent.Height = vmath.Clamp(swapchainExtent.Height, min.Height, max.Height)
	sc.width = swapchainExtent.Width
	sc.height = swapchainExtent.Height

	imageCount := uint32(config.BufferCount)
	if imageCount < device.swapchainSupport.Capabilities.MinImageCount {
		imageCount = device.swapchainSupport.Capabilities.MinImageCount
	}
	if device.swapchainSupport.Capabilities.MaxImageCount > 0 && imageCount > device.swapchainSupport.Capabilities.MaxImageCount {
		imageCount = device.swapchainSupport.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          device.backend.surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.imageFormat.Format,
		ImageColorSpace:  sc.imageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
	}

	if device.families.GraphicsFamilyIndex != device.families.PresentFamilyIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.families.GraphicsFamilyIndex),
			uint32(device.families.PresentFamilyIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	swapchainCreateInfo.PreTransform = device.swapchainSupport.Capabilities.CurrentTransform
	swapchainCreateInfo.CompositeAlpha = vk.CompositeAlphaOpaqueBit
	swapchainCreateInfo.PresentMode = presentMode
	swapchainCreateInfo.Clipped = vk.True
	swapchainCreateInfo.OldSwapchain = nil

	if res := vk.CreateSwapchain(device.logicalDevice, &swapchainCreateInfo, device.allocator, &sc.handle); res != vk.Success {
		err := fmt.Errorf("failed to create swapchain with `%s`", ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	// Images
	if res := vk.GetSwapchainImages(device.logicalDevice, sc.handle, &sc.imageCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to get swapchain images with `%s`", ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	sc.images = make([]vk.Image, sc.imageCount)
	sc.views = make([]vk.ImageView, sc.imageCount)
	if res := vk.GetSwapchainImages(device.logicalDevice, sc.handle, &sc.imageCount, sc.images); res != vk.Success {
		err := fmt.Errorf("failed to get swapchain images with `%s`", ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	for i := 0; i < int(sc.imageCount); i++ {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    sc.images[i],
			ViewType: vk.ImageViewType2d,
			Format:   sc.imageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		if res := vk.CreateImageView(device.logicalDevice, &viewInfo, device.allocator, &sc.views[i]); res != vk.Success {
			err := fmt.Errorf("failed to create image view with `%s`", ResultString(res))
			core.LogError(err.Error())
			return nil, err
		}
	}

	if err := sc.createRenderPass(); err != nil {
		return nil, err
	}
	if err := sc.createFramebuffers(); err != nil {
		return nil, err
	}

	sc.backBuffers = make([]*backBuffer, sc.imageCount)
	for i := range sc.backBuffers {
		sc.backBuffers[i] = &backBuffer{
			swapchain: sc,
			name:      fmt.Sprintf("backbuffer_%d", i),
			index:     i,
			image:     sc.images[i],
		}
	}

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	if res := vk.CreateSemaphore(device.logicalDevice, &semaphoreCreateInfo, device.allocator, &sc.imageAvailableSemaphore); res != vk.Success {
		err := fmt.Errorf("failed to create semaphore with `%s`", ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.CreateSemaphore(device.logicalDevice, &semaphoreCreateInfo, device.allocator, &sc.renderCompleteSemaphore); res != vk.Success {
		err := fmt.Errorf("failed to create semaphore with `%s`", ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	// Acquire the first image so CurrentIndex is valid before frame one.
	if err := sc.acquireNext(); err != nil {
		return nil, err
	}

	core.LogInfo("Swapchain created successfully.")
	return sc, nil
}

// Color-only pass: clear on load, present layout on store.
func (sc *Swapchain) createRenderPass() error {
	colorAttachment := vk.AttachmentDescription{
		Format:         sc.imageFormat.Format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}
	colorAttachment.Deref()

	colorAttachmentReference := []vk.AttachmentReference{
		{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		},
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachmentReference,
	}
	subpass.Deref()

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}
	dependency.Deref()

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	renderpassCreateInfo.Deref()

	if res := vk.CreateRenderPass(sc.device.logicalDevice, &renderpassCreateInfo, sc.device.allocator, &sc.renderPass); res != vk.Success {
		err := fmt.Errorf("failed to create render pass with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (sc *Swapchain) createFramebuffers() error {
	sc.framebuffers = make([]vk.Framebuffer, sc.imageCount)
	for i := 0; i < int(sc.imageCount); i++ {
		framebufferCreateInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      sc.renderPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{sc.views[i]},
			Width:           sc.width,
			Height:          sc.height,
			Layers:          1,
		}
		if res := vk.CreateFramebuffer(sc.device.logicalDevice, &framebufferCreateInfo, sc.device.allocator, &sc.framebuffers[i]); res != vk.Success {
			err := fmt.Errorf("failed to create framebuffer with `%s`", ResultString(res))
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (sc *Swapchain) acquireNext() error {
	var imageIndex uint32
	result := vk.AcquireNextImage(sc.device.logicalDevice, sc.handle, math.MaxUint64, sc.imageAvailableSemaphore, vk.NullFence, &imageIndex)
	if result == vk.ErrorDeviceLost {
		return core.ErrDeviceLost
	}
	if result != vk.Success && result != vk.Suboptimal {
		err := fmt.Errorf("failed to acquire swapchain image with `%s`", ResultString(result))
		core.LogError(err.Error())
		return err
	}
	sc.current = imageIndex
	return nil
}

func (sc *Swapchain) BufferCount() int {
	return int(sc.imageCount)
}

func (sc *Swapchain) CurrentIndex() int {
	return int(sc.current)
}

func (sc *Swapchain) Buffer(index int) gpu.Resource {
	return sc.backBuffers[index]
}

func (sc *Swapchain) Present() error {
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.handle},
		PImageIndices:  []uint32{sc.current},
		PResults:       nil,
	}
	if sc.renderPending {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{sc.renderCompleteSemaphore}
		sc.renderPending = false
	}

	result := vk.QueuePresent(sc.device.presentQueue, &presentInfo)
	if result == vk.ErrorDeviceLost {
		return core.ErrDeviceLost
	}
	if result != vk.Success && result != vk.Suboptimal && result != vk.ErrorOutOfDate {
		err := fmt.Errorf("failed to present swapchain image with `%s`", ResultString(result))
		core.LogError(err.Error())
		return err
	}

	return sc.acquireNext()
}

func (sc *Swapchain) Destroy() {
	vk.DeviceWaitIdle(sc.device.logicalDevice)

	if sc.imageAvailableSemaphore != vk.NullSemaphore {
		vk.DestroySemaphore(sc.device.logicalDevice, sc.imageAvailableSemaphore, sc.device.allocator)
	}
	if sc.renderCompleteSemaphore != vk.NullSemaphore {
		vk.DestroySemaphore(sc.device.logicalDevice, sc.renderCompleteSemaphore, sc.device.allocator)
	}

	for _, fb := range sc.framebuffers {
		vk.DestroyFramebuffer(sc.device.logicalDevice, fb, sc.device.allocator)
	}
	if sc.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(sc.device.logicalDevice, sc.renderPass, sc.device.allocator)
	}

	// Only destroy the views, not the images, since those are owned by the
	// swapchain and are destroyed with it.
	for i := 0; i < int(sc.imageCount); i++ {
		vk.DestroyImageView(sc.device.logicalDevice, sc.views[i], sc.device.allocator)
	}
	vk.DestroySwapchain(sc.device.logicalDevice, sc.handle, sc.device.allocator)
}
