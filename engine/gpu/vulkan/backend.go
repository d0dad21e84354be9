// Package vulkan implements the gpu interfaces on top of Vulkan. The
// monotonically increasing fence values the engine relies on are emulated
// with binary vk.Fence objects retired in submission order.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vortex/engine/core"
	"github.com/spaghettifunk/vortex/engine/gpu"
)

type BackendConfig struct {
	ApplicationName  string
	Window           *glfw.Window
	EnableValidation bool
	// Extra instance extensions beyond what GLFW reports.
	RequiredExtensions []string
}

type Backend struct {
	instance  vk.Instance
	allocator *vk.AllocationCallbacks
	surface   vk.Surface
	window    *glfw.Window
	debug     bool

	debugMessenger vk.DebugReportCallback

	physicalDevices []vk.PhysicalDevice
	adapters        []gpu.AdapterInfo
}

// NewBackend initializes the Vulkan loader, creates the instance, the
// optional debug messenger and the window surface, then enumerates the
// physical devices into adapter descriptions.
func NewBackend(config BackendConfig) (*Backend, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	b := &Backend{
		window: config.Window,
		debug:  config.EnableValidation,
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   SafeString(config.ApplicationName),
		PEngineName:        SafeString("Vortex Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	if config.Window != nil {
		requiredExtensions = append(requiredExtensions, config.Window.GetRequiredInstanceExtensions()...)
	}
	requiredExtensions = append(requiredExtensions, config.RequiredExtensions...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}

	if b.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugUtilsExtensionName, vk.ExtDebugReportExtensionName)
		core.LogInfo("Required extensions:")
		for i := 0; i < len(requiredExtensions); i++ {
			core.LogInfo(requiredExtensions[i])
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = SafeStrings(requiredExtensions)

	requiredValidationLayerNames := []string{}
	if b.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}

		if runtime.GOOS == "darwin" {
			createInfo.Flags |= 1
		}

		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			err := fmt.Errorf("failed to enumerate instance layers with `%s`", ResultString(res))
			core.LogError(err.Error())
			return nil, err
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			err := fmt.Errorf("failed to enumerate instance layers with `%s`", ResultString(res))
			core.LogError(err.Error())
			return nil, err
		}

		for i := range requiredValidationLayerNames {
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
				if requiredValidationLayerNames[i] == vk.ToString(availableLayers[j].LayerName[:end+1]) {
					found = true
					break
				}
			}
			if !found {
				err := fmt.Errorf("required validation layer is missing: %s", requiredValidationLayerNames[i])
				core.LogError(err.Error())
				return nil, err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = SafeStrings(requiredValidationLayerNames)

	if res := vk.CreateInstance(&createInfo, b.allocator, &b.instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", ResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	if err := vk.InitInstance(b.instance); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if b.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
			PNext:       nil,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(b.instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return nil, err
		}
		b.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	if config.Window != nil {
		core.LogDebug("Creating Vulkan surface...")
		surface, err := config.Window.CreateWindowSurface(b.instance, nil)
		if err != nil {
			core.LogError("Vulkan surface creation failed.")
			return nil, err
		}
		b.surface = vk.SurfaceFromPointer(surface)
		core.LogDebug("Vulkan surface created.")
	}

	if err := b.enumeratePhysicalDevices(); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Backend) enumeratePhysicalDevices() error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(b.instance, &physicalDeviceCount, nil); res != vk.Success {
		err := fmt.Errorf("failed to enumerate physical devices with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}
	if physicalDeviceCount == 0 {
		return nil
	}
	b.physicalDevices = make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(b.instance, &physicalDeviceCount, b.physicalDevices); res != vk.Success {
		err := fmt.Errorf("failed to enumerate physical devices with `%s`", ResultString(res))
		core.LogError(err.Error())
		return err
	}

	b.adapters = make([]gpu.AdapterInfo, physicalDeviceCount)
	for i := 0; i < int(physicalDeviceCount); i++ {
		properties := vk.PhysicalDeviceProperties{}
		vk.GetPhysicalDeviceProperties(b.physicalDevices[i], &properties)
		properties.Deref()

		nameEnd := FindFirstZeroInByteArray(properties.DeviceName[:])
		info := gpu.AdapterInfo{
			Name:    vk.ToString(properties.DeviceName[:nameEnd+1]),
			MaxTier: gpu.TierBase,
		}
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			info.Kind = gpu.AdapterDiscrete
			info.MaxTier = gpu.TierHigh
		case vk.PhysicalDeviceTypeIntegratedGpu:
			info.Kind = gpu.AdapterIntegrated
		case vk.PhysicalDeviceTypeCpu:
			info.Kind = gpu.AdapterSoftware
		default:
			info.Kind = gpu.AdapterOther
		}
		// A 1.1+ driver gets the high tier regardless of device type.
		if vk.Version(properties.ApiVersion).Minor() >= 1 {
			info.MaxTier = gpu.TierHigh
		}
		b.adapters[i] = info
	}
	return nil
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
	return newDevice(b, b.physicalDevices[adapterIndex])
}

// Surface returns the window surface as the portable opaque handle.
func (b *Backend) Surface() gpu.Surface {
	return b.surface
}

func (b *Backend) Destroy() {
	if b.surface != vk.NullSurface {
		vk.DestroySurface(b.instance, b.surface, b.allocator)
		b.surface = vk.NullSurface
	}
	if b.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.instance, b.debugMessenger, b.allocator)
	}
	if b.instance != nil {
		vk.DestroyInstance(b.instance, b.allocator)
		b.instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
