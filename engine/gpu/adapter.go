package gpu

import (
	"fmt"

	"github.com/spaghettifunk/vortex/engine/core"
)

// ResolveOptions configures adapter selection. Validation layers are a
// backend-construction concern, not a resolve-time one: the Vulkan backend
// enables them at instance creation.
type ResolveOptions struct {
	Tier         CapabilityTier
	FallbackTier CapabilityTier
}

// Resolve walks adapters in enumeration order and creates a device on the
// first one that supports opts.Tier. If none qualifies it retries at the
// fallback tier with no adapter preference. It fails only when no device
// can be created at any tier; in that case nothing is left allocated.
func Resolve(backend Backend, opts ResolveOptions) (Device, AdapterInfo, error) {
	adapters := backend.EnumerateAdapters()
	if len(adapters) == 0 {
		core.LogError("no adapters were enumerated")
		return nil, AdapterInfo{}, core.ErrNoAdapter
	}

	for i, info := range adapters {
		if info.MaxTier < opts.Tier {
			continue
		}
		device, err := backend.CreateDevice(i, opts.Tier)
		if err != nil {
			core.LogWarn("adapter '%s' advertises the tier but device creation failed: %s", info.Name, err)
			continue
		}
		core.LogInfo("selected adapter '%s'", info.Name)
		return device, info, nil
	}

	// No adapter met the target tier. Fall back with no adapter preference.
	core.LogWarn("no adapter supports the target tier, falling back")
	device, err := backend.CreateDevice(-1, opts.FallbackTier)
	if err != nil {
		return nil, AdapterInfo{}, fmt.Errorf("%w: fallback failed: %s", core.ErrNoAdapter, err)
	}
	return device, AdapterInfo{Name: "fallback", Kind: AdapterOther, MaxTier: opts.FallbackTier}, nil
}
