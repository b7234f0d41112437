package temporal

import (
	"fmt"
)

// DefaultMinLayerFramerate keeps the base layer at 5 fps or better.
const DefaultMinLayerFramerate = 5.0

// AdaptivePolicy decides how many layers the adaptive strategy keeps for a
// measured input framerate.
type AdaptivePolicy struct {
	// MinLayerFramerate is the lowest base layer framerate worth keeping a
	// layer split for. The largest layer count whose base layer stays at or
	// above this floor is used.
	MinLayerFramerate float64 `mapstructure:"minlayerframerate"`
	// Breakpoints, when set, replaces the floor with explicit collapse
	// boundaries: Breakpoints[i] is the lowest input framerate that still
	// uses i+2 layers. Must be ascending.
	Breakpoints []float64 `mapstructure:"breakpoints"`
}

func (p AdaptivePolicy) withDefaults() AdaptivePolicy {
	if p.MinLayerFramerate == 0 && len(p.Breakpoints) == 0 {
		p.MinLayerFramerate = DefaultMinLayerFramerate
	}
	return p
}

// Validate checks the policy can serve a stream with numLayers layers.
func (p AdaptivePolicy) Validate(numLayers int) error {
	if len(p.Breakpoints) == 0 {
		if p.MinLayerFramerate <= 0 {
			return fmt.Errorf("%w: adaptive floor must be positive", ErrInvalidConfig)
		}
		return nil
	}
	if len(p.Breakpoints) < numLayers-1 {
		return fmt.Errorf("%w: %d breakpoints for %d layers", ErrInvalidConfig, len(p.Breakpoints), numLayers)
	}
	prev := 0.0
	for i, b := range p.Breakpoints {
		if b <= prev {
			return fmt.Errorf("%w: breakpoint %d (%v) not ascending", ErrInvalidConfig, i, b)
		}
		prev = b
	}
	return nil
}

// ActiveLayers returns how many of numLayers layers to use at framerateFps.
func (p AdaptivePolicy) ActiveLayers(numLayers int, framerateFps float64) int {
	if numLayers <= 1 {
		return 1
	}
	if len(p.Breakpoints) > 0 {
		active := 1
		for i := 0; i < numLayers-1 && i < len(p.Breakpoints); i++ {
			if framerateFps >= p.Breakpoints[i] {
				active = i + 2
			}
		}
		return active
	}
	for k := numLayers; k > 1; k-- {
		if framerateFps*layerShare(k, 0) >= p.MinLayerFramerate {
			return k
		}
	}
	return 1
}
