// Package temporal splits a stream's bitrate and framerate budget across its
// temporal layers and decides which layer every emitted frame belongs to.
package temporal

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pion/ion-sender/pkg/video"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid temporal layer configuration")

// Strategy selects how layers are scheduled.
type Strategy string

const (
	// StrategyFixed always uses every configured layer.
	StrategyFixed Strategy = "fixed"
	// StrategyAdaptive drops top layers when the input framerate is too low
	// for every layer to stay useful.
	StrategyAdaptive Strategy = "adaptive"
)

// ParseStrategy maps a configuration string to a Strategy. An empty string is
// the fixed strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyFixed:
		return StrategyFixed, nil
	case StrategyAdaptive, "realtime":
		return StrategyAdaptive, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, s)
}

// Config selects and tunes the allocation strategy.
type Config struct {
	Strategy  string         `mapstructure:"strategy"`
	RateTable RateTable      `mapstructure:"ratetable"`
	Adaptive  AdaptivePolicy `mapstructure:"adaptive"`
}

// Layer holds the cumulative targets of one temporal layer.
type Layer struct {
	FramerateFps float64
	BitrateKbps  uint32
}

// Allocation is the result of allocating a budget to a stream's layers.
// Layers always has one entry per configured layer; layers above
// ActiveLayers repeat the figures of the top active layer.
type Allocation struct {
	Layers       []Layer
	Pattern      []uint8
	ActiveLayers int
}

// TemporalIndex returns the layer the frameNumber-th frame of the current
// cadence belongs to. Streams configured without temporal layering produce
// unlayered frames.
func (a Allocation) TemporalIndex(frameNumber uint64) video.TemporalIndex {
	if len(a.Layers) <= 1 || len(a.Pattern) == 0 {
		return video.NoTemporalIndex
	}
	return video.NewTemporalIndex(a.Pattern[frameNumber%uint64(len(a.Pattern))])
}

// Layer returns the cumulative targets of layer t.
func (a Allocation) Layer(t int) (Layer, bool) {
	if t < 0 || t >= len(a.Layers) {
		return Layer{}, false
	}
	return a.Layers[t], true
}

// Allocator computes allocations for one stream. Implementations are pure.
type Allocator interface {
	Allocate(bitrateKbps uint32, framerateFps float64) Allocation
	NumLayers() int
	Strategy() Strategy
}

// New builds the allocator for a stream with numLayers temporal layers.
func New(numLayers int, c Config) (Allocator, error) {
	if numLayers < 1 || numLayers > MaxTemporalLayers {
		return nil, fmt.Errorf("%w: %d temporal layers, want 1..%d", ErrInvalidConfig, numLayers, MaxTemporalLayers)
	}
	strategy, err := ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}
	table := c.RateTable
	if len(table) == 0 {
		table = DefaultRateTable
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if numLayers > len(table) {
		return nil, fmt.Errorf("%w: rate table has no row for %d layers", ErrInvalidConfig, numLayers)
	}

	base := allocator{layers: numLayers, table: table}
	switch strategy {
	case StrategyAdaptive:
		policy := c.Adaptive.withDefaults()
		if err := policy.Validate(numLayers); err != nil {
			return nil, err
		}
		return &adaptiveAllocator{allocator: base, policy: policy}, nil
	default:
		return &fixedAllocator{allocator: base, pattern: dyadicPattern(numLayers)}, nil
	}
}

type allocator struct {
	layers int
	table  RateTable
}

func (a *allocator) NumLayers() int { return a.layers }

// fill allocates over active layers and repeats the top active layer for
// every configured layer above it.
func (a *allocator) fill(active int, bitrateKbps uint32, framerateFps float64) []Layer {
	if framerateFps < 0 {
		framerateFps = 0
	}
	out := make([]Layer, a.layers)
	for t := 0; t < a.layers; t++ {
		if t >= active {
			out[t] = out[active-1]
			continue
		}
		out[t] = Layer{
			FramerateFps: framerateFps * layerShare(active, t),
			BitrateKbps:  uint32(math.Round(a.table.fraction(active, t) * float64(bitrateKbps))),
		}
	}
	return out
}

type fixedAllocator struct {
	allocator
	pattern []uint8
}

func (f *fixedAllocator) Strategy() Strategy { return StrategyFixed }

func (f *fixedAllocator) Allocate(bitrateKbps uint32, framerateFps float64) Allocation {
	return Allocation{
		Layers:       f.fill(f.layers, bitrateKbps, framerateFps),
		Pattern:      f.pattern,
		ActiveLayers: f.layers,
	}
}

type adaptiveAllocator struct {
	allocator
	policy AdaptivePolicy
}

func (a *adaptiveAllocator) Strategy() Strategy { return StrategyAdaptive }

func (a *adaptiveAllocator) Allocate(bitrateKbps uint32, framerateFps float64) Allocation {
	active := a.policy.ActiveLayers(a.layers, framerateFps)
	return Allocation{
		Layers:       a.fill(active, bitrateKbps, framerateFps),
		Pattern:      dyadicPattern(active),
		ActiveLayers: active,
	}
}
