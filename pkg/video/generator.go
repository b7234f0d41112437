package video

import (
	"github.com/benbjohnson/clock"
)

// Generator produces empty frames of a fixed size stamped with the clock.
type Generator struct {
	width  int
	height int
	clock  clock.Clock
}

// NewGenerator returns a frame source for drivers and tests.
func NewGenerator(width, height int, clk clock.Clock) *Generator {
	if clk == nil {
		clk = clock.New()
	}
	return &Generator{width: width, height: height, clock: clk}
}

// NextFrame returns a new empty frame captured now.
func (g *Generator) NextFrame() *Frame {
	return &Frame{
		Width:       g.width,
		Height:      g.height,
		CaptureTime: g.clock.Now(),
	}
}
