package temporal

import (
	"math/bits"
)

// dyadicPattern returns the temporal index of every frame in one cycle of a
// layers deep dyadic cadence. Over 2^(layers-1) frames the base layer gets one
// frame and every further layer doubles the share of the layer below it, so
// for three layers the cycle is 0,2,1,2.
func dyadicPattern(layers int) []uint8 {
	if layers <= 1 {
		return []uint8{0}
	}
	n := 1 << (layers - 1)
	p := make([]uint8, n)
	for i := 1; i < n; i++ {
		p[i] = uint8(layers - 1 - bits.TrailingZeros(uint(i)))
	}
	return p
}

// layerShare is the cumulative framerate share of layer t in a dyadic cadence
// over layers temporal layers.
func layerShare(layers, t int) float64 {
	return 1 / float64(uint(1)<<(layers-1-t))
}
