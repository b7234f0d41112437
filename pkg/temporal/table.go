package temporal

import (
	"fmt"
)

// MaxTemporalLayers is the deepest temporal layering supported.
const MaxTemporalLayers = 4

// RateTable holds cumulative bitrate fractions. Row K-1 describes a stream
// with K temporal layers, entry t is the share of the stream budget spent on
// all frames with temporal index <= t.
type RateTable [][]float64

// DefaultRateTable spends 40% of a three layer budget on the base layer.
var DefaultRateTable = RateTable{
	{1.0},
	{0.6, 1.0},
	{0.4, 0.6, 1.0},
	{0.25, 0.4, 0.6, 1.0},
}

// Validate checks the table describes cumulative, complete allocations.
func (r RateTable) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: empty rate table", ErrInvalidConfig)
	}
	if len(r) > MaxTemporalLayers {
		return fmt.Errorf("%w: rate table has %d rows, max %d", ErrInvalidConfig, len(r), MaxTemporalLayers)
	}
	for k, row := range r {
		if len(row) != k+1 {
			return fmt.Errorf("%w: rate table row %d has %d entries", ErrInvalidConfig, k, len(row))
		}
		prev := 0.0
		for t, f := range row {
			if f <= 0 || f > 1 {
				return fmt.Errorf("%w: rate table[%d][%d] = %v out of (0,1]", ErrInvalidConfig, k, t, f)
			}
			if f < prev {
				return fmt.Errorf("%w: rate table row %d is not cumulative", ErrInvalidConfig, k)
			}
			prev = f
		}
		if row[k] != 1 {
			return fmt.Errorf("%w: rate table row %d does not end at 1", ErrInvalidConfig, k)
		}
	}
	return nil
}

// fraction returns the cumulative share of layer t for a stream using layers
// temporal layers.
func (r RateTable) fraction(layers, t int) float64 {
	return r[layers-1][t]
}
