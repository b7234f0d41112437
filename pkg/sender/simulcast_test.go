package sender

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pion/ion-sender/pkg/video"
)

func Test_splitBudget(t *testing.T) {
	streams := []video.StreamDescriptor{
		{MaxBitrateKbps: 150},
		{MaxBitrateKbps: 500},
		{MaxBitrateKbps: 1200},
	}
	tests := []struct {
		name  string
		total uint32
		want  []uint32
	}{
		{name: "Must give nothing without budget", total: 0, want: []uint32{0, 0, 0}},
		{name: "Must fill the lowest stream first", total: 100, want: []uint32{100, 0, 0}},
		{name: "Must cap every stream", total: 900, want: []uint32{150, 500, 250}},
		{name: "Must not exceed the maxima", total: 5000, want: []uint32{150, 500, 1200}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitBudget(tt.total, streams))
		})
	}
}
