package sender

import (
	"github.com/pion/ion-sender/pkg/video"
)

// splitBudget fills streams in index order with totalKbps, each capped at its
// own maximum. Lower streams are served first so a shrinking budget drops the
// highest resolutions.
func splitBudget(totalKbps uint32, streams []video.StreamDescriptor) []uint32 {
	out := make([]uint32, len(streams))
	left := totalKbps
	for i, s := range streams {
		share := s.MaxBitrateKbps
		if share > left {
			share = left
		}
		out[i] = share
		left -= share
	}
	return out
}
