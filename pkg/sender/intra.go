package sender

import (
	"github.com/pion/ion-sender/pkg/video"
)

// intraRequestScheduler tracks pending key frame requests per stream.
type intraRequestScheduler struct {
	pending []bool
}

func newIntraRequestScheduler(n int) *intraRequestScheduler {
	return &intraRequestScheduler{pending: make([]bool, n)}
}

// RequestKeyFrame marks stream i. Repeated requests before the next frame
// collapse into one key frame.
func (s *intraRequestScheduler) RequestKeyFrame(i int) error {
	if i < 0 || i >= len(s.pending) {
		return rangeError(i, len(s.pending))
	}
	s.pending[i] = true
	return nil
}

// ConsumeFrameTypes returns the frame types of the next frame and clears the
// requests it satisfies.
func (s *intraRequestScheduler) ConsumeFrameTypes() []video.FrameType {
	types := video.DeltaFrames(len(s.pending))
	for i, p := range s.pending {
		if p {
			types[i] = video.FrameKey
			s.pending[i] = false
		}
	}
	return types
}

// restore marks again the key frames of a vector the encoder did not accept.
func (s *intraRequestScheduler) restore(types []video.FrameType) {
	for i, t := range types {
		if t == video.FrameKey && i < len(s.pending) {
			s.pending[i] = true
		}
	}
}

// Pending reports whether stream i has an outstanding request.
func (s *intraRequestScheduler) Pending(i int) bool {
	return i >= 0 && i < len(s.pending) && s.pending[i]
}

// Reset drops every request and resizes to n streams.
func (s *intraRequestScheduler) Reset(n int) {
	s.pending = make([]bool, n)
}
