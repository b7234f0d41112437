package sender

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pion/ion-sender/pkg/video"
)

func TestIntraRequestScheduler(t *testing.T) {
	s := newIntraRequestScheduler(3)

	assert.NoError(t, s.RequestKeyFrame(1))
	assert.NoError(t, s.RequestKeyFrame(1))
	assert.True(t, s.Pending(1))
	assert.Equal(t, []video.FrameType{video.FrameDelta, video.FrameKey, video.FrameDelta}, s.ConsumeFrameTypes())
	assert.Equal(t, video.DeltaFrames(3), s.ConsumeFrameTypes())

	for _, i := range []int{-1, 3, 100} {
		err := s.RequestKeyFrame(i)
		assert.ErrorIs(t, err, ErrStreamIndexOutOfRange)
		assert.Equal(t, CodeRangeError, ResultCode(err))
	}
	assert.Equal(t, video.DeltaFrames(3), s.ConsumeFrameTypes())
}

func TestIntraRequestScheduler_Restore(t *testing.T) {
	s := newIntraRequestScheduler(2)
	assert.NoError(t, s.RequestKeyFrame(0))

	types := s.ConsumeFrameTypes()
	assert.False(t, s.Pending(0))
	s.restore(types)
	assert.True(t, s.Pending(0))
	assert.False(t, s.Pending(1))
}

func TestIntraRequestScheduler_Reset(t *testing.T) {
	s := newIntraRequestScheduler(2)
	assert.NoError(t, s.RequestKeyFrame(1))
	s.Reset(4)
	assert.Equal(t, video.DeltaFrames(4), s.ConsumeFrameTypes())
	assert.NoError(t, s.RequestKeyFrame(3))
}
