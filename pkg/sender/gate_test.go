package sender

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelParameterGate_ApplyBitrate(t *testing.T) {
	enc := &mockEncoder{}
	enc.On("SetRates", uint32(300000), uint32(30)).Return(nil).Once()
	enc.On("SetRates", uint32(300000), uint32(20)).Return(nil).Once()
	g := newChannelParameterGate(enc)

	sent, err := g.ApplyBitrate(300000, 30)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = g.ApplyBitrate(300000, 30)
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = g.ApplyBitrate(300000, 20)
	require.NoError(t, err)
	assert.True(t, sent)

	enc.AssertExpectations(t)
}

func TestChannelParameterGate_Seed(t *testing.T) {
	enc := &mockEncoder{}
	g := newChannelParameterGate(enc)
	g.seed(500000, 30)

	sent, err := g.ApplyBitrate(500000, 30)
	require.NoError(t, err)
	assert.False(t, sent)
	enc.AssertNotCalled(t, "SetRates", uint32(500000), uint32(30))

	g.reset()
	enc.On("SetRates", uint32(500000), uint32(30)).Return(nil).Once()
	sent, err = g.ApplyBitrate(500000, 30)
	require.NoError(t, err)
	assert.True(t, sent)
	enc.AssertExpectations(t)
}

func TestChannelParameterGate_ApplyChannelConditions(t *testing.T) {
	enc := &mockEncoder{}
	enc.On("SetChannelParameters", uint8(10), 100*time.Millisecond).Return(nil).Once()
	enc.On("SetChannelParameters", uint8(10), 120*time.Millisecond).Return(nil).Once()
	g := newChannelParameterGate(enc)

	for _, rtt := range []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 120 * time.Millisecond, 120 * time.Millisecond} {
		_, err := g.ApplyChannelConditions(10, rtt)
		require.NoError(t, err)
	}
	enc.AssertExpectations(t)
	enc.AssertNumberOfCalls(t, "SetChannelParameters", 2)
}

func TestChannelParameterGate_FailureDoesNotAdvance(t *testing.T) {
	boom := &EncodeError{Op: "SetRates", Code: -4}
	enc := &mockEncoder{}
	enc.On("SetRates", uint32(100000), uint32(15)).Return(boom).Once()
	enc.On("SetRates", uint32(100000), uint32(15)).Return(nil).Once()
	g := newChannelParameterGate(enc)

	sent, err := g.ApplyBitrate(100000, 15)
	assert.False(t, sent)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, -4, ResultCode(err))

	sent, err = g.ApplyBitrate(100000, 15)
	require.NoError(t, err)
	assert.True(t, sent)
	enc.AssertExpectations(t)
}
