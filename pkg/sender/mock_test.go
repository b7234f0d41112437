package sender

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pion/ion-sender/pkg/video"
)

type mockEncoder struct {
	mock.Mock
	cb EncodeCompleteCallback
}

func (m *mockEncoder) InitEncode(settings CodecSettings) error {
	return m.Called(settings).Error(0)
}

func (m *mockEncoder) RegisterEncodeCompleteCallback(cb EncodeCompleteCallback) {
	m.cb = cb
}

func (m *mockEncoder) Encode(frame *video.Frame, frameTypes []video.FrameType, layers []StreamLayers) error {
	return m.Called(frame, frameTypes, layers).Error(0)
}

func (m *mockEncoder) SetRates(bitrateBps, framerateFps uint32) error {
	return m.Called(bitrateBps, framerateFps).Error(0)
}

func (m *mockEncoder) SetChannelParameters(lossRate uint8, rtt time.Duration) error {
	return m.Called(lossRate, rtt).Error(0)
}

func (m *mockEncoder) Release() error {
	return m.Called().Error(0)
}

type encodeCall struct {
	types  []video.FrameType
	layers []StreamLayers
}

// recordEncodes makes every Encode succeed and remembers its arguments.
func (m *mockEncoder) recordEncodes(calls *[]encodeCall) {
	m.On("Encode", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		types := args.Get(1).([]video.FrameType)
		layers := args.Get(2).([]StreamLayers)
		*calls = append(*calls, encodeCall{
			types:  append([]video.FrameType(nil), types...),
			layers: append([]StreamLayers(nil), layers...),
		})
		for i := range types {
			m.cb(video.EncodedFrame{StreamIndex: i, FrameType: types[i], TemporalIndex: layers[i].TemporalIndex})
		}
	}).Return(nil)
}
