package sender

import (
	"time"

	"github.com/pion/ion-sender/pkg/temporal"
	"github.com/pion/ion-sender/pkg/video"
)

// CodecSettings is handed to the encoder on every registration.
type CodecSettings struct {
	MimeType         string
	Width            int
	Height           int
	StartBitrateKbps uint32
	MaxBitrateKbps   uint32
	MaxFramerate     uint32
	InternalSource   bool
	Streams          []video.StreamDescriptor
}

// StreamLayers tells the encoder how to encode one stream of a frame.
type StreamLayers struct {
	// BitrateKbps is the share of the budget assigned to the stream.
	BitrateKbps   uint32
	Allocation    temporal.Allocation
	TemporalIndex video.TemporalIndex
}

// EncodeCompleteCallback receives every encoded stream frame. It runs inside
// Encode and must not call back into the sender.
type EncodeCompleteCallback func(f video.EncodedFrame)

// Encoder is the capability the sender drives. Any non-nil error is surfaced
// to the caller unchanged; encoders reporting raw codes use *EncodeError.
type Encoder interface {
	InitEncode(settings CodecSettings) error
	RegisterEncodeCompleteCallback(cb EncodeCompleteCallback)
	// Encode encodes frame once for every stream. frameTypes and layers have
	// one entry per configured stream. frame is nil when an internal source
	// encoder is asked for a key frame.
	Encode(frame *video.Frame, frameTypes []video.FrameType, layers []StreamLayers) error
	SetRates(bitrateBps, framerateFps uint32) error
	SetChannelParameters(lossRate uint8, rtt time.Duration) error
	Release() error
}
