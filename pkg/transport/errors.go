package transport

import "errors"

var (
	errNilPacket   = errors.New("invalid nil packet")
	errShortPacket = errors.New("packet is not large enough")

	// ErrUnknownStream is returned for frames of a stream without an SSRC.
	ErrUnknownStream = errors.New("no ssrc for stream")
	// ErrFailedFrame is returned when tagging a frame the encoder rejected.
	ErrFailedFrame = errors.New("frame failed to encode")
	// ErrUnsupportedCodec is returned for codecs without a payload format.
	ErrUnsupportedCodec = errors.New("no rtp payload format for codec")
)
