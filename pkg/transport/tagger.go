// Package transport turns encoded stream frames into RTP packets and hands
// them to writers off the encode path.
package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/pion/ion-sender/pkg/video"
)

// Logger is an implementation of logr.Logger. If is not provided - will be turned off.
var Logger logr.Logger = logr.Discard()

const videoClockRate = 90000

type streamState struct {
	ssrc      uint32
	seq       uint16
	pictureID uint16
	tl0       uint8
	started   bool
	firstTS   time.Time
}

// RTPTagger packs every encoded frame into a single RTP packet carrying the
// stream's SSRC and a VP8 payload descriptor with the frame's temporal layer.
type RTPTagger struct {
	sync.Mutex
	payloadType uint8
	streams     []*streamState
}

// NewRTPTagger returns a tagger for streams with the given SSRCs, in stream
// index order. Only VP8 payloads can be tagged.
func NewRTPTagger(codec string, payloadType uint8, ssrcs []uint32) (*RTPTagger, error) {
	if !strings.EqualFold(codec, webrtc.MimeTypeVP8) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
	t := &RTPTagger{payloadType: payloadType}
	for _, ssrc := range ssrcs {
		t.streams = append(t.streams, &streamState{ssrc: ssrc})
	}
	return t, nil
}

// SSRC returns the SSRC of stream i.
func (t *RTPTagger) SSRC(i int) (uint32, bool) {
	if i < 0 || i >= len(t.streams) {
		return 0, false
	}
	return t.streams[i].ssrc, true
}

// Tag builds the packet of f.
func (t *RTPTagger) Tag(f video.EncodedFrame) (*rtp.Packet, error) {
	if f.Err != nil {
		return nil, ErrFailedFrame
	}
	t.Lock()
	defer t.Unlock()

	if f.StreamIndex < 0 || f.StreamIndex >= len(t.streams) {
		return nil, ErrUnknownStream
	}
	s := t.streams[f.StreamIndex]
	if !s.started {
		s.started = true
		s.firstTS = f.CaptureTime
	}

	desc := VP8Descriptor{Start: true, PictureID: s.pictureID}
	if tid, ok := f.TemporalIndex.Get(); ok {
		if tid == 0 {
			s.tl0++
		}
		desc.TemporalSupported = true
		desc.TL0PICIDX = s.tl0
		desc.TID = tid
		desc.Y = f.FrameType == video.FrameKey
	}

	header := desc.Marshal()
	payload := make([]byte, len(header)+max(len(f.Payload), 3))
	copy(payload, header)
	body := payload[len(header):]
	copy(body, f.Payload)
	// P bit of the VP8 payload header, 0 for key frames
	body[0] &^= 0x01
	if f.FrameType != video.FrameKey {
		body[0] |= 0x01
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    t.payloadType,
			SequenceNumber: s.seq,
			Timestamp:      rtpTimestamp(f.CaptureTime.Sub(s.firstTS)),
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.seq++
	s.pictureID = (s.pictureID + 1) & 0x7fff
	return pkt, nil
}

// rtpTimestamp converts d to 90 kHz ticks, rounded to the nearest tick.
func rtpTimestamp(d time.Duration) uint32 {
	sec := int64(d / time.Second)
	rem := int64(d % time.Second)
	return uint32(sec*videoClockRate + (rem*videoClockRate+int64(time.Second)/2)/int64(time.Second))
}
