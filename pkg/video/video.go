package video

import (
	"fmt"
	"time"
)

// FrameType tells the encoder whether a stream must produce an intra frame.
type FrameType int

const (
	FrameDelta FrameType = iota
	FrameKey
)

func (t FrameType) String() string {
	switch t {
	case FrameKey:
		return "key"
	case FrameDelta:
		return "delta"
	default:
		return fmt.Sprintf("FrameType(%d)", int(t))
	}
}

// DeltaFrames returns a frame type vector of n delta frames.
func DeltaFrames(n int) []FrameType {
	return make([]FrameType, n)
}

// TemporalIndex is the optional temporal layer a frame belongs to. The zero
// value means the frame is not layered; such frames count towards every
// cumulative layer.
type TemporalIndex struct {
	idx uint8
	ok  bool
}

// NoTemporalIndex marks a frame of a stream without temporal layering.
var NoTemporalIndex = TemporalIndex{}

// NewTemporalIndex returns a set temporal index.
func NewTemporalIndex(idx uint8) TemporalIndex {
	return TemporalIndex{idx: idx, ok: true}
}

// Get returns the index and whether it is set.
func (t TemporalIndex) Get() (uint8, bool) {
	return t.idx, t.ok
}

// Within reports whether a frame with this index is counted when looking at
// all frames up to and including layer.
func (t TemporalIndex) Within(layer int) bool {
	if !t.ok {
		return true
	}
	return int(t.idx) <= layer
}

func (t TemporalIndex) String() string {
	if !t.ok {
		return "none"
	}
	return fmt.Sprintf("T%d", t.idx)
}

// StreamDescriptor describes one simulcast stream.
type StreamDescriptor struct {
	Width                  int    `mapstructure:"width"`
	Height                 int    `mapstructure:"height"`
	MaxBitrateKbps         uint32 `mapstructure:"maxbitrate"`
	NumberOfTemporalLayers int    `mapstructure:"temporallayers"`
	QualityCeiling         uint32 `mapstructure:"qpmax"`
	// Strategy optionally overrides the configuration wide temporal layer
	// strategy for this stream.
	Strategy string `mapstructure:"strategy"`
}

// Frame is a raw input frame. Pixel data is opaque to the sender.
type Frame struct {
	Width       int
	Height      int
	CaptureTime time.Time
	Data        []byte
}

// EncodedFrame is produced once per stream for every encoded input frame and
// handed to the transport. Err is set when the encoder rejected the frame.
type EncodedFrame struct {
	StreamIndex   int
	TemporalIndex TemporalIndex
	FrameType     FrameType
	PayloadSize   int
	Payload       []byte
	CaptureTime   time.Time
	Err           error
}
