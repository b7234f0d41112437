// Package encoder provides encoders for the sender that need no codec
// library.
package encoder

import (
	"math"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/pion/ion-sender/pkg/sender"
	"github.com/pion/ion-sender/pkg/temporal"
	"github.com/pion/ion-sender/pkg/video"
)

// Logger is an implementation of logr.Logger. If is not provided - will be turned off.
var Logger logr.Logger = logr.Discard()

// Result codes reported through *sender.EncodeError.
const (
	CodeParameter     = -4
	CodeUninitialized = -7
)

// Synthetic emits frames whose sizes follow the layer allocation it is given,
// so that the encoded output carries exactly the targeted rates. It never
// looks at pixels.
type Synthetic struct {
	sync.Mutex
	settings    sender.CodecSettings
	initialized bool
	cb          sender.EncodeCompleteCallback

	bitrateBps   uint32
	framerateFps uint32
	lossRate     uint8
	rtt          time.Duration

	failNext error
	encoded  uint64
}

// NewSynthetic returns an uninitialized encoder.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

func (e *Synthetic) InitEncode(settings sender.CodecSettings) error {
	e.Lock()
	defer e.Unlock()
	if len(settings.Streams) == 0 {
		return &sender.EncodeError{Op: "InitEncode", Code: CodeParameter}
	}
	e.settings = settings
	e.initialized = true
	e.bitrateBps = settings.StartBitrateKbps * 1000
	e.framerateFps = settings.MaxFramerate
	Logger.V(1).Info("synthetic encoder initialized", "codec", settings.MimeType, "streams", len(settings.Streams))
	return nil
}

func (e *Synthetic) RegisterEncodeCompleteCallback(cb sender.EncodeCompleteCallback) {
	e.Lock()
	defer e.Unlock()
	e.cb = cb
}

// Encode emits one frame per stream through the registered callback.
func (e *Synthetic) Encode(frame *video.Frame, frameTypes []video.FrameType, layers []sender.StreamLayers) error {
	e.Lock()
	if !e.initialized {
		e.Unlock()
		return &sender.EncodeError{Op: "Encode", Code: CodeUninitialized}
	}
	if n := len(e.settings.Streams); len(frameTypes) != n || len(layers) != n {
		e.Unlock()
		return &sender.EncodeError{Op: "Encode", Code: CodeParameter}
	}
	if err := e.failNext; err != nil {
		e.failNext = nil
		e.Unlock()
		return err
	}
	e.encoded++
	cb := e.cb
	e.Unlock()

	if cb == nil {
		return nil
	}
	captured := time.Now()
	if frame != nil {
		captured = frame.CaptureTime
	}
	for i := range layers {
		size := frameSize(layers[i].Allocation, layers[i].TemporalIndex)
		cb(video.EncodedFrame{
			StreamIndex:   i,
			TemporalIndex: layers[i].TemporalIndex,
			FrameType:     frameTypes[i],
			PayloadSize:   size,
			Payload:       make([]byte, size),
			CaptureTime:   captured,
		})
	}
	return nil
}

func (e *Synthetic) SetRates(bitrateBps, framerateFps uint32) error {
	e.Lock()
	defer e.Unlock()
	if !e.initialized {
		return &sender.EncodeError{Op: "SetRates", Code: CodeUninitialized}
	}
	e.bitrateBps, e.framerateFps = bitrateBps, framerateFps
	return nil
}

func (e *Synthetic) SetChannelParameters(lossRate uint8, rtt time.Duration) error {
	e.Lock()
	defer e.Unlock()
	if !e.initialized {
		return &sender.EncodeError{Op: "SetChannelParameters", Code: CodeUninitialized}
	}
	e.lossRate, e.rtt = lossRate, rtt
	return nil
}

func (e *Synthetic) Release() error {
	e.Lock()
	defer e.Unlock()
	e.initialized = false
	return nil
}

// FailNextEncode makes the next Encode return err.
func (e *Synthetic) FailNextEncode(err error) {
	e.Lock()
	defer e.Unlock()
	e.failNext = err
}

// Rates returns the last rates applied.
func (e *Synthetic) Rates() (bitrateBps, framerateFps uint32) {
	e.Lock()
	defer e.Unlock()
	return e.bitrateBps, e.framerateFps
}

// ChannelParameters returns the last channel conditions applied.
func (e *Synthetic) ChannelParameters() (lossRate uint8, rtt time.Duration) {
	e.Lock()
	defer e.Unlock()
	return e.lossRate, e.rtt
}

// Encoded returns the number of accepted Encode calls.
func (e *Synthetic) Encoded() uint64 {
	e.Lock()
	defer e.Unlock()
	return e.encoded
}

// frameSize is the per frame share of the bitrate its layer adds on top of the
// layer below. Unlayered frames carry the whole stream budget.
func frameSize(a temporal.Allocation, idx video.TemporalIndex) int {
	if len(a.Layers) == 0 {
		return 0
	}
	t, ok := idx.Get()
	if !ok {
		top := a.Layers[len(a.Layers)-1]
		return bytesPerFrame(float64(top.BitrateKbps), top.FramerateFps)
	}
	layer, ok := a.Layer(int(t))
	if !ok {
		return 0
	}
	bitrate, fps := float64(layer.BitrateKbps), layer.FramerateFps
	if t > 0 {
		below := a.Layers[t-1]
		if fps-below.FramerateFps > 0 {
			bitrate -= float64(below.BitrateKbps)
			fps -= below.FramerateFps
		}
	}
	return bytesPerFrame(bitrate, fps)
}

func bytesPerFrame(kbps, fps float64) int {
	if fps <= 0 || kbps <= 0 {
		return 0
	}
	return int(math.Round(kbps * 1000 / 8 / fps))
}
