// Package sender drives a simulcast video encoder. It turns incoming frames
// into per stream encode requests, partitions the bitrate and framerate budget
// over every stream's temporal layers, and forwards channel feedback to the
// encoder without repeating itself.
package sender

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-logr/logr"

	"github.com/pion/ion-sender/pkg/framerate"
	"github.com/pion/ion-sender/pkg/stats"
	"github.com/pion/ion-sender/pkg/temporal"
	"github.com/pion/ion-sender/pkg/video"
)

// Logger is an implementation of logr.Logger. If is not provided - will be turned off.
var Logger logr.Logger = logr.Discard()

const defaultRateWindow = 2 * time.Second

// Options tune a VideoSender. The zero value is usable.
type Options struct {
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// RateWindow is the window the input framerate is measured over.
	RateWindow time.Duration
	// Logger defaults to the package Logger.
	Logger logr.Logger
}

type registration struct {
	config     SendConfiguration
	allocators []temporal.Allocator
}

// VideoSender is the sending side control core. Every exported method is safe
// for concurrent use. Transport callbacks run synchronously on the encode path
// and must not call back into the sender.
type VideoSender struct {
	mu         sync.Mutex
	encoder    Encoder
	clock      clock.Clock
	logger     logr.Logger
	rateWindow time.Duration

	reg       atomic.Pointer[registration]
	estimator *framerate.Estimator
	intra     *intraRequestScheduler
	gate      *channelParameterGate
	// framerate is the last good estimate, zero until one exists.
	framerate   float64
	budgetKbps  uint32
	frameCounts []uint64

	cbMu      sync.RWMutex
	onEncoded []func(video.EncodedFrame)
}

// NewVideoSender returns a sender driving enc. A send configuration must be
// registered before frames are accepted.
func NewVideoSender(enc Encoder, o Options) *VideoSender {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.RateWindow <= 0 {
		o.RateWindow = defaultRateWindow
	}
	if o.Logger.GetSink() == nil {
		o.Logger = Logger
	}
	s := &VideoSender{
		encoder:    enc,
		clock:      o.Clock,
		logger:     o.Logger,
		rateWindow: o.RateWindow,
		estimator:  framerate.New(o.Clock, o.RateWindow),
		intra:      newIntraRequestScheduler(0),
		gate:       newChannelParameterGate(enc),
	}
	enc.RegisterEncodeCompleteCallback(s.deliver)
	return s
}

// RegisterSendConfiguration validates c, initializes the encoder with it and
// makes it the active configuration. Pending key frame requests, the
// framerate history, the layer cadence and the channel snapshot start over.
// On error the previous configuration stays active.
func (s *VideoSender) RegisterSendConfiguration(c SendConfiguration) error {
	config, err := c.normalize()
	if err != nil {
		return err
	}
	allocators, err := config.allocators()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.InitEncode(config.codecSettings()); err != nil {
		s.logger.Error(err, "encoder rejected send configuration", "codec", config.Codec)
		return err
	}

	n := len(config.Streams)
	s.reg.Store(&registration{config: config, allocators: allocators})
	s.intra.Reset(n)
	s.estimator.Reset()
	s.framerate = 0
	s.frameCounts = make([]uint64, n)
	s.budgetKbps = config.StartBitrateKbps
	s.gate.reset()
	s.gate.seed(config.StartBitrateKbps*1000, config.MaxFramerate)

	s.logger.Info("send configuration registered",
		"codec", config.Codec,
		"streams", n,
		"start_kbps", config.StartBitrateKbps,
		"max_fps", config.MaxFramerate)
	return nil
}

// AddFrame encodes frame once for every configured stream. Encoder failures
// are not returned: they reach the transport callbacks as frames with Err
// set and the key frame requests of the failed frame stay pending.
func (s *VideoSender) AddFrame(frame *video.Frame) error {
	if frame == nil {
		return ErrNilFrame
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.reg.Load()
	if reg == nil {
		return ErrNoSendConfiguration
	}

	types, layers, err := s.encode(reg, frame)
	s.estimator.Observe(s.clock.Now())
	if err != nil {
		s.logger.Error(err, "encode failed")
		for i := range types {
			s.deliver(video.EncodedFrame{
				StreamIndex:   i,
				TemporalIndex: layers[i].TemporalIndex,
				FrameType:     types[i],
				CaptureTime:   frame.CaptureTime,
				Err:           err,
			})
		}
	}
	return nil
}

// encode hands the pending frame types and the current layer allocations to
// the encoder. frame is nil for encoders capturing on their own. On failure
// the key frame requests are restored and the cadence does not advance.
func (s *VideoSender) encode(reg *registration, frame *video.Frame) ([]video.FrameType, []StreamLayers, error) {
	types := s.intra.ConsumeFrameTypes()
	fps := s.currentFramerate(reg)
	budgets := splitBudget(s.budgetKbps, reg.config.Streams)

	layers := make([]StreamLayers, len(reg.allocators))
	next := make([]uint64, len(reg.allocators))
	for i, a := range reg.allocators {
		count := s.frameCounts[i]
		if types[i] == video.FrameKey {
			// key frames always start a new cadence on the base layer
			count = 0
		}
		alloc := a.Allocate(budgets[i], fps)
		layers[i] = StreamLayers{
			BitrateKbps:   budgets[i],
			Allocation:    alloc,
			TemporalIndex: alloc.TemporalIndex(count),
		}
		next[i] = count + 1
	}

	if err := s.encoder.Encode(frame, types, layers); err != nil {
		s.intra.restore(types)
		return types, layers, err
	}
	s.frameCounts = next
	return types, layers, nil
}

// Process measures the input framerate and, once a measurement exists, hands
// the current rates to the encoder if they changed. Without enough frames it
// does nothing.
func (s *VideoSender) Process() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.reg.Load()
	if reg == nil {
		return ErrNoSendConfiguration
	}

	fps, err := s.estimator.EstimateFps(s.rateWindow)
	if errors.Is(err, framerate.ErrInsufficientData) {
		return nil
	}
	if err != nil {
		return err
	}
	s.framerate = fps
	stats.SetInputFramerate(fps)
	s.publishTargets(reg)
	return s.applyRates(reg)
}

// IntraFrameRequest asks for a key frame on stream i with the next frame.
// Encoders with an internal source are asked to encode right away; their
// error is returned and the request stays pending.
func (s *VideoSender) IntraFrameRequest(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.intra.RequestKeyFrame(i); err != nil {
		return err
	}
	stats.ObserveIntraRequest(i)
	s.logger.V(1).Info("key frame requested", "stream", i)

	reg := s.reg.Load()
	if reg == nil || !reg.config.InternalSource {
		return nil
	}
	if _, _, err := s.encode(reg, nil); err != nil {
		s.logger.Error(err, "internal source encode failed", "stream", i)
		return err
	}
	return nil
}

// SetChannelParameters applies channel feedback: the available bitrate in bps,
// the loss rate as an RTCP fraction lost and the round trip time.
func (s *VideoSender) SetChannelParameters(bitrateBps uint32, lossRate uint8, rtt time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.reg.Load()
	if reg == nil {
		return ErrNoSendConfiguration
	}

	s.budgetKbps = bitrateBps / 1000
	if err := s.applyRates(reg); err != nil {
		return err
	}
	sent, err := s.gate.ApplyChannelConditions(lossRate, rtt)
	if err != nil {
		return err
	}
	if sent {
		stats.ObserveChannelUpdate()
		s.logger.V(1).Info("channel conditions updated", "loss", lossRate, "rtt", rtt)
	}
	s.publishTargets(reg)
	return nil
}

// Allocate returns the current layer allocation of stream i.
func (s *VideoSender) Allocate(i int) (temporal.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.reg.Load()
	if reg == nil {
		return temporal.Allocation{}, rangeError(i, 0)
	}
	if i < 0 || i >= len(reg.allocators) {
		return temporal.Allocation{}, rangeError(i, len(reg.allocators))
	}
	budgets := splitBudget(s.budgetKbps, reg.config.Streams)
	return reg.allocators[i].Allocate(budgets[i], s.currentFramerate(reg)), nil
}

// OnEncodedFrame registers a transport callback. Every callback sees every
// encoded stream frame in encode order.
func (s *VideoSender) OnEncodedFrame(fn func(video.EncodedFrame)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onEncoded = append(s.onEncoded, fn)
}

// SendConfiguration returns the active configuration with defaults applied.
func (s *VideoSender) SendConfiguration() (SendConfiguration, bool) {
	reg := s.reg.Load()
	if reg == nil {
		return SendConfiguration{}, false
	}
	c := reg.config
	c.Streams = append([]video.StreamDescriptor(nil), c.Streams...)
	return c, true
}

// Framerate returns the last input framerate estimate.
func (s *VideoSender) Framerate() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framerate, s.framerate > 0
}

// StreamCount returns the number of configured streams.
func (s *VideoSender) StreamCount() int {
	reg := s.reg.Load()
	if reg == nil {
		return 0
	}
	return len(reg.config.Streams)
}

// Close drops the active configuration and releases the encoder.
func (s *VideoSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reg.Swap(nil) == nil {
		return nil
	}
	s.intra.Reset(0)
	s.estimator.Reset()
	s.framerate = 0
	s.frameCounts = nil
	s.budgetKbps = 0
	s.gate.reset()
	return s.encoder.Release()
}

func (s *VideoSender) currentFramerate(reg *registration) float64 {
	if s.framerate > 0 {
		return s.framerate
	}
	return float64(reg.config.MaxFramerate)
}

func (s *VideoSender) applyRates(reg *registration) error {
	kbps := s.budgetKbps
	if limit := reg.config.MaxBitrateKbps(); kbps > limit {
		kbps = limit
	}
	fps := uint32(math.Round(s.currentFramerate(reg)))
	sent, err := s.gate.ApplyBitrate(kbps*1000, fps)
	if err != nil {
		return err
	}
	if sent {
		stats.ObserveRateUpdate()
		s.logger.V(1).Info("rates updated", "kbps", kbps, "fps", fps)
	}
	return nil
}

func (s *VideoSender) publishTargets(reg *registration) {
	budgets := splitBudget(s.budgetKbps, reg.config.Streams)
	fps := s.currentFramerate(reg)
	for i, a := range reg.allocators {
		for t, l := range a.Allocate(budgets[i], fps).Layers {
			stats.SetLayerTarget(i, t, l.BitrateKbps, l.FramerateFps)
		}
	}
}

func (s *VideoSender) deliver(f video.EncodedFrame) {
	stats.ObserveEncodedFrame(f)
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	for _, fn := range s.onEncoded {
		fn(f)
	}
}
