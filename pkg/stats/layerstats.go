// Package stats keeps per temporal layer statistics of the encoded output and
// exports sender metrics to Prometheus.
package stats

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pion/ion-sender/pkg/video"
)

type layerCounter struct {
	frames uint64
	bytes  uint64
}

type streamCounters struct {
	layers    map[uint8]*layerCounter
	unlayered layerCounter
}

// LayerStats accumulates encoded frames per stream and temporal layer since
// the last Reset. Frames without a temporal index count towards every
// cumulative layer.
type LayerStats struct {
	sync.RWMutex
	clock   clock.Clock
	since   time.Time
	streams map[int]*streamCounters
}

// NewLayerStats returns empty statistics starting now.
func NewLayerStats(clk clock.Clock) *LayerStats {
	if clk == nil {
		clk = clock.New()
	}
	return &LayerStats{
		clock:   clk,
		since:   clk.Now(),
		streams: make(map[int]*streamCounters),
	}
}

// OnEncodedFrame records f. Failed frames are ignored. It has the signature of
// a transport callback.
func (s *LayerStats) OnEncodedFrame(f video.EncodedFrame) {
	if f.Err != nil {
		return
	}
	s.Lock()
	defer s.Unlock()

	sc := s.streams[f.StreamIndex]
	if sc == nil {
		sc = &streamCounters{layers: make(map[uint8]*layerCounter)}
		s.streams[f.StreamIndex] = sc
	}
	c := &sc.unlayered
	if idx, ok := f.TemporalIndex.Get(); ok {
		if c = sc.layers[idx]; c == nil {
			c = &layerCounter{}
			sc.layers[idx] = c
		}
	}
	c.frames++
	c.bytes += uint64(f.PayloadSize)
}

// Reset drops everything recorded so far and restarts the interval.
func (s *LayerStats) Reset() {
	s.Lock()
	defer s.Unlock()
	s.streams = make(map[int]*streamCounters)
	s.since = s.clock.Now()
}

// Elapsed returns the length of the current interval.
func (s *LayerStats) Elapsed() time.Duration {
	s.RLock()
	defer s.RUnlock()
	return s.clock.Since(s.since)
}

// Frames returns the number of frames of stream with temporal index <= layer.
func (s *LayerStats) Frames(stream, layer int) uint64 {
	s.RLock()
	defer s.RUnlock()
	frames, _ := s.within(stream, layer)
	return frames
}

// FramerateWithinLayer returns the framerate of frames of stream with temporal
// index <= layer over the current interval.
func (s *LayerStats) FramerateWithinLayer(stream, layer int) float64 {
	s.RLock()
	defer s.RUnlock()
	elapsed := s.clock.Since(s.since).Seconds()
	if elapsed <= 0 {
		return 0
	}
	frames, _ := s.within(stream, layer)
	return float64(frames) / elapsed
}

// BitrateKbpsWithinLayer returns the bitrate of frames of stream with temporal
// index <= layer over the current interval.
func (s *LayerStats) BitrateKbpsWithinLayer(stream, layer int) float64 {
	s.RLock()
	defer s.RUnlock()
	elapsed := s.clock.Since(s.since).Seconds()
	if elapsed <= 0 {
		return 0
	}
	_, bytes := s.within(stream, layer)
	return float64(bytes) * 8 / 1000 / elapsed
}

func (s *LayerStats) within(stream, layer int) (frames, bytes uint64) {
	sc := s.streams[stream]
	if sc == nil {
		return 0, 0
	}
	frames, bytes = sc.unlayered.frames, sc.unlayered.bytes
	for idx, c := range sc.layers {
		if video.NewTemporalIndex(idx).Within(layer) {
			frames += c.frames
			bytes += c.bytes
		}
	}
	return frames, bytes
}
