package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// APIOptions configures the webrtc API peers are created from.
type APIOptions struct {
	// Interceptors run in front of the default NACK, RTCP report and
	// transport wide congestion control interceptors.
	Interceptors []interceptor.Factory
	// Loopback allows ICE candidates on loopback interfaces.
	Loopback bool
}

// NewAPI returns a webrtc API with the default codecs and interceptors plus
// o.Interceptors. Outgoing packets carry the transport wide sequence number
// extension so a send side bandwidth estimator gets feedback.
func NewAPI(o APIOptions) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	for _, f := range o.Interceptors {
		i.Add(f)
	}
	if err := webrtc.ConfigureTWCCHeaderExtensionSender(m, i); err != nil {
		return nil, err
	}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(o.Loopback)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	), nil
}

// Answerer completes an offer/answer exchange. *Sink is one.
type Answerer interface {
	Answer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

// Peer sends every stream as its own track over one peer connection. RTCP
// for a track is read through the interceptor chain, where feedback
// interceptors pick it up.
type Peer struct {
	pc      *webrtc.PeerConnection
	tracks  []*webrtc.TrackLocalStaticRTP
	senders []*webrtc.RTPSender

	connected chan struct{}
	once      sync.Once
	wg        sync.WaitGroup
}

// NewPeer adds one codec track per stream to a new peer connection.
func NewPeer(api *webrtc.API, codec string, streams int) (*Peer, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}
	p := &Peer{pc: pc, connected: make(chan struct{})}
	for i := 0; i < streams; i++ {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: codec, ClockRate: videoClockRate},
			fmt.Sprintf("video-%d", i), "ion-sender",
		)
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		sender, err := pc.AddTrack(track)
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		p.tracks = append(p.tracks, track)
		p.senders = append(p.senders, sender)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		Logger.V(1).Info("peer connection state changed", "state", state.String())
		if state == webrtc.PeerConnectionStateConnected {
			p.once.Do(func() { close(p.connected) })
		}
	})
	return p, nil
}

// Writers returns the packet writer of every stream, in stream order.
func (p *Peer) Writers() []PacketWriter {
	out := make([]PacketWriter, len(p.tracks))
	for i, t := range p.tracks {
		out[i] = t
	}
	return out
}

// SSRCs returns the SSRC the peer connection sends each stream with.
func (p *Peer) SSRCs() []uint32 {
	out := make([]uint32, len(p.senders))
	for i, s := range p.senders {
		if enc := s.GetParameters().Encodings; len(enc) > 0 {
			out[i] = uint32(enc[0].SSRC)
		}
	}
	return out
}

// Connect offers the tracks to remote and waits until the connection is up.
func (p *Peer) Connect(ctx context.Context, remote Answerer) error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err = p.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, err := remote.Answer(*p.pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	if err = p.pc.SetRemoteDescription(answer); err != nil {
		return err
	}
	for _, s := range p.senders {
		p.wg.Add(1)
		go p.readRTCP(s)
	}

	select {
	case <-p.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readRTCP drains a sender's RTCP so that interceptors see it.
func (p *Peer) readRTCP(s *webrtc.RTPSender) {
	defer p.wg.Done()
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.Read(buf); err != nil {
			return
		}
	}
}

// Close closes the peer connection and waits for the RTCP readers.
func (p *Peer) Close() error {
	err := p.pc.Close()
	p.wg.Wait()
	return err
}

// Sink receives a Peer's tracks the way a remote viewer would: it answers
// the offer, reads every track and asks for key frames at a fixed interval.
type Sink struct {
	pc       *webrtc.PeerConnection
	interval time.Duration
	packets  atomic.Uint64

	mu    sync.Mutex
	ssrcs []uint32

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSink returns a sink on a new peer connection. A zero keyFrameInterval
// never asks for key frames.
func NewSink(api *webrtc.API, keyFrameInterval time.Duration) (*Sink, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}
	s := &Sink{pc: pc, interval: keyFrameInterval, done: make(chan struct{})}
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.mu.Lock()
		s.ssrcs = append(s.ssrcs, uint32(track.SSRC()))
		s.mu.Unlock()
		go s.consume(track)
	})
	if keyFrameInterval > 0 {
		s.wg.Add(1)
		go s.requestKeyFrames()
	}
	return s, nil
}

// Answer implements Answerer.
func (s *Sink) Answer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err = s.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	<-gathered
	desc := s.pc.LocalDescription()
	if desc == nil {
		return webrtc.SessionDescription{}, errors.New("no local description")
	}
	return *desc, nil
}

// Packets returns the number of RTP packets received on all tracks.
func (s *Sink) Packets() uint64 {
	return s.packets.Load()
}

// SSRCs returns the SSRCs of the tracks received so far.
func (s *Sink) SSRCs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.ssrcs...)
}

func (s *Sink) consume(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
		s.packets.Add(1)
	}
}

func (s *Sink) requestKeyFrames() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// one packet per track, compound packets reach every sender they name
			for _, ssrc := range s.SSRCs() {
				pli := &rtcp.PictureLossIndication{MediaSSRC: ssrc}
				if err := s.pc.WriteRTCP([]rtcp.Packet{pli}); err != nil {
					Logger.V(1).Info("key frame request not sent", "ssrc", ssrc, "err", err)
				}
			}
		}
	}
}

// Close stops asking for key frames and closes the peer connection.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.pc.Close()
}
