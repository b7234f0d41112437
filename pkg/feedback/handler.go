// Package feedback maps receiver feedback onto sender operations: key frame
// requests, loss, round trip time and the available bitrate.
package feedback

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-logr/logr"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/rtcp"
)

// Logger is an implementation of logr.Logger. If is not provided - will be turned off.
var Logger logr.Logger = logr.Discard()

// Target receives the operations feedback maps to. *sender.VideoSender is
// one.
type Target interface {
	IntraFrameRequest(stream int) error
	SetChannelParameters(bitrateBps uint32, lossRate uint8, rtt time.Duration) error
}

// Handler turns RTCP and bandwidth estimates into sender calls. Channel
// parameters are forwarded only once a bitrate is known.
type Handler struct {
	sync.Mutex
	target Target
	clock  clock.Clock
	ssrcs  map[uint32]int

	bitrateBps  uint32
	haveBitrate bool
	lossRate    uint8
	rtt         time.Duration
}

// NewHandler returns a handler for streams sent with the given SSRCs, in
// stream index order.
func NewHandler(target Target, clk clock.Clock, ssrcs []uint32) *Handler {
	if clk == nil {
		clk = clock.New()
	}
	h := &Handler{
		target: target,
		clock:  clk,
	}
	h.SetSSRCs(ssrcs)
	return h
}

// SetSSRCs replaces the SSRCs of the streams, in stream index order. Peer
// connections assign them only once their tracks exist.
func (h *Handler) SetSSRCs(ssrcs []uint32) {
	h.Lock()
	defer h.Unlock()
	h.ssrcs = make(map[uint32]int, len(ssrcs))
	for i, ssrc := range ssrcs {
		h.ssrcs[ssrc] = i
	}
}

// HandleRTCP parses a compound RTCP packet and handles every packet in it.
func (h *Handler) HandleRTCP(raw []byte) error {
	pkts, err := rtcp.Unmarshal(raw)
	if err != nil {
		return err
	}
	return h.HandlePackets(pkts)
}

// HandlePackets handles already parsed RTCP packets. The first sender error
// is returned after every packet was looked at.
func (h *Handler) HandlePackets(pkts []rtcp.Packet) error {
	h.Lock()
	defer h.Unlock()

	var (
		firstErr error
		changed  bool
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, pkt := range pkts {
		switch pkt := pkt.(type) {
		case *rtcp.PictureLossIndication:
			keep(h.requestKeyFrame(pkt.MediaSSRC))
		case *rtcp.FullIntraRequest:
			for _, entry := range pkt.FIR {
				keep(h.requestKeyFrame(entry.SSRC))
			}
		case *rtcp.ReceiverReport:
			changed = h.onReports(pkt.Reports) || changed
		case *rtcp.SenderReport:
			changed = h.onReports(pkt.Reports) || changed
		case *rtcp.ReceiverEstimatedMaximumBitrate:
			h.bitrateBps, h.haveBitrate = uint32(pkt.Bitrate), true
			changed = true
		}
	}
	if changed {
		keep(h.apply())
	}
	return firstErr
}

// OnTargetBitrate applies a bandwidth estimate in bps.
func (h *Handler) OnTargetBitrate(bitrate int) {
	if bitrate <= 0 {
		return
	}
	h.Lock()
	defer h.Unlock()
	h.bitrateBps, h.haveBitrate = uint32(bitrate), true
	if err := h.apply(); err != nil {
		Logger.Error(err, "apply target bitrate", "bps", bitrate)
	}
}

// AttachBandwidthEstimator follows the target bitrate of a send side
// bandwidth estimator.
func (h *Handler) AttachBandwidthEstimator(bwe cc.BandwidthEstimator) {
	bwe.OnTargetBitrateChange(h.OnTargetBitrate)
	h.OnTargetBitrate(bwe.GetTargetBitrate())
}

func (h *Handler) requestKeyFrame(ssrc uint32) error {
	stream, ok := h.ssrcs[ssrc]
	if !ok {
		Logger.V(1).Info("key frame request for unknown ssrc", "ssrc", ssrc)
		return nil
	}
	return h.target.IntraFrameRequest(stream)
}

func (h *Handler) onReports(reports []rtcp.ReceptionReport) bool {
	var (
		found bool
		loss  uint8
		rtt   time.Duration
	)
	now := h.clock.Now()
	for _, r := range reports {
		if _, ok := h.ssrcs[r.SSRC]; !ok {
			continue
		}
		found = true
		if r.FractionLost > loss {
			loss = r.FractionLost
		}
		if d, ok := roundTripTime(now, r.LastSenderReport, r.Delay); ok && d > rtt {
			rtt = d
		}
	}
	if !found {
		return false
	}
	h.lossRate = loss
	if rtt > 0 {
		h.rtt = rtt
	}
	return true
}

func (h *Handler) apply() error {
	if !h.haveBitrate {
		return nil
	}
	return h.target.SetChannelParameters(h.bitrateBps, h.lossRate, h.rtt)
}
