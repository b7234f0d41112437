package sender

import (
	"time"
)

// RateSetter receives the updates the gate lets through.
type RateSetter interface {
	SetRates(bitrateBps, framerateFps uint32) error
	SetChannelParameters(lossRate uint8, rtt time.Duration) error
}

type rateSnapshot struct {
	bitrateBps   uint32
	framerateFps uint32
}

type channelSnapshot struct {
	lossRate uint8
	rtt      time.Duration
}

// channelParameterGate forwards rate and channel condition updates only when
// they differ from what the encoder last accepted. The two kinds of update are
// deduplicated independently.
type channelParameterGate struct {
	target RateSetter

	rates      rateSnapshot
	ratesSet   bool
	channel    channelSnapshot
	channelSet bool
}

func newChannelParameterGate(target RateSetter) *channelParameterGate {
	return &channelParameterGate{target: target}
}

// ApplyBitrate forwards the rate pair unless it was already applied.
func (g *channelParameterGate) ApplyBitrate(bitrateBps, framerateFps uint32) (bool, error) {
	next := rateSnapshot{bitrateBps: bitrateBps, framerateFps: framerateFps}
	if g.ratesSet && g.rates == next {
		return false, nil
	}
	if err := g.target.SetRates(bitrateBps, framerateFps); err != nil {
		return false, err
	}
	g.rates, g.ratesSet = next, true
	return true, nil
}

// ApplyChannelConditions forwards loss and rtt unless both were already
// applied.
func (g *channelParameterGate) ApplyChannelConditions(lossRate uint8, rtt time.Duration) (bool, error) {
	next := channelSnapshot{lossRate: lossRate, rtt: rtt}
	if g.channelSet && g.channel == next {
		return false, nil
	}
	if err := g.target.SetChannelParameters(lossRate, rtt); err != nil {
		return false, err
	}
	g.channel, g.channelSet = next, true
	return true, nil
}

// seed records the rates the encoder was initialized with.
func (g *channelParameterGate) seed(bitrateBps, framerateFps uint32) {
	g.rates = rateSnapshot{bitrateBps: bitrateBps, framerateFps: framerateFps}
	g.ratesSet = true
}

func (g *channelParameterGate) reset() {
	g.rates, g.ratesSet = rateSnapshot{}, false
	g.channel, g.channelSet = channelSnapshot{}, false
}
