package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pion/ion-sender/pkg/video"
)

var (
	framesEncoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "sender",
		Name:      "frames_encoded",
	}, []string{"stream", "type"})

	encodedBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "sender",
		Name:      "encoded_bytes",
	}, []string{"stream"})

	encodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "sender",
		Name:      "encode_failures",
	})

	rateUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "sender",
		Name:      "rate_updates",
	})

	channelUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: "sender",
		Name:      "channel_updates",
	})

	intraRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "sender",
		Name:      "intra_requests",
	}, []string{"stream"})

	inputFramerate = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "sender",
		Name:      "input_framerate",
	})

	layerTargetBitrate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "temporal",
		Name:      "target_bitrate_kbps",
	}, []string{"stream", "layer"})

	layerTargetFramerate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "temporal",
		Name:      "target_framerate",
	}, []string{"stream", "layer"})
)

func init() {
	prometheus.MustRegister(framesEncoded)
	prometheus.MustRegister(encodedBytes)
	prometheus.MustRegister(encodeFailures)
	prometheus.MustRegister(rateUpdates)
	prometheus.MustRegister(channelUpdates)
	prometheus.MustRegister(intraRequests)
	prometheus.MustRegister(inputFramerate)
	prometheus.MustRegister(layerTargetBitrate)
	prometheus.MustRegister(layerTargetFramerate)
}

// ObserveEncodedFrame counts a frame handed to the transport.
func ObserveEncodedFrame(f video.EncodedFrame) {
	if f.Err != nil {
		encodeFailures.Inc()
		return
	}
	stream := strconv.Itoa(f.StreamIndex)
	framesEncoded.WithLabelValues(stream, f.FrameType.String()).Inc()
	encodedBytes.WithLabelValues(stream).Add(float64(f.PayloadSize))
}

// ObserveRateUpdate counts a rate update forwarded to the encoder.
func ObserveRateUpdate() {
	rateUpdates.Inc()
}

// ObserveChannelUpdate counts a loss/rtt update forwarded to the encoder.
func ObserveChannelUpdate() {
	channelUpdates.Inc()
}

// ObserveIntraRequest counts an accepted key frame request.
func ObserveIntraRequest(stream int) {
	intraRequests.WithLabelValues(strconv.Itoa(stream)).Inc()
}

// SetInputFramerate publishes the latest framerate estimate.
func SetInputFramerate(fps float64) {
	inputFramerate.Set(fps)
}

// SetLayerTarget publishes the cumulative targets of one temporal layer.
func SetLayerTarget(stream, layer int, bitrateKbps uint32, framerateFps float64) {
	s, l := strconv.Itoa(stream), strconv.Itoa(layer)
	layerTargetBitrate.WithLabelValues(s, l).Set(float64(bitrateKbps))
	layerTargetFramerate.WithLabelValues(s, l).Set(framerateFps)
}
