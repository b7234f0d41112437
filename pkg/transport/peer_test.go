package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pion/ion-sender/pkg/video"
)

type pliCounter struct {
	interceptor.NoOp
	mu   sync.Mutex
	plis map[uint32]int
}

func (c *pliCounter) count(ssrc uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plis[ssrc]
}

func (c *pliCounter) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return n, attr, err
		}
		pkts, err := rtcp.Unmarshal(b[:n])
		if err != nil {
			return n, attr, nil
		}
		c.mu.Lock()
		for _, pkt := range pkts {
			if pli, ok := pkt.(*rtcp.PictureLossIndication); ok {
				c.plis[pli.MediaSSRC]++
			}
		}
		c.mu.Unlock()
		return n, attr, nil
	})
}

type pliCounterFactory struct {
	counter *pliCounter
}

func (f *pliCounterFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return f.counter, nil
}

func connectLoopback(t *testing.T, streams int, keyFrameInterval time.Duration, extra ...interceptor.Factory) (*Peer, *Sink) {
	t.Helper()
	api, err := NewAPI(APIOptions{Interceptors: extra, Loopback: true})
	require.NoError(t, err)
	sinkAPI, err := NewAPI(APIOptions{Loopback: true})
	require.NoError(t, err)

	peer, err := NewPeer(api, webrtc.MimeTypeVP8, streams)
	require.NoError(t, err)
	sink, err := NewSink(sinkAPI, keyFrameInterval)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, sink.Close())
		assert.NoError(t, peer.Close())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, peer.Connect(ctx, sink))
	return peer, sink
}

// sendFrames queues one frame per stream every 20ms until the returned stop
// function is called.
func sendFrames(d *AsyncDispatcher, streams int) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				for i := 0; i < streams; i++ {
					d.OnEncodedFrame(video.EncodedFrame{
						StreamIndex:   i,
						TemporalIndex: video.NoTemporalIndex,
						FrameType:     video.FrameDelta,
						Payload:       make([]byte, 100),
						PayloadSize:   100,
						CaptureTime:   now,
					})
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
		d.Close()
	}
}

func TestPeer_Loopback(t *testing.T) {
	counter := &pliCounter{plis: map[uint32]int{}}
	peer, sink := connectLoopback(t, 2, 100*time.Millisecond, &pliCounterFactory{counter: counter})

	ssrcs := peer.SSRCs()
	require.Len(t, ssrcs, 2)
	assert.NotEqual(t, ssrcs[0], ssrcs[1])
	for _, ssrc := range ssrcs {
		assert.NotZero(t, ssrc)
	}
	tagger, err := NewRTPTagger(webrtc.MimeTypeVP8, 96, ssrcs)
	require.NoError(t, err)
	d := NewAsyncDispatcher(tagger, peer.Writers())
	stop := sendFrames(d, 2)
	defer stop()

	require.Eventually(t, func() bool {
		return sink.Packets() >= 20 && len(sink.SSRCs()) == 2
	}, 10*time.Second, 50*time.Millisecond)
	assert.ElementsMatch(t, ssrcs, sink.SSRCs())

	require.Eventually(t, func() bool {
		for _, ssrc := range ssrcs {
			if counter.count(ssrc) == 0 {
				return false
			}
		}
		return true
	}, 10*time.Second, 50*time.Millisecond)
}
