package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pion/ion-sender/pkg/transport"
	"github.com/pion/ion-sender/pkg/video"
)

func TestInterceptor_LoopbackKeyFrameRequests(t *testing.T) {
	const streams = 3
	target := &recordingTarget{}
	handler := NewHandler(target, nil, nil)

	api, err := transport.NewAPI(transport.APIOptions{
		Interceptors: []interceptor.Factory{&InterceptorFactory{Handler: handler}},
		Loopback:     true,
	})
	require.NoError(t, err)
	sinkAPI, err := transport.NewAPI(transport.APIOptions{Loopback: true})
	require.NoError(t, err)

	peer, err := transport.NewPeer(api, webrtc.MimeTypeVP8, streams)
	require.NoError(t, err)
	defer func() { assert.NoError(t, peer.Close()) }()
	handler.SetSSRCs(peer.SSRCs())

	sink, err := transport.NewSink(sinkAPI, 100*time.Millisecond)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, peer.Connect(ctx, sink))

	tagger, err := transport.NewRTPTagger(webrtc.MimeTypeVP8, 96, peer.SSRCs())
	require.NoError(t, err)
	d := transport.NewAsyncDispatcher(tagger, peer.Writers())
	defer d.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				for i := 0; i < streams; i++ {
					d.OnEncodedFrame(video.EncodedFrame{StreamIndex: i, Payload: make([]byte, 50), CaptureTime: now})
				}
			}
		}
	}()

	require.Eventually(t, func() bool {
		target.Lock()
		defer target.Unlock()
		seen := map[int]bool{}
		for _, stream := range target.keyFrames {
			seen[stream] = true
		}
		return len(seen) == streams
	}, 10*time.Second, 50*time.Millisecond)

	target.Lock()
	defer target.Unlock()
	for _, stream := range target.keyFrames {
		assert.True(t, stream >= 0 && stream < streams, "stream %d", stream)
	}
}
