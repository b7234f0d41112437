package transport

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/workerpool"
	"github.com/pion/rtp"

	"github.com/pion/ion-sender/pkg/video"
)

// PacketWriter receives tagged packets. *webrtc.TrackLocalStaticRTP is one.
type PacketWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// AsyncDispatcher tags and writes encoded frames on a single worker, in the
// order they were encoded.
type AsyncDispatcher struct {
	pool    *workerpool.WorkerPool
	tagger  *RTPTagger
	writers []PacketWriter
	written atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewAsyncDispatcher writes packets of stream i to writers[i]. Frames of
// streams without a writer are dropped.
func NewAsyncDispatcher(tagger *RTPTagger, writers []PacketWriter) *AsyncDispatcher {
	return &AsyncDispatcher{
		pool:    workerpool.New(1),
		tagger:  tagger,
		writers: writers,
	}
}

// OnEncodedFrame queues f. It has the signature of a transport callback and
// never blocks on the writers.
func (d *AsyncDispatcher) OnEncodedFrame(f video.EncodedFrame) {
	if f.Err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pool.Submit(func() {
		d.write(f)
	})
}

func (d *AsyncDispatcher) write(f video.EncodedFrame) {
	if f.StreamIndex < 0 || f.StreamIndex >= len(d.writers) || d.writers[f.StreamIndex] == nil {
		return
	}
	pkt, err := d.tagger.Tag(f)
	if err != nil {
		Logger.Error(err, "tag frame", "stream", f.StreamIndex)
		return
	}
	if err := d.writers[f.StreamIndex].WriteRTP(pkt); err != nil {
		Logger.V(1).Info("write rtp failed", "stream", f.StreamIndex, "ssrc", pkt.SSRC, "err", err)
		return
	}
	d.written.Add(1)
}

// Written returns the number of packets handed to writers.
func (d *AsyncDispatcher) Written() uint64 {
	return d.written.Load()
}

// Close waits for queued frames to be written.
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.pool.StopWait()
}
