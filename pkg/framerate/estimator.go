// Package framerate measures the rate at which frames arrive from a source.
package framerate

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/deque"
)

// ErrInsufficientData is returned when fewer than two arrivals fall inside the
// requested window, a rate can not be computed from a single sample.
var ErrInsufficientData = errors.New("not enough frames to estimate framerate")

const defaultMaxWindow = 2 * time.Second

// Estimator is a sliding window counter of frame arrivals. It is not safe for
// concurrent use, callers serialize access.
type Estimator struct {
	clock     clock.Clock
	maxWindow time.Duration
	arrivals  *deque.Deque[time.Time]
	resetAt   time.Time
}

// New returns an estimator keeping at most maxWindow of history.
func New(clk clock.Clock, maxWindow time.Duration) *Estimator {
	if clk == nil {
		clk = clock.New()
	}
	if maxWindow <= 0 {
		maxWindow = defaultMaxWindow
	}
	return &Estimator{
		clock:     clk,
		maxWindow: maxWindow,
		arrivals:  deque.New[time.Time](),
		resetAt:   clk.Now(),
	}
}

// Observe records a frame arrival.
func (e *Estimator) Observe(ts time.Time) {
	if ts.Before(e.resetAt) {
		return
	}
	if e.arrivals.Len() > 0 && ts.Before(e.arrivals.Back()) {
		// out of order arrivals would break the window ordering
		ts = e.arrivals.Back()
	}
	e.arrivals.PushBack(ts)
	e.prune(ts)
}

// EstimateFps returns the arrival rate over the most recent window, counting
// the frame intervals between the oldest and newest arrival in the window.
func (e *Estimator) EstimateFps(window time.Duration) (float64, error) {
	if window <= 0 || window > e.maxWindow {
		window = e.maxWindow
	}
	now := e.clock.Now()
	e.prune(now)

	start := now.Add(-window)
	var (
		frames int
		oldest time.Time
		newest time.Time
	)
	for i := e.arrivals.Len() - 1; i >= 0; i-- {
		ts := e.arrivals.At(i)
		if ts.Before(start) {
			break
		}
		if frames == 0 {
			newest = ts
		}
		oldest = ts
		frames++
	}
	if frames < 2 {
		return 0, ErrInsufficientData
	}
	elapsed := newest.Sub(oldest)
	if elapsed <= 0 {
		return 0, ErrInsufficientData
	}
	return float64(frames-1) * 1000 / (float64(elapsed) / float64(time.Millisecond)), nil
}

// Reset drops all history and restarts window timing from now.
func (e *Estimator) Reset() {
	e.arrivals.Clear()
	e.resetAt = e.clock.Now()
}

// Len returns the number of arrivals currently retained.
func (e *Estimator) Len() int {
	return e.arrivals.Len()
}

func (e *Estimator) prune(now time.Time) {
	limit := now.Add(-e.maxWindow)
	for e.arrivals.Len() > 0 && e.arrivals.Front().Before(limit) {
		e.arrivals.PopFront()
	}
}
