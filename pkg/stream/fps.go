package stream

import (
	"math"
	"slices"
	"time"

	"github.com/bmharper/ringbuffer"
)

// FPSCounter measures throughput over a one second rolling window.
// Not safe for concurrent use; the pipeline loop owns it.
type FPSCounter struct {
	window time.Duration
	ticks  ringbuffer.RingP[time.Time]
}

func NewFPSCounter() *FPSCounter {
	return &FPSCounter{
		window: time.Second,
		ticks:  ringbuffer.NewRingP[time.Time](256),
	}
}

func (f *FPSCounter) Tick(now time.Time) {
	f.ticks.Add(now)
}

// FPS returns the number of ticks inside the window, scaled to per-second.
func (f *FPSCounter) FPS(now time.Time) float64 {
	cutoff := now.Add(-f.window)
	n := 0
	for i := 0; i < f.ticks.Len(); i++ {
		if f.ticks.Peek(i).After(cutoff) {
			n++
		}
	}
	return float64(n) / f.window.Seconds()
}

// Given a set of consecutive frame intervals, estimate the average frames per
// second of the source. Uses the median interval so that stalls (pause,
// detector hiccups) don't skew the estimate.
func EstimateFPS(frameIntervals []time.Duration) float64 {
	if len(frameIntervals) == 0 {
		return 10
	}
	sorted := make([]time.Duration, len(frameIntervals))
	copy(sorted, frameIntervals)
	slices.Sort(sorted)
	mid := sorted[len(sorted)/2]
	if mid == 0 {
		return 10
	}
	fps := float64(time.Second) / float64(mid)
	if fps >= 0.9 {
		return math.Round(fps)
	}
	// Below 1 FPS, round seconds-per-frame instead, for sources configured
	// at 1/2, 1/4 etc frames per second
	secondsPerFrame := 1.0 / fps
	return 1 / math.Round(secondsPerFrame)
}
