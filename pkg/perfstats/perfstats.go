// Package perfstats is a single place where we record the performance of the
// per-frame pipeline stages, so that different models and hardware are easy
// to compare.
package perfstats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

type PerfStats struct {
	PrimaryDetectNanoseconds   atomic.Uint64
	SecondaryDetectNanoseconds atomic.Uint64
	FuseNanoseconds            atomic.Uint64
	CompositeNanoseconds       atomic.Uint64
}

var Stats = PerfStats{}

// Update folds a new sample into a stat as an exponential moving average.
// We don't bother about strict correctness here, with CompareAndSwap,
// because this is just sampled stats, and it's OK to miss one or two samples.
func Update(stat *atomic.Uint64, value int64) {
	vu := uint64(value)
	if stat.Load() == 0 {
		stat.Store(vu)
	} else {
		stat.Store((stat.Load()*63 + vu) >> 6)
	}
}

func (s *PerfStats) String() string {
	b := &strings.Builder{}
	ms := func(stat *atomic.Uint64) float64 {
		return float64(stat.Load()) / 1e6
	}
	fmt.Fprintf(b, "primary detect: %.2f ms, ", ms(&s.PrimaryDetectNanoseconds))
	fmt.Fprintf(b, "secondary detect: %.2f ms, ", ms(&s.SecondaryDetectNanoseconds))
	fmt.Fprintf(b, "fuse: %.2f ms, ", ms(&s.FuseNanoseconds))
	fmt.Fprintf(b, "composite: %.2f ms", ms(&s.CompositeNanoseconds))
	return b.String()
}

// Accumulator keeps a bounded window of duration samples and summarizes them
// with percentiles. Safe for concurrent use.
type Accumulator struct {
	Name string

	lock    sync.Mutex
	samples []float64 // milliseconds
	maxLen  int
}

func NewAccumulator(name string) *Accumulator {
	return &Accumulator{
		Name:   name,
		maxLen: 4096,
	}
}

func (a *Accumulator) Add(d time.Duration) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if len(a.samples) >= a.maxLen {
		// Drop the oldest half, keeps amortized cost constant
		a.samples = append(a.samples[:0], a.samples[a.maxLen/2:]...)
	}
	a.samples = append(a.samples, float64(d.Nanoseconds())/1e6)
}

type Summary struct {
	Name    string  `json:"name"`
	Samples int     `json:"samples"`
	MeanMS  float64 `json:"meanMS"`
	P50MS   float64 `json:"p50MS"`
	P95MS   float64 `json:"p95MS"`
	P99MS   float64 `json:"p99MS"`
}

func (a *Accumulator) Summarize() Summary {
	a.lock.Lock()
	sorted := make([]float64, len(a.samples))
	copy(sorted, a.samples)
	a.lock.Unlock()

	s := Summary{Name: a.Name, Samples: len(sorted)}
	if len(sorted) == 0 {
		return s
	}
	sort.Float64s(sorted)
	s.MeanMS = stat.Mean(sorted, nil)
	s.P50MS = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	s.P95MS = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	s.P99MS = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return s
}

func (s Summary) String() string {
	if s.Samples == 0 {
		return fmt.Sprintf("%v: no samples", s.Name)
	}
	return fmt.Sprintf("%v: mean %.2f ms, p50 %.2f ms, p95 %.2f ms, p99 %.2f ms (%v samples)",
		s.Name, s.MeanMS, s.P50MS, s.P95MS, s.P99MS, s.Samples)
}
