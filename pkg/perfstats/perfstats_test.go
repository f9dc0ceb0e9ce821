package perfstats

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpdate(t *testing.T) {
	var stat atomic.Uint64
	Update(&stat, 1000)
	require.EqualValues(t, 1000, stat.Load())

	// EMA moves slowly toward new samples
	Update(&stat, 2000)
	v := stat.Load()
	require.Greater(t, v, uint64(1000))
	require.Less(t, v, uint64(1100))
}

func TestAccumulator(t *testing.T) {
	a := NewAccumulator("detect")
	require.Equal(t, 0, a.Summarize().Samples)

	for i := 1; i <= 100; i++ {
		a.Add(time.Duration(i) * time.Millisecond)
	}
	s := a.Summarize()
	require.Equal(t, 100, s.Samples)
	require.InDelta(t, 50.5, s.MeanMS, 0.01)
	require.InDelta(t, 50, s.P50MS, 1.5)
	require.InDelta(t, 95, s.P95MS, 1.5)
	require.Contains(t, s.String(), "detect")
}

func TestAccumulatorWindow(t *testing.T) {
	a := NewAccumulator("x")
	for i := 0; i < 10000; i++ {
		a.Add(time.Millisecond)
	}
	s := a.Summarize()
	require.LessOrEqual(t, s.Samples, 4096)
	require.InDelta(t, 1.0, s.MeanMS, 0.001)
}
