package stream

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the pipeline's counters, exported as a Prometheus registry.
// The atomics are updated from the pipeline loop; the gauges read them
// lazily at scrape time.
type Metrics struct {
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64 // consumer channel full
	DetectorErrors  atomic.Uint64
	FramesRecorded  atomic.Uint64
	FPSTimes1000    atomic.Uint64 // measured FPS * 1000

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	gauge := func(name, help string, value func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help}, value))
	}
	gauge("roadsight_frames_processed_total", "Total frames run through detection and compositing",
		func() float64 { return float64(m.FramesProcessed.Load()) })
	gauge("roadsight_frames_dropped_total", "Total frames dropped because the consumer was not keeping up",
		func() float64 { return float64(m.FramesDropped.Load()) })
	gauge("roadsight_detector_errors_total", "Total per-frame detector failures",
		func() float64 { return float64(m.DetectorErrors.Load()) })
	gauge("roadsight_frames_recorded_total", "Total frames written to the recorder",
		func() float64 { return float64(m.FramesRecorded.Load()) })
	gauge("roadsight_fps", "Measured frames per second over the last second",
		func() float64 { return float64(m.FPSTimes1000.Load()) / 1000 })
	return m
}

func (m *Metrics) SetFPS(fps float64) {
	m.FPSTimes1000.Store(uint64(fps * 1000))
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
