// Package stream runs the per-frame perception loop on a frame source and
// publishes finished frames to a consumer without ever blocking on it.
package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/draw"
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/roadsight/roadsight/pkg/perfstats"
	"github.com/roadsight/roadsight/pkg/traffic"
)

// State of the pipeline. Transitions: Idle -> Running -> (Paused <-> Running)
// -> Stopped. Stopped is terminal.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%v)", int32(s))
}

// How long the loop sleeps between pause checks
const pausePollInterval = 100 * time.Millisecond

// Throttle for repeating per-frame error logs
const errorLogInterval = 15 * time.Second

// FrameSource produces RGB frames. NextFrame returns io.EOF when the source
// is exhausted; live sources never do.
type FrameSource interface {
	NextFrame() (*cimg.Image, error)
	Close() error
}

// FrameResult is one finished frame. Immutable once published.
type FrameResult struct {
	Frame      *cimg.Image // composited, including banners
	FrameIndex int64
	FPS        float64
	Detections []nn.ObjectDetection
	Warnings   []string
}

// Options for a Pipeline
type PipelineOptions struct {
	DetectionParams *nn.DetectionParams
	RenderOptions   traffic.RenderOptions
	ClassNames      []string // primary model class names

	// RecordPath is the base path (no extension) for a recording. Empty
	// disables recording.
	RecordPath      string
	WriterFactories []WriterFactory

	// Capacity of the results channel. Frames are dropped when full.
	ResultBuffer int
}

func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		DetectionParams: nn.NewDetectionParams(),
		RenderOptions:   traffic.DefaultRenderOptions(),
		WriterFactories: DefaultWriterFactories(),
		ResultBuffer:    32,
	}
}

// Pipeline pulls frames from a source, runs both detectors, fuses and
// composites, and publishes FrameResults. The consumer reads Results() or
// polls LatestFrame(); a slow consumer loses frames, it never stalls the
// loop.
type Pipeline struct {
	Log logs.Log

	source    nn.MultiTaskDetector
	frames    FrameSource
	secondary nn.ObjectDetector
	fuser     *traffic.Fuser
	comp      *draw.Compositor
	options   PipelineOptions
	metrics   *Metrics
	frameTime *perfstats.Accumulator

	state         atomic.Int32
	paused        atomic.Bool
	mustStop      atomic.Bool
	looperStopped chan bool
	results       chan *FrameResult

	latestLock sync.Mutex
	latest     *FrameResult

	// recordPath is the requested recording base path ("" = not recording).
	// Written by StartRecording/StopRecording, read by the worker, which owns
	// the writer itself exclusively.
	recordLock      sync.Mutex
	recordPath      string
	recorder        *Recorder
	recorderBase    string // recordPath the open writer was created for
	recordingFailed bool

	lastErrorLog  time.Time
	lastErrorText string
}

// NewPipeline wires a pipeline in Idle state. primary must not be nil;
// secondary may be nil to run the multi-task model alone.
func NewPipeline(log logs.Log, frames FrameSource, primary nn.MultiTaskDetector, secondary nn.ObjectDetector, options PipelineOptions) *Pipeline {
	if options.DetectionParams == nil {
		options.DetectionParams = nn.NewDetectionParams()
	}
	if options.WriterFactories == nil {
		options.WriterFactories = DefaultWriterFactories()
	}
	if options.ResultBuffer <= 0 {
		options.ResultBuffer = 32
	}
	p := &Pipeline{
		Log:       log,
		source:    primary,
		frames:    frames,
		secondary: secondary,
		fuser:     traffic.NewFuser(log, options.ClassNames, options.RenderOptions),
		comp:      draw.NewCompositor(draw.DefaultStyle()),
		options:   options,
		metrics:   NewMetrics(),
		frameTime: perfstats.NewAccumulator("frame"),
		results:   make(chan *FrameResult, options.ResultBuffer),
	}
	p.state.Store(int32(StateIdle))
	p.recordPath = options.RecordPath
	return p
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Results is the frame feed. Closed when the loop exits.
func (p *Pipeline) Results() <-chan *FrameResult {
	return p.results
}

// LatestFrame returns the most recently finished frame, or nil before the
// first one. Unlike Results, this never misses the newest frame.
func (p *Pipeline) LatestFrame() *FrameResult {
	p.latestLock.Lock()
	defer p.latestLock.Unlock()
	return p.latest
}

func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// FrameTimeSummary summarizes total per-frame processing time, from detection
// through compositing, over the recent sample window.
func (p *Pipeline) FrameTimeSummary() perfstats.Summary {
	return p.frameTime.Summarize()
}

// Start launches the loop. Only valid from Idle.
func (p *Pipeline) Start() error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("cannot start pipeline from state %v", p.State())
	}
	p.mustStop.Store(false)
	p.looperStopped = make(chan bool)
	go p.loop()
	return nil
}

// Pause suspends frame processing. Idempotent; a no-op unless Running.
func (p *Pipeline) Pause() {
	if p.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		p.paused.Store(true)
		p.Log.Infof("Pipeline paused")
	}
}

// Resume continues after Pause. Idempotent; a no-op unless Paused.
func (p *Pipeline) Resume() {
	if p.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		p.paused.Store(false)
		p.Log.Infof("Pipeline resumed")
	}
}

// StartRecording begins recording composited (pre-banner) frames to path.
// Valid only while Running or Paused. The writer opens on the next processed
// frame, because the frame size isn't known until then.
func (p *Pipeline) StartRecording(path string) error {
	state := p.State()
	if state != StateRunning && state != StatePaused {
		return fmt.Errorf("cannot start recording from state %v", state)
	}
	p.recordLock.Lock()
	defer p.recordLock.Unlock()
	p.recordPath = path
	p.recordingFailed = false
	return nil
}

// StopRecording stops an active recording. The worker closes the writer at
// the next iteration boundary; a no-op when not recording.
func (p *Pipeline) StopRecording() {
	p.recordLock.Lock()
	defer p.recordLock.Unlock()
	p.recordPath = ""
}

// IsRecording reports whether a recording writer is currently open
func (p *Pipeline) IsRecording() bool {
	p.recordLock.Lock()
	defer p.recordLock.Unlock()
	return p.recorder != nil
}

// Stop halts the loop and waits for it to exit. Valid from Running or
// Paused; pausing first is not required. After Stop returns, no further
// FrameResult is published and Results() is closed.
func (p *Pipeline) Stop() {
	state := p.State()
	if state != StateRunning && state != StatePaused {
		return
	}
	p.mustStop.Store(true)
	<-p.looperStopped
	p.state.Store(int32(StateStopped))
}

func (p *Pipeline) loop() {
	defer close(p.looperStopped)
	defer close(p.results)

	fps := NewFPSCounter()
	frameIndex := int64(0)

	for !p.mustStop.Load() {
		if p.paused.Load() {
			// Recording can be switched off while paused; the writer must
			// close then, not on the next processed frame
			p.recorderForFrame(0, 0)
			time.Sleep(pausePollInterval)
			continue
		}

		img, err := p.frames.NextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.Log.Infof("Frame source finished after %v frames", frameIndex)
				break
			}
			p.throttledError("Failed to read frame: %v", err)
			p.metrics.DetectorErrors.Add(1)
			continue
		}

		frameStart := time.Now()
		result := p.processFrame(img, frameIndex)
		p.frameTime.Add(time.Since(frameStart))

		now := time.Now()
		fps.Tick(now)
		result.FPS = fps.FPS(now)
		p.metrics.SetFPS(result.FPS)
		p.metrics.FramesProcessed.Add(1)
		frameIndex++

		p.latestLock.Lock()
		p.latest = result
		p.latestLock.Unlock()

		select {
		case p.results <- result:
		default:
			// Consumer not keeping up. Newest frames win (LatestFrame),
			// the channel feed just has a gap.
			p.metrics.FramesDropped.Add(1)
		}
	}

	p.recordLock.Lock()
	if p.recorder != nil {
		if err := p.recorder.Close(); err != nil {
			p.Log.Errorf("Failed to close recording: %v", err)
		}
		p.recorder = nil
	}
	p.recordLock.Unlock()
	if err := p.frames.Close(); err != nil {
		p.Log.Warnf("Failed to close frame source: %v", err)
	}
}

// processFrame runs detection, fusion, compositing, and recording for one
// frame. Detector failures degrade to an unannotated frame.
func (p *Pipeline) processFrame(img *cimg.Image, frameIndex int64) *FrameResult {
	detectStart := time.Now()
	primary, tensor, err := p.source.DetectScene(img, p.options.DetectionParams)
	if err != nil {
		p.throttledError("Primary detector failed: %v", err)
		p.metrics.DetectorErrors.Add(1)
		primary, tensor = nil, nil
	}
	perfstats.Update(&perfstats.Stats.PrimaryDetectNanoseconds, time.Since(detectStart).Nanoseconds())
	var secondary []nn.ObjectDetection
	if p.secondary != nil {
		secondaryStart := time.Now()
		secondary, err = p.secondary.DetectObjects(img, p.options.DetectionParams)
		if err != nil {
			p.throttledError("Secondary detector failed: %v", err)
			p.metrics.DetectorErrors.Add(1)
			secondary = nil
		}
		perfstats.Update(&perfstats.Stats.SecondaryDetectNanoseconds, time.Since(secondaryStart).Nanoseconds())
		secondary = traffic.MergeDuplicateDetections(secondary, 0.85)
	}

	fuseStart := time.Now()
	ann := p.fuser.Fuse(img, primary, tensor, secondary, p.options.DetectionParams)
	perfstats.Update(&perfstats.Stats.FuseNanoseconds, time.Since(fuseStart).Nanoseconds())
	compositeStart := time.Now()
	p.comp.RenderOverlays(img, ann)

	// Recordings get the annotated frame, but not the banners, so the frame
	// size stays constant across the file
	if recorder := p.recorderForFrame(img.Width, img.Height); recorder != nil {
		if err := recorder.WriteFrame(img); err != nil {
			p.throttledError("Failed to write recording frame: %v", err)
		} else {
			p.metrics.FramesRecorded.Add(1)
		}
	}

	final := p.comp.RenderBanners(img, ann.Warnings, ann.InfoItems)
	perfstats.Update(&perfstats.Stats.CompositeNanoseconds, time.Since(compositeStart).Nanoseconds())

	return &FrameResult{
		Frame:      final,
		FrameIndex: frameIndex,
		Detections: ann.Detections,
		Warnings:   ann.Warnings,
	}
}

// recorderForFrame reconciles the open writer with the requested recording
// state, and returns the writer to use for this frame (nil when not
// recording). width 0 means no frame is available, so only closing happens.
// Worker only.
func (p *Pipeline) recorderForFrame(width, height int) *Recorder {
	p.recordLock.Lock()
	defer p.recordLock.Unlock()
	if p.recorder != nil && p.recordPath != p.recorderBase {
		if err := p.recorder.Close(); err != nil {
			p.Log.Errorf("Failed to close recording: %v", err)
		}
		p.Log.Infof("Recording stopped: %v", p.recorderBase)
		p.recorder = nil
	}
	if p.recordPath == "" || p.recordingFailed || width <= 0 {
		return p.recorder
	}
	if p.recorder == nil {
		r, err := NewRecorder(p.Log, p.options.WriterFactories, p.recordPath, width, height, DefaultRecordingFPS)
		if err != nil {
			// Non-fatal. The stream carries on without a recording.
			p.Log.Errorf("Recording disabled: %v", err)
			p.recordingFailed = true
			return nil
		}
		p.recorder = r
		p.recorderBase = p.recordPath
	}
	return p.recorder
}

// throttledError logs repeating errors at most once per interval, so a
// wedged detector doesn't flood the log at frame rate.
func (p *Pipeline) throttledError(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	now := time.Now()
	if text == p.lastErrorText && now.Sub(p.lastErrorLog) < errorLogInterval {
		return
	}
	p.lastErrorLog = now
	p.lastErrorText = text
	p.Log.Errorf("%v", text)
}
