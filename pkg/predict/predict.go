// Package predict drives batch prediction: run the detectors over an image
// or a directory of images, write annotated outputs and label files, and
// record the run in the history database.
package predict

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/draw"
	"github.com/roadsight/roadsight/pkg/historydb"
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/roadsight/roadsight/pkg/perfstats"
	"github.com/roadsight/roadsight/pkg/stream"
	"github.com/roadsight/roadsight/pkg/traffic"
)

// Notifier receives progress callbacks during a batch run. Implementations
// must be cheap; they're called from the processing loop. A nil Notifier is
// valid.
type Notifier interface {
	Progress(done, total int)
	ItemDone(item *ItemResult)
}

// Options for a batch run
type Options struct {
	// Output directory for annotated images. Created lazily, only once the
	// first write is about to happen, so a failed run leaves nothing behind.
	OutputDir string

	SaveImages bool
	SaveLabels bool

	DetectionParams *nn.DetectionParams
	RenderOptions   traffic.RenderOptions
	ClassNames      []string

	// Recorded in the history database. History may be nil to skip recording.
	History            *historydb.HistoryDB
	ModelPath          string
	SecondaryModelPath string

	Notifier Notifier
}

// ItemResult is the outcome for one input image
type ItemResult struct {
	SourcePath    string
	OutputPath    string // empty when SaveImages is off or the item failed
	LabelPath     string
	Detections    []nn.ObjectDetection
	Warnings      []string
	InferenceTime time.Duration
	Err           error // per-item failure; the run continues
}

// RunResult is the outcome of a whole run
type RunResult struct {
	Items     []*ItemResult
	NumFailed int
	OutputDir string
	Duration  time.Duration
}

// Runner executes batch predictions. One Runner per run configuration; not
// safe for concurrent use because the detectors aren't.
type Runner struct {
	log       logs.Log
	primary   nn.MultiTaskDetector
	secondary nn.ObjectDetector
	fuser     *traffic.Fuser
	comp      *draw.Compositor
	options   Options

	outputDirReady bool
	labelsDirReady bool
}

func NewRunner(log logs.Log, primary nn.MultiTaskDetector, secondary nn.ObjectDetector, options Options) *Runner {
	if options.DetectionParams == nil {
		options.DetectionParams = nn.NewDetectionParams()
	}
	return &Runner{
		log:       log,
		primary:   primary,
		secondary: secondary,
		fuser:     traffic.NewFuser(log, options.ClassNames, options.RenderOptions),
		comp:      draw.NewCompositor(draw.DefaultStyle()),
		options:   options,
	}
}

// Run predicts on a source path, which is either an image file or a
// directory of images. Failure to open the source at all is fatal;
// individual image failures are not.
func (r *Runner) Run(source string) (*RunResult, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("cannot open source %v: %w", source, err)
	}
	if info.IsDir() {
		return r.runOverFiles(source, historydb.SourceDirectory, r.listImages(source))
	}
	return r.runOverFiles(source, historydb.SourceImage, []string{source})
}

func (r *Runner) listImages(dir string) []string {
	src, err := stream.NewImageDirSource(dir)
	if err != nil {
		return nil
	}
	return src.Paths()
}

func (r *Runner) runOverFiles(source string, sourceType historydb.SourceType, files []string) (*RunResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %v", source)
	}
	start := time.Now()
	result := &RunResult{OutputDir: r.options.OutputDir}

	for i, path := range files {
		item := r.processOne(path)
		if item.Err != nil {
			r.log.Errorf("Prediction failed for %v: %v", path, item.Err)
			result.NumFailed++
		}
		result.Items = append(result.Items, item)
		if r.options.Notifier != nil {
			r.options.Notifier.ItemDone(item)
			r.options.Notifier.Progress(i+1, len(files))
		}
	}
	result.Duration = time.Since(start)

	r.log.Infof("Prediction run complete: %v images, %v failed, %v", len(files), result.NumFailed, result.Duration)
	r.recordHistory(source, sourceType, result)
	return result, nil
}

func (r *Runner) processOne(path string) *ItemResult {
	item := &ItemResult{SourcePath: path}

	img, err := stream.LoadImageRGB(path)
	if err != nil {
		item.Err = err
		return item
	}

	detectStart := time.Now()
	primary, tensor, err := r.primary.DetectScene(img, r.options.DetectionParams)
	if err != nil {
		item.Err = fmt.Errorf("primary detector: %w", err)
		return item
	}
	perfstats.Update(&perfstats.Stats.PrimaryDetectNanoseconds, time.Since(detectStart).Nanoseconds())

	var secondary []nn.ObjectDetection
	if r.secondary != nil {
		secondaryStart := time.Now()
		secondary, err = r.secondary.DetectObjects(img, r.options.DetectionParams)
		if err != nil {
			// The primary result is still worth keeping
			r.log.Warnf("Secondary detector failed for %v: %v", path, err)
			secondary = nil
		}
		perfstats.Update(&perfstats.Stats.SecondaryDetectNanoseconds, time.Since(secondaryStart).Nanoseconds())
		secondary = traffic.MergeDuplicateDetections(secondary, 0.85)
	}
	item.InferenceTime = time.Since(detectStart)

	width, height := img.Width, img.Height
	ann := r.fuser.Fuse(img, primary, tensor, secondary, r.options.DetectionParams)
	item.Detections = ann.Detections
	item.Warnings = ann.Warnings

	if r.options.SaveImages {
		final := r.comp.Composite(img, ann)
		outPath, err := r.saveImage(final, filepath.Base(path))
		if err != nil {
			item.Err = err
			return item
		}
		item.OutputPath = outPath
	}

	if r.options.SaveLabels {
		labelPath, err := r.saveLabels(ann.Detections, width, height, filepath.Base(path))
		if err != nil {
			item.Err = err
			return item
		}
		item.LabelPath = labelPath
	}
	return item
}

func (r *Runner) ensureOutputDir() error {
	if r.outputDirReady {
		return nil
	}
	if err := os.MkdirAll(r.options.OutputDir, 0770); err != nil {
		return fmt.Errorf("failed to create output directory %v: %w", r.options.OutputDir, err)
	}
	r.outputDirReady = true
	return nil
}

func (r *Runner) saveImage(img *cimg.Image, name string) (string, error) {
	if err := r.ensureOutputDir(); err != nil {
		return "", err
	}
	jpeg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(name)
	outPath := filepath.Join(r.options.OutputDir, name[:len(name)-len(ext)]+".jpg")
	if err := os.WriteFile(outPath, jpeg, 0644); err != nil {
		return "", err
	}
	return outPath, nil
}

func (r *Runner) saveLabels(detections []nn.ObjectDetection, width, height int, name string) (string, error) {
	if err := r.ensureOutputDir(); err != nil {
		return "", err
	}
	labelsDir := filepath.Join(r.options.OutputDir, "labels")
	if !r.labelsDirReady {
		if err := os.MkdirAll(labelsDir, 0770); err != nil {
			return "", err
		}
		r.labelsDirReady = true
	}
	labels := make([]nn.Label, 0, len(detections))
	for _, d := range detections {
		labels = append(labels, nn.MakeLabel(d, width, height))
	}
	ext := filepath.Ext(name)
	labelPath := filepath.Join(labelsDir, name[:len(name)-len(ext)]+".txt")
	if err := nn.SaveLabelFile(labelPath, labels); err != nil {
		return "", err
	}
	return labelPath, nil
}

func (r *Runner) recordHistory(source string, sourceType historydb.SourceType, result *RunResult) {
	if r.options.History == nil {
		return
	}
	numDetections := 0
	numWarnings := 0
	var inference time.Duration
	for _, item := range result.Items {
		numDetections += len(item.Detections)
		numWarnings += len(item.Warnings)
		inference += item.InferenceTime
	}
	rec := &historydb.Prediction{
		ModelPath:          r.options.ModelPath,
		SecondaryModelPath: r.options.SecondaryModelPath,
		SourcePath:         source,
		SourceType:         sourceType,
		ResultPath:         r.options.OutputDir,
		Success:            result.NumFailed == 0,
		InferenceMS:        inference.Milliseconds(),
		NumDetections:      numDetections,
		NumWarnings:        numWarnings,
		Params: dbh.MakeJSONField(historydb.PredictionParams{
			ConfidenceThreshold: r.options.DetectionParams.ConfidenceThreshold,
			MaskThreshold:       r.options.DetectionParams.MaskThreshold,
			ShowBoxes:           r.options.RenderOptions.ShowBoxes,
			ShowLabels:          r.options.RenderOptions.ShowLabels,
			ShowConfidence:      r.options.RenderOptions.ShowConfidence,
			SaveLabels:          r.options.SaveLabels,
		}),
	}
	if result.NumFailed > 0 {
		rec.Error = fmt.Sprintf("%v of %v images failed", result.NumFailed, len(result.Items))
	}
	if err := r.options.History.Add(rec); err != nil {
		r.log.Warnf("Failed to record prediction history: %v", err)
	}
}
