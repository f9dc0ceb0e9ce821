package nnload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/nn"
)

// replayDetector plays back label files recorded from a previous run. The
// model directory holds model.json plus one .txt label file per frame;
// successive DetectObjects calls consume the files in name order, wrapping
// around at the end. Detections are scaled to the incoming image size.
type replayDetector struct {
	log    logs.Log
	config *nn.ModelConfig
	frames [][]nn.Label
	next   int
}

func newReplayDetector(log logs.Log, modelDir string, config *nn.ModelConfig) (nn.ObjectDetector, error) {
	entries, err := os.ReadDir(modelDir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.ToLower(filepath.Ext(e.Name())) == ".txt" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no label files in %v", modelDir)
	}
	sort.Strings(names)

	frames := make([][]nn.Label, 0, len(names))
	for _, name := range names {
		labels, nSkipped, err := nn.LoadLabelFile(filepath.Join(modelDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load label file %v: %w", name, err)
		}
		if nSkipped != 0 {
			log.Warnf("Skipped %v malformed lines in %v", nSkipped, name)
		}
		frames = append(frames, labels)
	}
	return &replayDetector{
		log:    log,
		config: config,
		frames: frames,
	}, nil
}

func (d *replayDetector) Close() {}

func (d *replayDetector) Config() *nn.ModelConfig {
	return d.config
}

func (d *replayDetector) DetectObjects(img *cimg.Image, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	labels := d.frames[d.next%len(d.frames)]
	d.next++
	threshold := params.ConfidenceThreshold
	if threshold == 0 {
		threshold = nn.DefaultConfidenceThreshold
	}
	detections := []nn.ObjectDetection{}
	for _, label := range labels {
		if label.Confidence < threshold {
			continue
		}
		detections = append(detections, label.ToDetection(img.Width, img.Height))
	}
	return detections, nil
}

func (d *replayDetector) DetectScene(img *cimg.Image, params *nn.DetectionParams) ([]nn.ObjectDetection, *nn.SegmentationTensor, error) {
	detections, err := d.DetectObjects(img, params)
	return detections, nil, err
}
