package nn

// Package nn is the interface layer between roadsight and its neural networks.
// The networks themselves are external. An ObjectDetector wraps whatever runtime
// executes the model weights, and roadsight only ever sees boxes, confidences,
// class IDs, and (for the multi-task model) a raw segmentation tensor.

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/bmharper/cimg/v2"
)

const DefaultConfidenceThreshold = 0.25
const DefaultMaskThreshold = 0.5

// Parameters for a single detection run
type DetectionParams struct {
	ConfidenceThreshold float32 // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	MaskThreshold       float32 // Binarization threshold for segmentation channels. Zero value will use the default.
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MaskThreshold:       DefaultMaskThreshold,
	}
}

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// ObjectDetector is given an image, and returns zero or more detected objects.
// Implementations are not assumed to be safe for concurrent use: a detector
// handle is owned by one active stream or batch run at a time.
type ObjectDetector interface {
	// Close closes the detector (you MUST call this when finished, because the
	// model usually lives in a native runtime underneath)
	Close()

	// DetectObjects returns a list of objects detected in the image.
	// img is a 24-bit RGB image.
	DetectObjects(img *cimg.Image, params *DetectionParams) ([]ObjectDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// MultiTaskDetector is the primary perception model: in addition to boxes it
// produces a raw segmentation tensor (vehicle / drivable-area / lane channels).
// The tensor is an explicit second return value, so there is no hook or
// hidden side channel between detection and mask capture.
type MultiTaskDetector interface {
	ObjectDetector

	// DetectScene returns detected objects plus the raw segmentation output.
	// A nil tensor means the model produced no segmentation for this frame,
	// which callers must treat as "no mask available", not as an error.
	DetectScene(img *cimg.Image, params *DetectionParams) ([]ObjectDetection, *SegmentationTensor, error)
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "mtdetr", "yolov10n"
	Width        int      `json:"width"`        // eg 640
	Height       int      `json:"height"`       // eg 640
	Classes      []string `json:"classes"`      // eg ["Vehicle", "Drivable", "Lane"]
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, nil
}
