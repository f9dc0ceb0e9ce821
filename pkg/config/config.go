// Package config is the application configuration: model paths, output
// locations, and default prediction parameters. Loaded once at startup and
// treated as immutable afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roadsight/roadsight/pkg/nn"
)

type Config struct {
	// Directory of the multi-task model (model.json next to the weights)
	ModelPath string `json:"modelPath"`

	// Directory of the secondary general detector's model. Empty disables
	// the secondary detector.
	SecondaryModelPath string `json:"secondaryModelPath"`

	// Root directory for run outputs. Each run creates a subdirectory.
	OutputDir string `json:"outputDir"`

	// Subdirectory name for predictions inside OutputDir
	RunName string `json:"runName"`

	// Directory holding the history database
	HistoryDir string `json:"historyDir"`

	// Inference devices offered to the detector runtimes, in preference
	// order, eg ["cuda:0", "cpu"]. The first entry is the default.
	Devices []string `json:"devices"`

	ConfidenceThreshold float32 `json:"confidenceThreshold"`
	MaskThreshold       float32 `json:"maskThreshold"`

	ShowBoxes      bool `json:"showBoxes"`
	ShowLabels     bool `json:"showLabels"`
	ShowConfidence bool `json:"showConfidence"`

	// Write annotated output images
	SaveImages bool `json:"saveImages"`
	// Write YOLO-style label sidecar files into a labels/ subdirectory
	SaveLabels bool `json:"saveLabels"`
}

func Default() Config {
	return Config{
		ModelPath:           "models/mtdetr",
		OutputDir:           "runs",
		RunName:             "predict",
		HistoryDir:          "database",
		Devices:             []string{"cpu"},
		ConfidenceThreshold: nn.DefaultConfidenceThreshold,
		MaskThreshold:       nn.DefaultMaskThreshold,
		ShowBoxes:           true,
		ShowLabels:          true,
		ShowConfidence:      true,
		SaveImages:          true,
		SaveLabels:          true,
	}
}

// Load reads a JSON config file over the defaults. A missing file is not an
// error; you just get the defaults.
func Load(filename string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidenceThreshold %v out of range [0,1]", c.ConfidenceThreshold)
	}
	if c.MaskThreshold < 0 || c.MaskThreshold > 1 {
		return fmt.Errorf("maskThreshold %v out of range [0,1]", c.MaskThreshold)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("outputDir must not be empty")
	}
	for _, d := range c.Devices {
		if d == "" {
			return fmt.Errorf("devices must not contain empty entries")
		}
	}
	return nil
}

// Device is the preferred inference device ("cpu" when none is configured)
func (c *Config) Device() string {
	if len(c.Devices) == 0 {
		return "cpu"
	}
	return c.Devices[0]
}

// RunDir is the output directory of a run, eg "runs/predict"
func (c *Config) RunDir() string {
	return filepath.Join(c.OutputDir, c.RunName)
}

// DetectionParams converts the thresholds into detector parameters
func (c *Config) DetectionParams() *nn.DetectionParams {
	return &nn.DetectionParams{
		ConfidenceThreshold: c.ConfidenceThreshold,
		MaskThreshold:       c.MaskThreshold,
	}
}
