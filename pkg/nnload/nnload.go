package nnload

// Package nnload wraps up our 'nn' interface layer, so that callers can load
// a detector from a model directory with one function call, and not need to
// know which runtime executes the weights. Native runtimes register
// themselves through Register. The built-in "replay" architecture plays back
// recorded label files, which lets the rest of the system run without any
// native runtime present.

import (
	"fmt"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/nn"
)

// Factory creates a detector from a model directory and its parsed config
type Factory func(log logs.Log, modelDir string, config *nn.ModelConfig) (nn.ObjectDetector, error)

var registry = map[string]Factory{
	"replay": newReplayDetector,
}

// Register makes an architecture loadable by LoadDetector. Call from an
// init() in the runtime's package.
func Register(architecture string, factory Factory) {
	registry[architecture] = factory
}

// LoadDetector loads a detector from a model directory. The directory must
// contain model.json (nn.ModelConfig), which names the architecture.
func LoadDetector(log logs.Log, modelDir string) (nn.ObjectDetector, error) {
	config, err := nn.LoadModelConfig(filepath.Join(modelDir, "model.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load model config from %v: %w", modelDir, err)
	}
	factory := registry[config.Architecture]
	if factory == nil {
		return nil, fmt.Errorf("unknown model architecture '%v'", config.Architecture)
	}
	detector, err := factory(log, modelDir, config)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v model from %v: %w", config.Architecture, modelDir, err)
	}
	return detector, nil
}

// LoadMultiTaskDetector is LoadDetector for models that also produce a
// segmentation tensor
func LoadMultiTaskDetector(log logs.Log, modelDir string) (nn.MultiTaskDetector, error) {
	detector, err := LoadDetector(log, modelDir)
	if err != nil {
		return nil, err
	}
	multi, ok := detector.(nn.MultiTaskDetector)
	if !ok {
		detector.Close()
		return nil, fmt.Errorf("model in %v does not produce segmentation output", modelDir)
	}
	return multi, nil
}
