package nnload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/stretchr/testify/require"
)

func writeReplayModel(t *testing.T, dir string) {
	config := `{"architecture": "replay", "width": 640, "height": 640, "classes": ["Vehicle", "Drivable", "Lane"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(config), 0644))
	// Frame 0: one confident vehicle, one below threshold
	frame0 := "0 0.500000 0.500000 0.250000 0.250000 0.900000\n" +
		"0 0.100000 0.100000 0.050000 0.050000 0.100000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000000.txt"), []byte(frame0), 0644))
	// Frame 1: empty
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000001.txt"), []byte(""), 0644))
}

func TestLoadReplayDetector(t *testing.T) {
	dir := t.TempDir()
	writeReplayModel(t, dir)

	detector, err := LoadMultiTaskDetector(logs.NewTestingLog(t), dir)
	require.NoError(t, err)
	defer detector.Close()
	require.Equal(t, "replay", detector.Config().Architecture)

	img := cimg.NewImage(640, 480, cimg.PixelFormatRGB)
	params := nn.NewDetectionParams()

	detections, tensor, err := detector.DetectScene(img, params)
	require.NoError(t, err)
	require.Nil(t, tensor)
	require.Len(t, detections, 1)
	require.Equal(t, nn.ClassVehicle, detections[0].Class)
	// 0.25 of 640x480, centered
	require.InDelta(t, 160, detections[0].Box.Width, 1)
	require.InDelta(t, 120, detections[0].Box.Height, 1)

	// Frame 1 is empty, then the sequence wraps
	detections, err = detector.DetectObjects(img, params)
	require.NoError(t, err)
	require.Len(t, detections, 0)
	detections, err = detector.DetectObjects(img, params)
	require.NoError(t, err)
	require.Len(t, detections, 1)
}

func TestLoadUnknownArchitecture(t *testing.T) {
	dir := t.TempDir()
	config := `{"architecture": "warpdrive", "width": 640, "height": 640}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(config), 0644))
	_, err := LoadDetector(logs.NewTestingLog(t), dir)
	require.ErrorContains(t, err, "warpdrive")
}

func TestLoadMissingConfig(t *testing.T) {
	_, err := LoadDetector(logs.NewTestingLog(t), t.TempDir())
	require.Error(t, err)
}
