package predict

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/historydb"
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/stretchr/testify/require"
)

type fakeMultiDetector struct {
	detections []nn.ObjectDetection
}

func (d *fakeMultiDetector) Close() {}

func (d *fakeMultiDetector) Config() *nn.ModelConfig {
	return &nn.ModelConfig{Architecture: "fake", Width: 64, Height: 64, Classes: nn.PrimaryClasses}
}

func (d *fakeMultiDetector) DetectObjects(img *cimg.Image, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	return d.detections, nil
}

func (d *fakeMultiDetector) DetectScene(img *cimg.Image, params *nn.DetectionParams) ([]nn.ObjectDetection, *nn.SegmentationTensor, error) {
	return d.detections, nil, nil
}

func writeTestImage(t *testing.T, path string) {
	img := cimg.NewImage(64, 48, cimg.PixelFormatRGB)
	jpeg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, jpeg, 0644))
}

type countingNotifier struct {
	items    int
	lastDone int
	total    int
}

func (n *countingNotifier) Progress(done, total int) {
	n.lastDone = done
	n.total = total
}

func (n *countingNotifier) ItemDone(item *ItemResult) {
	n.items++
}

func testRunner(t *testing.T, outDir string, options Options) *Runner {
	options.OutputDir = outDir
	primary := &fakeMultiDetector{
		detections: []nn.ObjectDetection{
			{Class: nn.ClassVehicle, Confidence: 0.9, Box: nn.MakeRect(5, 5, 20, 15)},
		},
	}
	return NewRunner(logs.NewTestingLog(t), primary, nil, options)
}

func TestRunSingleImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "frame.jpg")
	writeTestImage(t, src)

	outDir := filepath.Join(dir, "out")
	r := testRunner(t, outDir, Options{SaveImages: true, SaveLabels: true})
	result, err := r.Run(src)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, 0, result.NumFailed)

	item := result.Items[0]
	require.NoError(t, item.Err)
	require.Len(t, item.Detections, 1)
	require.FileExists(t, item.OutputPath)
	require.FileExists(t, item.LabelPath)
	require.Equal(t, filepath.Join(outDir, "frame.jpg"), item.OutputPath)
	require.Equal(t, filepath.Join(outDir, "labels", "frame.txt"), item.LabelPath)

	labels, nSkipped, err := nn.LoadLabelFile(item.LabelPath)
	require.NoError(t, err)
	require.Equal(t, 0, nSkipped)
	require.Len(t, labels, 1)
	require.Equal(t, nn.ClassVehicle, labels[0].Class)
}

func TestRunDirectoryContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(srcDir, 0770))
	writeTestImage(t, filepath.Join(srcDir, "a.jpg"))
	// Not a real image, so decode fails and the run must carry on
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.jpg"), []byte("not a jpeg"), 0644))
	writeTestImage(t, filepath.Join(srcDir, "c.jpg"))

	notifier := &countingNotifier{}
	r := testRunner(t, filepath.Join(dir, "out"), Options{SaveImages: true, Notifier: notifier})
	result, err := r.Run(srcDir)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	require.Equal(t, 1, result.NumFailed)
	require.NoError(t, result.Items[0].Err)
	require.Error(t, result.Items[1].Err)
	require.NoError(t, result.Items[2].Err)
	require.Equal(t, 3, notifier.items)
	require.Equal(t, 3, notifier.lastDone)
	require.Equal(t, 3, notifier.total)
}

func TestRunFailsOnMissingSource(t *testing.T) {
	r := testRunner(t, t.TempDir(), Options{})
	_, err := r.Run(filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
}

func TestOutputDirIsLazy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "frame.jpg")
	writeTestImage(t, src)

	outDir := filepath.Join(dir, "out")
	r := testRunner(t, outDir, Options{SaveImages: false, SaveLabels: false})
	_, err := r.Run(src)
	require.NoError(t, err)
	_, err = os.Stat(outDir)
	require.True(t, os.IsNotExist(err))
}

func TestRunRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(srcDir, 0770))
	writeTestImage(t, filepath.Join(srcDir, "a.jpg"))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.jpg"), []byte("junk"), 0644))

	history, err := historydb.Open(logs.NewTestingLog(t), filepath.Join(dir, "db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	r := testRunner(t, filepath.Join(dir, "out"), Options{
		SaveImages: true,
		History:    history,
		ModelPath:  "models/primary.json",
	})
	_, err = r.Run(srcDir)
	require.NoError(t, err)

	records, err := history.List(historydb.Query{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, historydb.SourceDirectory, rec.SourceType)
	require.Equal(t, srcDir, rec.SourcePath)
	require.Equal(t, "models/primary.json", rec.ModelPath)
	require.False(t, rec.Success)
	require.Contains(t, rec.Error, "1 of 2")
	require.Equal(t, 1, rec.NumDetections)
	require.NotNil(t, rec.Params)
	require.Equal(t, float32(nn.DefaultConfidenceThreshold), rec.Params.Data.ConfidenceThreshold)
}

func TestSaveScreenshot(t *testing.T) {
	root := t.TempDir()
	img := cimg.NewImage(32, 32, cimg.PixelFormatRGB)
	detections := []nn.ObjectDetection{
		{Class: nn.RemapPerson, Confidence: 0.8, Box: nn.MakeRect(4, 4, 8, 16)},
	}
	path, err := SaveScreenshot(img, detections, root)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.True(t, strings.HasPrefix(filepath.Base(filepath.Dir(path)), "screenshot_"))

	labels, _, err := nn.LoadLabelFile(filepath.Join(filepath.Dir(path), "frame.txt"))
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Equal(t, nn.RemapPerson, labels[0].Class)
}
