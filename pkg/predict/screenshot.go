package predict

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/roadsight/roadsight/pkg/nn"
)

// SaveScreenshot captures a frame into its own screenshot_<timestamp>
// directory under root, as a JPEG plus a label file for the detections.
// Returns the path of the image written.
func SaveScreenshot(img *cimg.Image, detections []nn.ObjectDetection, root string) (string, error) {
	dir := filepath.Join(root, "screenshot_"+time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0770); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory %v: %w", dir, err)
	}
	jpeg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
	if err != nil {
		return "", err
	}
	imgPath := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(imgPath, jpeg, 0644); err != nil {
		return "", err
	}
	if len(detections) != 0 {
		labels := make([]nn.Label, 0, len(detections))
		for _, d := range detections {
			labels = append(labels, nn.MakeLabel(d, img.Width, img.Height))
		}
		if err := nn.SaveLabelFile(filepath.Join(dir, "frame.txt"), labels); err != nil {
			return "", err
		}
	}
	return imgPath, nil
}
