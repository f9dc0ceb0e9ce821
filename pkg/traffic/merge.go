package traffic

import (
	flatbush "github.com/bmharper/flatbush-go"
	"github.com/roadsight/roadsight/pkg/nn"
)

// MergeDuplicateDetections collapses same-class detections whose boxes
// overlap with IoU >= minIoU, keeping the higher-confidence one. The general
// detector frequently emits two boxes for one pedestrian, which would double
// count road occupancy warnings.
// Returns the retained detections, order preserved.
func MergeDuplicateDetections(input []nn.ObjectDetection, minIoU float32) []nn.ObjectDetection {
	if len(input) < 2 {
		return input
	}

	// Spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(input))
	for _, d := range input {
		fb.Add(int32(d.Box.X), int32(d.Box.Y), int32(d.Box.X2()), int32(d.Box.Y2()))
	}
	fb.Finish()

	deleted := map[int]bool{}
	for i, a := range input {
		if deleted[i] {
			continue
		}
		for _, j := range fb.Search(int32(a.Box.X), int32(a.Box.Y), int32(a.Box.X2()), int32(a.Box.Y2())) {
			if i == j || deleted[j] {
				continue
			}
			b := input[j]
			if b.Class != a.Class {
				continue
			}
			if a.Box.IOU(b.Box) < minIoU {
				continue
			}
			// Keep the higher confidence box. On a tie, keep the earlier one.
			if b.Confidence > a.Confidence {
				deleted[i] = true
				break
			}
			if b.Confidence < a.Confidence || i < j {
				deleted[j] = true
			}
		}
	}

	retain := make([]nn.ObjectDetection, 0, len(input))
	for i, d := range input {
		if !deleted[i] {
			retain = append(retain, d)
		}
	}
	return retain
}
