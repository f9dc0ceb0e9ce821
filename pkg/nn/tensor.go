package nn

import "fmt"

// SegmentationTensor is the raw segmentation output of the multi-task model,
// before any shape normalization. Rank is 2, 3 or 4:
//
//	(H, W)          single class, single image
//	(C, H, W)       multi class, single image
//	(N, C, H, W)    batched
//
// Data is packed row-major in the order of Shape. The tensor is immutable once
// created; seg.Normalize turns it into per-class 2D maps.
type SegmentationTensor struct {
	Shape []int
	Data  []float32
}

// NewSegmentationTensor wraps raw model output. It panics if the shape does
// not describe len(data) elements, because that always indicates a bug in the
// detector wrapper, not a runtime condition.
func NewSegmentationTensor(shape []int, data []float32) *SegmentationTensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		panic(fmt.Sprintf("segmentation tensor shape %v does not match %v elements", shape, len(data)))
	}
	return &SegmentationTensor{Shape: shape, Data: data}
}

func (t *SegmentationTensor) Rank() int {
	return len(t.Shape)
}
