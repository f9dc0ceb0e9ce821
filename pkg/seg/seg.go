// Package seg turns raw segmentation tensors into per-class probability maps
// and binary rasters, and provides the raster morphology that the road
// occupancy logic needs.
package seg

import (
	"errors"

	"github.com/roadsight/roadsight/pkg/nn"
)

// ErrUnsupportedTensorShape is returned for tensor ranks outside 2..4.
// Callers treat this as "no mask available for this frame", not as fatal.
var ErrUnsupportedTensorShape = errors.New("unsupported segmentation tensor shape")

// ClassMap is one class channel of a normalized segmentation, as raw
// activations. Binarization happens in the consumer, so the compositor and
// the occupancy logic can use different thresholds.
type ClassMap struct {
	Width  int
	Height int
	Values []float32 // Height * Width, row-major
}

func (m *ClassMap) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

// Normalize reshapes a raw tensor into an ordered list of per-class 2D maps.
//
//	rank 2 (H,W)     -> 1 map
//	rank 3 (C,H,W)   -> C maps
//	rank 4 (N,C,H,W) -> squeeze N==1; for N>1 only sample 0 is used, because
//	                    mask capture does not track batch membership
//
// The returned maps alias the tensor's data. The tensor is immutable, so
// this is safe.
func Normalize(t *nn.SegmentationTensor) ([]*ClassMap, error) {
	if t == nil {
		return nil, ErrUnsupportedTensorShape
	}
	shape := t.Shape
	data := t.Data
	switch len(shape) {
	case 2:
		return []*ClassMap{{Width: shape[1], Height: shape[0], Values: data}}, nil
	case 4:
		shape = shape[1:]
		data = data[:shape[0]*shape[1]*shape[2]]
		fallthrough
	case 3:
		channels := shape[0]
		height := shape[1]
		width := shape[2]
		maps := make([]*ClassMap, channels)
		for c := 0; c < channels; c++ {
			maps[c] = &ClassMap{
				Width:  width,
				Height: height,
				Values: data[c*height*width : (c+1)*height*width],
			}
		}
		return maps, nil
	default:
		return nil, ErrUnsupportedTensorShape
	}
}

// Threshold binarizes the map into a 0/255 raster.
func (m *ClassMap) Threshold(threshold float32) *Mask {
	mask := NewMask(m.Width, m.Height)
	for i, v := range m.Values {
		if v > threshold {
			mask.Pix[i] = 255
		}
	}
	return mask
}

// ResizeBilinear resamples the map to a new resolution, typically from model
// resolution up to frame resolution.
func (m *ClassMap) ResizeBilinear(newWidth, newHeight int) *ClassMap {
	if newWidth == m.Width && newHeight == m.Height {
		return m
	}
	out := &ClassMap{
		Width:  newWidth,
		Height: newHeight,
		Values: make([]float32, newWidth*newHeight),
	}
	scaleX := float32(m.Width) / float32(newWidth)
	scaleY := float32(m.Height) / float32(newHeight)
	for y := 0; y < newHeight; y++ {
		srcY := (float32(y)+0.5)*scaleY - 0.5
		if srcY < 0 {
			srcY = 0
		}
		y0 := int(srcY)
		y1 := min(y0+1, m.Height-1)
		fy := srcY - float32(y0)
		for x := 0; x < newWidth; x++ {
			srcX := (float32(x)+0.5)*scaleX - 0.5
			if srcX < 0 {
				srcX = 0
			}
			x0 := int(srcX)
			x1 := min(x0+1, m.Width-1)
			fx := srcX - float32(x0)
			top := m.At(x0, y0)*(1-fx) + m.At(x1, y0)*fx
			bottom := m.At(x0, y1)*(1-fx) + m.At(x1, y1)*fx
			out.Values[y*newWidth+x] = top*(1-fy) + bottom*fy
		}
	}
	return out
}

// DrivableRaster collapses all class channels into one grayscale raster by
// taking the per-pixel maximum, scaled to 0..255. Any nonzero pixel counts
// as drivable. Returns nil if maps is empty.
func DrivableRaster(maps []*ClassMap) *Mask {
	if len(maps) == 0 {
		return nil
	}
	width := maps[0].Width
	height := maps[0].Height
	out := NewMask(width, height)
	for i := range out.Pix {
		maxV := float32(0)
		for _, m := range maps {
			if m.Values[i] > maxV {
				maxV = m.Values[i]
			}
		}
		if maxV < 0 {
			maxV = 0
		} else if maxV > 1 {
			maxV = 1
		}
		out.Pix[i] = uint8(maxV * 255)
	}
	return out
}
