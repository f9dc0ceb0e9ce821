package seg

import (
	"testing"

	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/stretchr/testify/require"
)

func makeTensor(shape ...int) *nn.SegmentationTensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i) / float32(n)
	}
	return nn.NewSegmentationTensor(shape, data)
}

func TestNormalizeRanks(t *testing.T) {
	// rank 2: one map
	maps, err := Normalize(makeTensor(4, 6))
	require.NoError(t, err)
	require.Len(t, maps, 1)
	require.Equal(t, 6, maps[0].Width)
	require.Equal(t, 4, maps[0].Height)

	// rank 3: C maps
	maps, err = Normalize(makeTensor(3, 4, 6))
	require.NoError(t, err)
	require.Len(t, maps, 3)
	for _, m := range maps {
		require.Equal(t, 6, m.Width)
		require.Equal(t, 4, m.Height)
	}

	// rank 4 with N==1 squeezes to (C,H,W)
	maps, err = Normalize(makeTensor(1, 3, 4, 6))
	require.NoError(t, err)
	require.Len(t, maps, 3)

	// rank 4 with N>1 uses sample 0 only
	tensor := makeTensor(2, 3, 4, 6)
	maps, err = Normalize(tensor)
	require.NoError(t, err)
	require.Len(t, maps, 3)
	require.Equal(t, tensor.Data[0], maps[0].Values[0])

	// unsupported ranks
	_, err = Normalize(makeTensor(2, 3, 4, 6, 1))
	require.ErrorIs(t, err, ErrUnsupportedTensorShape)
	_, err = Normalize(makeTensor(5))
	require.ErrorIs(t, err, ErrUnsupportedTensorShape)
	_, err = Normalize(nil)
	require.ErrorIs(t, err, ErrUnsupportedTensorShape)
}

func TestNormalizeChannelOrder(t *testing.T) {
	data := []float32{
		// channel 0
		0.1, 0.2,
		0.3, 0.4,
		// channel 1
		0.9, 0.8,
		0.7, 0.6,
	}
	maps, err := Normalize(nn.NewSegmentationTensor([]int{2, 2, 2}, data))
	require.NoError(t, err)
	require.Equal(t, float32(0.1), maps[0].At(0, 0))
	require.Equal(t, float32(0.4), maps[0].At(1, 1))
	require.Equal(t, float32(0.9), maps[1].At(0, 0))
	require.Equal(t, float32(0.6), maps[1].At(1, 1))
}

func TestThreshold(t *testing.T) {
	m := &ClassMap{Width: 2, Height: 2, Values: []float32{0.1, 0.6, 0.5, 0.9}}
	mask := m.Threshold(0.5)
	require.Equal(t, uint8(0), mask.At(0, 0))
	require.Equal(t, uint8(255), mask.At(1, 0))
	require.Equal(t, uint8(0), mask.At(0, 1)) // strictly greater than
	require.Equal(t, uint8(255), mask.At(1, 1))
	require.Equal(t, 2, mask.CountNonZero())
}

func TestDrivableRaster(t *testing.T) {
	a := &ClassMap{Width: 2, Height: 1, Values: []float32{0.0, 1.0}}
	b := &ClassMap{Width: 2, Height: 1, Values: []float32{0.5, 0.25}}
	raster := DrivableRaster([]*ClassMap{a, b})
	require.Equal(t, uint8(127), raster.At(0, 0))
	require.Equal(t, uint8(255), raster.At(1, 0))
	require.Nil(t, DrivableRaster(nil))
}

func TestDilateEllipse(t *testing.T) {
	m := NewMask(21, 21)
	m.Set(10, 10, 255)
	d := m.DilateEllipse(11) // radius 5

	require.True(t, d.IsSet(10, 10))
	require.True(t, d.IsSet(15, 10)) // along the axis
	require.True(t, d.IsSet(10, 15))
	require.True(t, d.IsSet(13, 13))  // inside the circle
	require.False(t, d.IsSet(15, 15)) // corner of bounding square is outside
	require.False(t, d.IsSet(16, 10))

	// Degenerate kernel just binarizes
	same := m.DilateEllipse(1)
	require.Equal(t, 1, same.CountNonZero())
}

func TestOutline(t *testing.T) {
	m := NewMask(10, 10)
	for y := 2; y <= 7; y++ {
		for x := 2; x <= 7; x++ {
			m.Set(x, y, 255)
		}
	}
	edge := m.Outline(1)
	require.True(t, edge.IsSet(2, 2))
	require.True(t, edge.IsSet(7, 4))
	require.False(t, edge.IsSet(4, 4)) // interior
	require.False(t, edge.IsSet(0, 0)) // outside mask

	thick := m.Outline(2)
	require.True(t, thick.IsSet(3, 4)) // one pixel inward
	require.False(t, thick.IsSet(4, 4))
}

func TestResize(t *testing.T) {
	m := &ClassMap{Width: 2, Height: 2, Values: []float32{0, 1, 0, 1}}
	big := m.ResizeBilinear(4, 4)
	require.Equal(t, 4, big.Width)
	require.Equal(t, 4, big.Height)
	require.InDelta(t, 0.0, big.At(0, 0), 1e-5)
	require.InDelta(t, 1.0, big.At(3, 0), 1e-5)

	mask := NewMask(2, 2)
	mask.Set(1, 1, 255)
	bigMask := mask.ResizeNearest(4, 4)
	require.True(t, bigMask.IsSet(3, 3))
	require.False(t, bigMask.IsSet(0, 0))
}
