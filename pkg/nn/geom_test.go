package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOU(t *testing.T) {
	a := Rect{
		X:      0,
		Y:      0,
		Width:  10,
		Height: 10,
	}
	b := Rect{
		X:      5,
		Y:      5,
		Width:  10,
		Height: 10,
	}
	require.Equal(t, float32(0.25/(0.75+1)), a.IOU(b))
	require.Equal(t, float32(1), a.IOU(a))
	require.Equal(t, float32(0), a.IOU(Rect{X: 100, Y: 100, Width: 5, Height: 5}))
}

func TestRectClip(t *testing.T) {
	r := Rect{X: -10, Y: 5, Width: 30, Height: 200}
	c := r.Clip(100, 100)
	require.Equal(t, Rect{X: 0, Y: 5, Width: 20, Height: 95}, c)

	// Fully outside the image clips to empty
	empty := Rect{X: 200, Y: 200, Width: 10, Height: 10}.Clip(100, 100)
	require.True(t, empty.IsEmpty())
}

func TestFootPoint(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 30, Height: 40}
	require.Equal(t, Point{X: 25, Y: 60}, r.FootPoint())
}
