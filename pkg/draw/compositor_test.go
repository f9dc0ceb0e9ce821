package draw

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/roadsight/roadsight/pkg/seg"
	"github.com/roadsight/roadsight/pkg/traffic"
	"github.com/stretchr/testify/require"
)

func grayFrame(width, height int) *cimg.Image {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = 100
	}
	return img
}

func pixel(img *cimg.Image, x, y int) (uint8, uint8, uint8) {
	i := y*img.Stride + x*3
	return img.Pixels[i], img.Pixels[i+1], img.Pixels[i+2]
}

func TestBannerHeightArithmetic(t *testing.T) {
	c := NewCompositor(DefaultStyle())
	img := grayFrame(320, 240)

	// No banner content: image passes through untouched
	same := c.RenderBanners(img, nil, nil)
	require.Equal(t, img, same)
	require.Equal(t, 240, same.Height)

	// Two warnings + info: 240 + 2*40 + 40
	out := c.RenderBanners(img, []string{"a", "b"}, []string{"x"})
	require.Equal(t, 320, out.Width)
	require.Equal(t, 240+2*40+40, out.Height)

	// Warning banner background is dark red
	r, g, b := pixel(out, 300, 5)
	require.Equal(t, [3]uint8{139, 0, 0}, [3]uint8{r, g, b})

	// Info banner background is dark gray
	r, g, b = pixel(out, 300, 240+80+20)
	require.Equal(t, [3]uint8{60, 60, 60}, [3]uint8{r, g, b})

	// Frame content sits between the banners
	r, g, b = pixel(out, 160, 80+120)
	require.Equal(t, [3]uint8{100, 100, 100}, [3]uint8{r, g, b})

	// Warnings only: no info strip at the bottom
	out = c.RenderBanners(img, []string{"a"}, nil)
	require.Equal(t, 240+40, out.Height)

	// Info only
	out = c.RenderBanners(img, nil, []string{"x"})
	require.Equal(t, 240+40, out.Height)
}

func TestDrawBox(t *testing.T) {
	c := NewCompositor(DefaultStyle())
	img := grayFrame(100, 100)
	c.RenderOverlays(img, &traffic.Annotations{
		Boxes: []traffic.BoxPrimitive{
			{Box: nn.Rect{X: 10, Y: 10, Width: 30, Height: 20}, Color: traffic.Color{R: 255}, ShowBox: true},
		},
	})

	// Edges painted with 2px thickness
	r, _, _ := pixel(img, 20, 10)
	require.Equal(t, uint8(255), r)
	r, _, _ = pixel(img, 20, 11)
	require.Equal(t, uint8(255), r)
	r, _, _ = pixel(img, 10, 15)
	require.Equal(t, uint8(255), r)

	// Interior untouched
	r, g, b := pixel(img, 25, 20)
	require.Equal(t, [3]uint8{100, 100, 100}, [3]uint8{r, g, b})
}

func TestDrawBoxClipping(t *testing.T) {
	c := NewCompositor(DefaultStyle())
	img := grayFrame(100, 100)
	// Boxes outside or degenerate must not panic or paint
	c.RenderOverlays(img, &traffic.Annotations{
		Boxes: []traffic.BoxPrimitive{
			{Box: nn.Rect{X: 200, Y: 200, Width: 50, Height: 50}, Color: traffic.Color{R: 255}, ShowBox: true},
			{Box: nn.Rect{X: 10, Y: 10, Width: 0, Height: 20}, Color: traffic.Color{R: 255}, ShowBox: true},
			{Box: nn.Rect{X: -30, Y: -30, Width: 40, Height: 40}, Color: traffic.Color{G: 255}, ShowBox: true},
		},
	})
	r, g, b := pixel(img, 50, 50)
	require.Equal(t, [3]uint8{100, 100, 100}, [3]uint8{r, g, b})
	// The partially visible box paints its clipped edge
	_, g, _ = pixel(img, 9, 5)
	require.Equal(t, uint8(255), g)
}

func TestDrawMaskBlend(t *testing.T) {
	c := NewCompositor(DefaultStyle())
	img := grayFrame(50, 50)
	mask := seg.NewMask(50, 50)
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			mask.Set(x, y, 255)
		}
	}
	c.RenderOverlays(img, &traffic.Annotations{
		Masks: []traffic.MaskPrimitive{{Mask: mask, Color: traffic.Color{R: 255}}},
	})

	// Interior brightened additively at alpha 0.3: r = 100 + 255*0.3 = 176,
	// untinted channels keep the base value
	r, g, _ := pixel(img, 20, 20)
	require.Equal(t, uint8(176), r)
	require.Equal(t, uint8(100), g)

	// Contour painted solid
	r, g, _ = pixel(img, 10, 20)
	require.Equal(t, uint8(255), r)
	require.Equal(t, uint8(0), g)

	// Outside the mask untouched
	r, _, _ = pixel(img, 40, 40)
	require.Equal(t, uint8(100), r)

	// The fill saturates on an already bright pixel
	bright := grayFrame(50, 50)
	for i := range bright.Pixels {
		bright.Pixels[i] = 240
	}
	c.RenderOverlays(bright, &traffic.Annotations{
		Masks: []traffic.MaskPrimitive{{Mask: mask, Color: traffic.Color{R: 255}}},
	})
	r, _, _ = pixel(bright, 20, 20)
	require.Equal(t, uint8(255), r)
}

func TestDrawMaskTint(t *testing.T) {
	c := NewCompositor(DefaultStyle())
	img := grayFrame(50, 50)
	mask := seg.NewMask(50, 50)
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			mask.Set(x, y, 255)
		}
	}
	c.RenderOverlays(img, &traffic.Annotations{
		Masks: []traffic.MaskPrimitive{{
			Mask:    mask,
			Color:   traffic.Color{R: 255, G: 255},
			Caption: "Drivable Area",
			Tint:    true,
		}},
	})

	// Tinted fill interpolates toward the color: 100*0.7 + 255*0.3 = 146.
	// Sample below the caption band around the centroid.
	r, g, b := pixel(img, 12, 28)
	require.Equal(t, uint8(146), r)
	require.Equal(t, uint8(146), g)
	require.Equal(t, uint8(70), b)

	// Contour painted solid
	r, g, b = pixel(img, 10, 28)
	require.Equal(t, [3]uint8{255, 255, 0}, [3]uint8{r, g, b})

	// Caption glyphs spill left of the mask (the text is wider than the
	// square), stamped in the mask color with no background rectangle
	found := false
	for y := 13; y <= 26 && !found; y++ {
		for x := 0; x < 10; x++ {
			r, g, b := pixel(img, x, y)
			if r == 255 && g == 255 && b == 0 {
				found = true
				break
			}
		}
	}
	require.True(t, found)
}

func TestDrawLabelTag(t *testing.T) {
	c := NewCompositor(DefaultStyle())
	img := grayFrame(200, 100)
	c.RenderOverlays(img, &traffic.Annotations{
		Boxes: []traffic.BoxPrimitive{
			{
				Box:      nn.Rect{X: 50, Y: 40, Width: 40, Height: 30},
				Label:    "Vehicle 0.90",
				Color:    traffic.Color{B: 255},
				HasLabel: true,
			},
		},
	})
	// Tag background sits just above the box corner
	_, _, b := pixel(img, 55, 30)
	require.Equal(t, uint8(255), b)

	// A box at the top edge clamps its tag into the frame
	img2 := grayFrame(200, 100)
	c.RenderOverlays(img2, &traffic.Annotations{
		Boxes: []traffic.BoxPrimitive{
			{
				Box:      nn.Rect{X: 0, Y: 0, Width: 40, Height: 30},
				Label:    "P",
				Color:    traffic.Color{B: 255},
				HasLabel: true,
			},
		},
	})
	_, _, b = pixel(img2, 2, 2)
	require.Equal(t, uint8(255), b)
}

func TestCompositeDimensions(t *testing.T) {
	c := NewCompositor(DefaultStyle())

	// No banners: dimensions unchanged
	img := grayFrame(64, 64)
	out := c.Composite(img, &traffic.Annotations{})
	require.Equal(t, 64, out.Width)
	require.Equal(t, 64, out.Height)

	// With a warning: height grows by one banner line
	img = grayFrame(64, 64)
	out = c.Composite(img, &traffic.Annotations{Warnings: []string{"w"}})
	require.Equal(t, 64+40, out.Height)
}
