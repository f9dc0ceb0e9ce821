// Package draw renders fused frame annotations onto RGB images: mask
// overlays, boxes, label tags, and the warning/info banners.
package draw

import (
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/fogleman/gg"
	"github.com/roadsight/roadsight/pkg/seg"
	"github.com/roadsight/roadsight/pkg/traffic"
	"golang.org/x/image/font/basicfont"
)

// Style is the fixed look of the rendered output.
type Style struct {
	BoxThickness     int
	ContourThickness int
	LabelPadding     int
	MaskAlpha        float32
	BannerLineHeight int
}

func DefaultStyle() Style {
	return Style{
		BoxThickness:     2,
		ContourThickness: 2,
		LabelPadding:     2,
		MaskAlpha:        0.3,
		BannerLineHeight: 40,
	}
}

var (
	warningBannerColor = traffic.Color{R: 139, G: 0, B: 0}
	infoBannerColor    = traffic.Color{R: 60, G: 60, B: 60}
)

// Font metrics of basicfont.Face7x13
const (
	charWidth  = 7
	charHeight = 13
)

// Compositor renders annotations in a fixed order: masks, then boxes, then
// label tags, then banners. Safe for concurrent use, it holds no mutable
// state.
type Compositor struct {
	style Style
}

func NewCompositor(style Style) *Compositor {
	return &Compositor{style: style}
}

// RenderOverlays draws mask fills, contours, boxes, and label tags onto img
// in place. Banners are separate (RenderBanners), because the recorder wants
// frames with overlays but without the size-changing banners.
func (c *Compositor) RenderOverlays(img *cimg.Image, ann *traffic.Annotations) {
	for _, m := range ann.Masks {
		c.drawMask(img, m)
	}
	for _, b := range ann.Boxes {
		if b.ShowBox {
			c.drawBox(img, b)
		}
	}
	// Tags drawn last so boxes never cut through label text
	for _, b := range ann.Boxes {
		if b.HasLabel {
			c.drawLabelTag(img, b)
		}
	}
}

// RenderBanners returns a new image with the warning banner stacked above the
// frame and the info banner below it. With no banner content the input image
// is returned as-is, same dimensions.
func (c *Compositor) RenderBanners(img *cimg.Image, warnings []string, infoItems []string) *cimg.Image {
	warningHeight := c.style.BannerLineHeight * len(warnings)
	infoHeight := 0
	if len(infoItems) > 0 {
		infoHeight = c.style.BannerLineHeight
	}
	if warningHeight == 0 && infoHeight == 0 {
		return img
	}

	out := cimg.NewImage(img.Width, img.Height+warningHeight+infoHeight, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride : y*img.Stride+img.Width*3]
		dst := out.Pixels[(y+warningHeight)*out.Stride:]
		copy(dst, src)
	}

	if warningHeight > 0 {
		banner := c.renderBanner(img.Width, warningHeight, warningBannerColor, warnings)
		blitRGBA(out, banner, 0, 0)
	}
	if infoHeight > 0 {
		joined := ""
		for i, item := range infoItems {
			if i > 0 {
				joined += " | "
			}
			joined += item
		}
		banner := c.renderBanner(img.Width, infoHeight, infoBannerColor, []string{joined})
		blitRGBA(out, banner, 0, img.Height+warningHeight)
	}
	return out
}

// Composite is RenderOverlays + RenderBanners in one call, for batch paths
// that have no recorder in between.
func (c *Compositor) Composite(img *cimg.Image, ann *traffic.Annotations) *cimg.Image {
	c.RenderOverlays(img, ann)
	return c.RenderBanners(img, ann.Warnings, ann.InfoItems)
}

func (c *Compositor) drawMask(img *cimg.Image, m traffic.MaskPrimitive) {
	mask := m.Mask
	width := min(img.Width, mask.Width)
	height := min(img.Height, mask.Height)
	alpha := c.style.MaskAlpha
	fill := blend
	if m.Tint {
		fill = blendTint
	}
	for y := 0; y < height; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < width; x++ {
			if mask.At(x, y) == 0 {
				continue
			}
			i := x * 3
			row[i] = fill(row[i], m.Color.R, alpha)
			row[i+1] = fill(row[i+1], m.Color.G, alpha)
			row[i+2] = fill(row[i+2], m.Color.B, alpha)
		}
	}

	outline := mask.Outline(c.style.ContourThickness)
	for y := 0; y < height; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < width; x++ {
			if outline.At(x, y) == 0 {
				continue
			}
			i := x * 3
			row[i] = m.Color.R
			row[i+1] = m.Color.G
			row[i+2] = m.Color.B
		}
	}

	if m.Caption != "" {
		c.drawCaption(img, mask, m.Caption, m.Color)
	}
}

// drawCaption stamps colored text centered on the mask centroid, transparent
// background.
func (c *Compositor) drawCaption(img *cimg.Image, mask *seg.Mask, caption string, color traffic.Color) {
	sumX, sumY, n := 0, 0, 0
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.At(x, y) != 0 {
				sumX += x
				sumY += y
				n++
			}
		}
	}
	if n == 0 {
		return
	}
	cx := sumX / n
	cy := sumY / n

	textWidth := len(caption) * charWidth
	dc := gg.NewContext(textWidth, charHeight)
	dc.SetRGB255(int(color.R), int(color.G), int(color.B))
	dc.SetFontFace(basicfont.Face7x13)
	dc.DrawString(caption, 0, charHeight-2)
	blitRGBA(img, dc.Image(), cx-textWidth/2, cy-charHeight/2)
}

func (c *Compositor) drawBox(img *cimg.Image, b traffic.BoxPrimitive) {
	box := b.Box.Clip(img.Width, img.Height)
	if box.IsEmpty() {
		return
	}
	t := c.style.BoxThickness
	// Top and bottom edges
	for e := 0; e < t; e++ {
		c.drawHLine(img, box.X, box.X2(), box.Y+e, b.Color)
		c.drawHLine(img, box.X, box.X2(), box.Y2()-1-e, b.Color)
	}
	// Left and right edges
	for e := 0; e < t; e++ {
		c.drawVLine(img, box.X+e, box.Y, box.Y2(), b.Color)
		c.drawVLine(img, box.X2()-1-e, box.Y, box.Y2(), b.Color)
	}
}

func (c *Compositor) drawHLine(img *cimg.Image, x1, x2, y int, color traffic.Color) {
	if y < 0 || y >= img.Height {
		return
	}
	x1 = max(0, x1)
	x2 = min(img.Width, x2)
	row := img.Pixels[y*img.Stride:]
	for x := x1; x < x2; x++ {
		i := x * 3
		row[i] = color.R
		row[i+1] = color.G
		row[i+2] = color.B
	}
}

func (c *Compositor) drawVLine(img *cimg.Image, x, y1, y2 int, color traffic.Color) {
	if x < 0 || x >= img.Width {
		return
	}
	y1 = max(0, y1)
	y2 = min(img.Height, y2)
	for y := y1; y < y2; y++ {
		i := y*img.Stride + x*3
		img.Pixels[i] = color.R
		img.Pixels[i+1] = color.G
		img.Pixels[i+2] = color.B
	}
}

// drawLabelTag renders a filled tag with white text just above the box's
// top-left corner, clamped into the frame.
func (c *Compositor) drawLabelTag(img *cimg.Image, b traffic.BoxPrimitive) {
	pad := c.style.LabelPadding
	tagWidth := len(b.Label)*charWidth + 2*pad
	tagHeight := charHeight + 2*pad

	x := max(0, min(b.Box.X, img.Width-tagWidth))
	y := max(0, b.Box.Y-tagHeight)
	if x >= img.Width || y >= img.Height {
		return
	}

	dc := gg.NewContext(tagWidth, tagHeight)
	dc.SetRGB255(int(b.Color.R), int(b.Color.G), int(b.Color.B))
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB255(255, 255, 255)
	dc.DrawString(b.Label, float64(pad), float64(pad+charHeight-2))
	blitRGBA(img, dc.Image(), x, y)
}

func (c *Compositor) renderBanner(width, height int, bg traffic.Color, lines []string) image.Image {
	dc := gg.NewContext(width, height)
	dc.SetRGB255(int(bg.R), int(bg.G), int(bg.B))
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB255(255, 255, 255)
	for i, line := range lines {
		baseline := float64(i*c.style.BannerLineHeight + (c.style.BannerLineHeight+charHeight)/2)
		dc.DrawString(line, 10, baseline)
	}
	return dc.Image()
}

// blitRGBA composites an RGBA source onto an RGB image, honoring the source
// alpha. Pixels falling outside the destination are clipped.
func blitRGBA(dst *cimg.Image, src image.Image, x0, y0 int) {
	bounds := src.Bounds()
	for sy := bounds.Min.Y; sy < bounds.Max.Y; sy++ {
		dy := y0 + sy - bounds.Min.Y
		if dy < 0 || dy >= dst.Height {
			continue
		}
		row := dst.Pixels[dy*dst.Stride:]
		for sx := bounds.Min.X; sx < bounds.Max.X; sx++ {
			dx := x0 + sx - bounds.Min.X
			if dx < 0 || dx >= dst.Width {
				continue
			}
			r, g, b, a := src.At(sx, sy).RGBA()
			if a == 0 {
				continue
			}
			i := dx * 3
			if a == 0xffff {
				row[i] = uint8(r >> 8)
				row[i+1] = uint8(g >> 8)
				row[i+2] = uint8(b >> 8)
			} else {
				// Premultiplied source over opaque destination
				inv := 0xffff - a
				row[i] = uint8((r + uint32(row[i])*0x101*inv/0xffff) >> 8)
				row[i+1] = uint8((g + uint32(row[i+1])*0x101*inv/0xffff) >> 8)
				row[i+2] = uint8((b + uint32(row[i+2])*0x101*inv/0xffff) >> 8)
			}
		}
	}
}

// blend adds the overlay color on top of the base at the given weight,
// saturating at 255. The base keeps its full weight, so mask fills brighten
// rather than tint.
func blend(base, over uint8, alpha float32) uint8 {
	v := float32(base) + float32(over)*alpha
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// blendTint is the convex counterpart of blend: the base gives up the
// overlay's weight, so the fill shifts toward the color without brightening.
func blendTint(base, over uint8, alpha float32) uint8 {
	return uint8(float32(base)*(1-alpha) + float32(over)*alpha)
}
