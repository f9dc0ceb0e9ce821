package seg

// Mask is a single-channel uint8 raster. Binary masks use 0/255, but any
// nonzero pixel counts as set, which also covers grayscale drivable rasters.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8 // Height * Width, row-major
}

func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

func (m *Mask) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

func (m *Mask) Set(x, y int, v uint8) {
	m.Pix[y*m.Width+x] = v
}

// IsSet is bounds-checked. Out of range pixels are unset.
func (m *Mask) IsSet(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x] != 0
}

func (m *Mask) CountNonZero() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// DilateEllipse dilates set pixels with an elliptical structuring element of
// kernelSize x kernelSize. The output is binary 0/255 even if the input was
// grayscale.
//
// Per output row we OR together horizontally dilated input rows, where the
// horizontal radius shrinks with vertical distance to trace the ellipse.
// Horizontal dilation uses a nearest-set-pixel distance sweep, so the whole
// thing is O(H * W * kernelSize) rather than a naive kernel scan.
func (m *Mask) DilateEllipse(kernelSize int) *Mask {
	if kernelSize <= 1 {
		out := NewMask(m.Width, m.Height)
		for i, v := range m.Pix {
			if v != 0 {
				out.Pix[i] = 255
			}
		}
		return out
	}
	radius := kernelSize / 2

	// rowDist[y*W+x] = horizontal distance from (x,y) to the nearest set
	// pixel in row y
	const far = 1 << 29
	rowDist := make([]int32, m.Width*m.Height)
	for y := 0; y < m.Height; y++ {
		row := rowDist[y*m.Width : (y+1)*m.Width]
		d := int32(far)
		for x := 0; x < m.Width; x++ {
			if m.Pix[y*m.Width+x] != 0 {
				d = 0
			} else if d < far {
				d++
			}
			row[x] = d
		}
		d = far
		for x := m.Width - 1; x >= 0; x-- {
			if m.Pix[y*m.Width+x] != 0 {
				d = 0
			} else if d < far {
				d++
			}
			if d < row[x] {
				row[x] = d
			}
		}
	}

	// Half-width of the ellipse at each vertical offset
	halfWidth := make([]int32, radius+1)
	for dy := 0; dy <= radius; dy++ {
		w := radius*radius - dy*dy
		hw := 0
		for hw*hw <= w {
			hw++
		}
		halfWidth[dy] = int32(hw - 1)
	}

	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		outRow := out.Pix[y*m.Width : (y+1)*m.Width]
		for dy := -radius; dy <= radius; dy++ {
			sy := y + dy
			if sy < 0 || sy >= m.Height {
				continue
			}
			hw := halfWidth[abs(dy)]
			srcRow := rowDist[sy*m.Width : (sy+1)*m.Width]
			for x := 0; x < m.Width; x++ {
				if srcRow[x] <= hw {
					outRow[x] = 255
				}
			}
		}
	}
	return out
}

// Outline returns the set pixels that lie within 'thickness' pixels of an
// unset pixel or the raster edge. Used to trace mask contours.
func (m *Mask) Outline(thickness int) *Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Pix[y*m.Width+x] == 0 {
				continue
			}
			if !m.IsSet(x-1, y) || !m.IsSet(x+1, y) || !m.IsSet(x, y-1) || !m.IsSet(x, y+1) {
				out.Pix[y*m.Width+x] = 255
			}
		}
	}
	// Grow the 1px boundary inward for thicker contours
	for t := 1; t < thickness; t++ {
		grown := NewMask(m.Width, m.Height)
		copy(grown.Pix, out.Pix)
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				if out.Pix[y*m.Width+x] == 0 || !m.IsSet(x, y) {
					continue
				}
				for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
					nx, ny := x+d[0], y+d[1]
					if m.IsSet(nx, ny) {
						grown.Pix[ny*m.Width+nx] = 255
					}
				}
			}
		}
		out = grown
	}
	return out
}

// ResizeNearest resamples the raster to a new resolution.
func (m *Mask) ResizeNearest(newWidth, newHeight int) *Mask {
	if newWidth == m.Width && newHeight == m.Height {
		return m
	}
	out := NewMask(newWidth, newHeight)
	for y := 0; y < newHeight; y++ {
		srcY := y * m.Height / newHeight
		for x := 0; x < newWidth; x++ {
			srcX := x * m.Width / newWidth
			out.Pix[y*newWidth+x] = m.Pix[srcY*m.Width+srcX]
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
