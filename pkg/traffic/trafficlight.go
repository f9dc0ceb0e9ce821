// Package traffic holds the scene reasoning that sits between raw detections
// and the rendered frame: traffic light color classification, pedestrian road
// occupancy, and fusion of the two detector outputs into drawable primitives.
package traffic

import (
	"github.com/bmharper/cimg/v2"
	"github.com/roadsight/roadsight/pkg/nn"
)

// LightColor is the classified state of a traffic light crop.
type LightColor string

const (
	LightRed     LightColor = "red"
	LightYellow  LightColor = "yellow"
	LightGreen   LightColor = "green"
	LightUnknown LightColor = "unknown"
)

// Hue ranges follow the OpenCV HSV convention (hue 0..180, sat/val 0..255),
// because the thresholds were tuned against captures in that space.
// Red wraps around zero, so it gets two bands.
const (
	redHueLow1, redHueHigh1     = 0, 10
	redHueLow2, redHueHigh2     = 160, 180
	yellowHueLow, yellowHueHigh = 15, 40
	greenHueLow, greenHueHigh   = 35, 95

	redSatMin, redValMin       = 70, 70
	yellowSatMin, yellowValMin = 70, 70
	greenSatMin, greenValMin   = 40, 40
)

// ClassifyLightColor buckets the pixels of a traffic light box into
// red/yellow/green bands and returns the majority color. A minimum pixel
// count of max(10, 1% of the region) guards against calling a color on a few
// stray pixels. It never fails: degenerate input is "unknown".
func ClassifyLightColor(img *cimg.Image, box nn.Rect) LightColor {
	region := box.Clip(img.Width, img.Height)
	if region.IsEmpty() {
		return LightUnknown
	}

	red, yellow, green := 0, 0, 0
	for y := region.Y; y < region.Y2(); y++ {
		row := img.Pixels[y*img.Stride:]
		for x := region.X; x < region.X2(); x++ {
			i := x * img.NChan()
			h, s, v := rgbToHSV(row[i], row[i+1], row[i+2])
			// Bands are tested independently. Yellow and green overlap at
			// hue 35..40, and a pixel there counts toward both.
			if s >= redSatMin && v >= redValMin &&
				((h >= redHueLow1 && h <= redHueHigh1) || (h >= redHueLow2 && h <= redHueHigh2)) {
				red++
			}
			if s >= yellowSatMin && v >= yellowValMin && h >= yellowHueLow && h <= yellowHueHigh {
				yellow++
			}
			if s >= greenSatMin && v >= greenValMin && h >= greenHueLow && h <= greenHueHigh {
				green++
			}
		}
	}

	winner, count := LightRed, red
	if yellow > count {
		winner, count = LightYellow, yellow
	}
	if green > count {
		winner, count = LightGreen, green
	}

	minPixels := max(10, region.Area()/100)
	if count < minPixels {
		return LightUnknown
	}
	return winner
}

// rgbToHSV converts to the OpenCV HSV ranges: h in 0..180, s and v in 0..255.
func rgbToHSV(r, g, b uint8) (h, s, v int) {
	maxC := int(max(r, max(g, b)))
	minC := int(min(r, min(g, b)))
	v = maxC
	delta := maxC - minC
	if maxC == 0 || delta == 0 {
		return 0, 0, v
	}
	s = delta * 255 / maxC

	switch maxC {
	case int(r):
		h = 30 * (int(g) - int(b)) / delta
	case int(g):
		h = 60 + 30*(int(b)-int(r))/delta
	default:
		h = 120 + 30*(int(r)-int(g))/delta
	}
	if h < 0 {
		h += 180
	}
	return h, s, v
}
