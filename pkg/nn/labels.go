package nn

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Label is one saved detection in normalized image coordinates, as written to
// the sidecar label files next to annotated output images.
type Label struct {
	Class      int
	XCenter    float32 // center x / image width
	YCenter    float32 // center y / image height
	Width      float32 // box width / image width
	Height     float32 // box height / image height
	Confidence float32
}

// MakeLabel normalizes a detection against the image dimensions.
func MakeLabel(det ObjectDetection, imageWidth, imageHeight int) Label {
	w := float32(imageWidth)
	h := float32(imageHeight)
	return Label{
		Class:      det.Class,
		XCenter:    (float32(det.Box.X) + float32(det.Box.Width)/2) / w,
		YCenter:    (float32(det.Box.Y) + float32(det.Box.Height)/2) / h,
		Width:      float32(det.Box.Width) / w,
		Height:     float32(det.Box.Height) / h,
		Confidence: det.Confidence,
	}
}

// ToDetection denormalizes the label back into pixel coordinates.
func (l Label) ToDetection(imageWidth, imageHeight int) ObjectDetection {
	w := l.Width * float32(imageWidth)
	h := l.Height * float32(imageHeight)
	x := l.XCenter*float32(imageWidth) - w/2
	y := l.YCenter*float32(imageHeight) - h/2
	return ObjectDetection{
		Class:      l.Class,
		Confidence: l.Confidence,
		Box: Rect{
			X:      int(x + 0.5),
			Y:      int(y + 0.5),
			Width:  int(w + 0.5),
			Height: int(h + 0.5),
		},
	}
}

// WriteLabels writes one line per label:
//
//	class x_center y_center width height confidence
func WriteLabels(w io.Writer, labels []Label) error {
	bw := bufio.NewWriter(w)
	for _, l := range labels {
		_, err := fmt.Fprintf(bw, "%d %.6f %.6f %.6f %.6f %.6f\n",
			l.Class, l.XCenter, l.YCenter, l.Width, l.Height, l.Confidence)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

func SaveLabelFile(filename string, labels []Label) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteLabels(f, labels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseLabels reads a label file. Malformed lines are skipped and counted in
// nSkipped rather than failing the whole file.
func ParseLabels(r io.Reader) (labels []Label, nSkipped int, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			nSkipped++
			continue
		}
		class, err := strconv.Atoi(fields[0])
		if err != nil {
			nSkipped++
			continue
		}
		var vals [5]float32
		ok := true
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(fields[i+1], 32)
			if err != nil {
				ok = false
				break
			}
			vals[i] = float32(v)
		}
		if !ok {
			nSkipped++
			continue
		}
		labels = append(labels, Label{
			Class:      class,
			XCenter:    vals[0],
			YCenter:    vals[1],
			Width:      vals[2],
			Height:     vals[3],
			Confidence: vals[4],
		})
	}
	return labels, nSkipped, scanner.Err()
}

func LoadLabelFile(filename string) ([]Label, int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ParseLabels(f)
}
